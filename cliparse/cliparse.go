// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string

	LedgerURL         string
	LedgerChainID     string
	LedgerTimeout     time.Duration
	LedgerConfirmPoll time.Duration
	CommitRetries     int

	RedisURL      string
	DeviceMarkTTL time.Duration

	AuthJWTSecret string
	IPHashSalt    string

	RateLimitRPS   float64
	RateLimitBurst int

	OTLPEndpoint  string
	LogLevel      slog.Level
	ExplorerTxURL string
}

// LoadDotEnv loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ParseFlags validates flags and fills defaults
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var logLevel string
	var ledgerTimeout, confirmPoll, markTTL string

	fs := flag.NewFlagSet("chainballot", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")

	// Ledger
	fs.StringVar(&cfg.LedgerURL, "ledger-url", "", "Postgres URL for the ledger (empty = in-process chain)")
	fs.StringVar(&cfg.LedgerChainID, "chain-id", "", "Expected ledger network id")
	fs.StringVar(&ledgerTimeout, "ledger-timeout", "", "Bound on each ledger call")
	fs.StringVar(&confirmPoll, "confirm-poll", "", "Receipt polling interval")
	fs.IntVar(&cfg.CommitRetries, "commit-retries", -1, "Retries allowed after a failed submission")

	// Device marks
	fs.StringVar(&cfg.RedisURL, "redis-url", "", "Redis URL for device marks (empty = in-memory)")
	fs.StringVar(&markTTL, "mark-ttl", "", "Device mark lifetime")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.AuthJWTSecret, "jwt-secret", "", "Account token signing secret (prefer env)")
	fs.StringVar(&cfg.IPHashSalt, "ip-salt", "", "Salt for hashing client IPs (prefer env)")

	fs.Float64Var(&cfg.RateLimitRPS, "rate-rps", 0, "Vote submissions per second per client")
	fs.IntVar(&cfg.RateLimitBurst, "rate-burst", 0, "Vote submission burst per client")

	fs.StringVar(&cfg.OTLPEndpoint, "otlp", "", "OTLP gRPC endpoint (empty disables export)")
	fs.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&cfg.ExplorerTxURL, "explorer-url", "", "Block explorer transaction URL format")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		port, err := envInt("PORT", 3318)
		if err != nil {
			return Config{}, err
		}
		cfg.Port = port
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	cfg.DatabaseType = envString(cfg.DatabaseType, "DATABASE_TYPE", "sqlite")
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, fmt.Errorf("invalid database type %q", cfg.DatabaseType)
	}

	cfg.LedgerURL = envString(cfg.LedgerURL, "LEDGER_URL", "")
	cfg.LedgerChainID = envString(cfg.LedgerChainID, "LEDGER_CHAIN_ID", "sepolia")

	var err error
	if cfg.LedgerTimeout, err = envDuration(ledgerTimeout, "LEDGER_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LedgerConfirmPoll, err = envDuration(confirmPoll, "LEDGER_CONFIRM_POLL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.CommitRetries < 0 {
		if cfg.CommitRetries, err = envInt("COMMIT_RETRIES", 2); err != nil {
			return Config{}, err
		}
	}

	cfg.RedisURL = envString(cfg.RedisURL, "REDIS_URL", "")
	if cfg.DeviceMarkTTL, err = envDuration(markTTL, "DEVICE_MARK_TTL", 720*time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.RateLimitRPS == 0 {
		if cfg.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", 1); err != nil {
			return Config{}, err
		}
	}
	if cfg.RateLimitBurst == 0 {
		if cfg.RateLimitBurst, err = envInt("RATE_LIMIT_BURST", 5); err != nil {
			return Config{}, err
		}
	}

	cfg.OTLPEndpoint = envString(cfg.OTLPEndpoint, "OTLP_ENDPOINT", "")
	cfg.ExplorerTxURL = envString(cfg.ExplorerTxURL, "EXPLORER_TX_URL", "https://sepolia.etherscan.io/tx/%s")

	if err := cfg.LogLevel.UnmarshalText([]byte(envString(logLevel, "LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid log level: %w", err)
	}

	// Secrets - MUST be provided
	cfg.AuthJWTSecret = envString(cfg.AuthJWTSecret, "AUTH_JWT_SECRET", "")
	if cfg.AuthJWTSecret == "" {
		return Config{}, errors.New("AUTH_JWT_SECRET required")
	}

	cfg.IPHashSalt = envString(cfg.IPHashSalt, "IP_HASH_SALT", "")
	if cfg.IPHashSalt == "" {
		return Config{}, errors.New("IP_HASH_SALT required")
	}

	return cfg, nil
}

func envString(flagValue, key, def string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return f, nil
}

func envDuration(flagValue, key string, def time.Duration) (time.Duration, error) {
	v := envString(flagValue, key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
