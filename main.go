// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/chainballot/cliparse"
	"github.com/danielhkuo/chainballot/commit"
	"github.com/danielhkuo/chainballot/db"
	"github.com/danielhkuo/chainballot/eligibility"
	"github.com/danielhkuo/chainballot/fingerprint"
	"github.com/danielhkuo/chainballot/ledger"
	"github.com/danielhkuo/chainballot/metrics"
	"github.com/danielhkuo/chainballot/middleware"
	"github.com/danielhkuo/chainballot/router"
	"github.com/danielhkuo/chainballot/store"
	"github.com/danielhkuo/chainballot/telemetry"
)

const version = "0.1.0"

func main() {
	if err := cliparse.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// setupLogging picks a text handler on a terminal and JSON otherwise.
func setupLogging(level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, cfg cliparse.Config) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "chainballot",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	// Connect to the eligibility store
	conn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.CreateSchema(conn); err != nil {
		return err
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	network, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	marks, closeMarks, err := openMarks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeMarks()

	m := metrics.New(prometheus.DefaultRegisterer)
	st := store.NewSQLStore(conn)
	svc := ledger.NewService(network, ledger.Config{
		ChainID:     cfg.LedgerChainID,
		Timeout:     cfg.LedgerTimeout,
		ConfirmPoll: cfg.LedgerConfirmPoll,
	})
	engine := eligibility.NewEngine(st, svc, marks, eligibility.Options{})
	coord := commit.NewCoordinator(st, engine, svc, marks, commit.Options{
		Flows:   eligibility.NewFlows(cfg.CommitRetries, time.Hour),
		Metrics: m,
		Tracer:  telemetry.Tracer(),
		LogSalt: cfg.IPHashSalt,
	})

	mux := router.NewRouter(router.Deps{
		Config:      cfg,
		Store:       st,
		Ledger:      svc,
		Coordinator: coord,
		Metrics:     m,
		Gatherer:    prometheus.DefaultGatherer,
	})

	server := &http.Server{
		Handler:           middleware.Instrument(m, middleware.CORS(mux)),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening", "port", cfg.Port, "chain_id", cfg.LedgerChainID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// Give in-flight commits time to finish recording.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.LedgerTimeout+5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openLedger uses the Postgres-backed ledger when LEDGER_URL is set and an
// in-process chain otherwise.
func openLedger(ctx context.Context, cfg cliparse.Config) (ledger.Network, func(), error) {
	if cfg.LedgerURL == "" {
		slog.Warn("LEDGER_URL not set; using in-memory ledger")
		return ledger.NewMemoryChain(ledger.MemoryOptions{ChainID: cfg.LedgerChainID}), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.LedgerURL)
	if err != nil {
		return nil, nil, err
	}
	chain := ledger.NewPostgresChain(pool, cfg.LedgerChainID)
	if err := chain.Init(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return chain, pool.Close, nil
}

// openMarks uses Redis for device marks when REDIS_URL is set.
func openMarks(ctx context.Context, cfg cliparse.Config) (fingerprint.MarkStore, func(), error) {
	if cfg.RedisURL == "" {
		return fingerprint.NewMemoryMarks(), func() {}, nil
	}
	marks, err := fingerprint.NewRedisMarks(ctx, cfg.RedisURL, cfg.DeviceMarkTTL)
	if err != nil {
		return nil, nil, err
	}
	return marks, func() { marks.Close() }, nil
}
