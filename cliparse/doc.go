// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	_ = cliparse.LoadDotEnv(".env")
	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Environment Variables

Every flag falls back to an environment variable, then a default:

	PORT                → -p              (3318)
	DATABASE_URL        → -d              (required)
	DATABASE_TYPE       → -t              (sqlite)
	LEDGER_URL          → --ledger-url    (in-process chain)
	LEDGER_CHAIN_ID     → --chain-id      (sepolia)
	LEDGER_TIMEOUT      → --ledger-timeout (30s)
	LEDGER_CONFIRM_POLL → --confirm-poll  (500ms)
	COMMIT_RETRIES      → --commit-retries (2)
	REDIS_URL           → --redis-url     (in-memory marks)
	DEVICE_MARK_TTL     → --mark-ttl      (720h)
	AUTH_JWT_SECRET     → --jwt-secret    (required)
	IP_HASH_SALT        → --ip-salt       (required)
	RATE_LIMIT_RPS      → --rate-rps      (1)
	RATE_LIMIT_BURST    → --rate-burst    (5)
	OTLP_ENDPOINT       → --otlp          (tracing export off)
	LOG_LEVEL           → --log-level     (info)
	EXPLORER_TX_URL     → --explorer-url

CLI flags take precedence over environment variables. LoadDotEnv never
overrides a variable that is already set.
*/
package cliparse
