// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the ChainBallot API server.

ChainBallot runs voting sessions whose votes are anchored on an
append-only ledger. Every vote is checked against the session window,
organization and identity rules, and the store and ledger "already voted"
records, before it is submitted to the ledger and recorded off-chain.

# Starting the Server

	AUTH_JWT_SECRET=... IP_HASH_SALT=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..." -jwt-secret ... -ip-salt ...

A .env file in the working directory is loaded first when present.

# Configuration

Required settings:

  - AUTH_JWT_SECRET (-jwt-secret): HS256 key for account tokens
  - IP_HASH_SALT (-ip-salt): Salt for hashed client IPs and wallet log tags

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - DATABASE_URL (-d): Store connection string
  - LEDGER_URL (-ledger-url): Postgres URL for the ledger; in-memory when unset
  - LEDGER_CHAIN_ID (-chain-id): Network votes are sent on (default: sepolia)
  - LEDGER_TIMEOUT (-ledger-timeout): Bound on every wallet call (default: 30s)
  - REDIS_URL (-redis-url): Device marks in Redis; in-memory when unset
  - OTEL_EXPORTER_OTLP_ENDPOINT (-otlp): Trace exporter; disabled when unset

# Architecture

  - eligibility: The eligibility engine and per-voter flow state
  - commit: Vote commit coordinator and the outcome shape
  - ledger: Ledger adapter, in-memory and Postgres-backed chains
  - store: Sessions, identities and vote records (SQL and in-memory)
  - fingerprint: Advisory device marks (memory and Redis)
  - voteerr: Error taxonomy
  - handlers, router, middleware: HTTP surface
  - metrics, telemetry: Prometheus collectors and OpenTelemetry tracing
  - db, cliparse, auth, models: Schema, configuration, tokens, types

See package documentation for each component.
*/
package main
