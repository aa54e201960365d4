// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the ChainBallot API.

# Route Registration

NewRouter creates a configured http.ServeMux from the shared services:

	mux := router.NewRouter(router.Deps{
		Config:      cfg,
		Store:       st,
		Ledger:      svc,
		Coordinator: coord,
		Metrics:     m,
		Gatherer:    prometheus.DefaultGatherer,
	})

# Endpoints

Health and metrics:

	GET /health
	GET /metrics

Sessions (public):

	GET /sessions      - Published sessions with status and vote count
	GET /sessions/{id} - Session detail and candidates

Voting (Authorization: Bearer, X-Wallet-Address; rate limited):

	POST /sessions/{id}/eligibility - Dry-run eligibility check
	POST /sessions/{id}/votes       - Cast a vote

Results (sealed until the window ends unless results_visible):

	GET /sessions/{id}/results - Confirmed ledger tallies
	GET /sessions/{id}/audit   - Ledger vs. store per candidate
	GET /receipts/{tx}         - Transaction receipt
*/
package router
