// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the ChainBallot API.

# Handler Types

  - SessionHandler: session listing and detail
  - VotingHandler: eligibility checks and vote casting
  - ResultsHandler: sealed results, ledger/store audit, transaction receipts

	sessionHandler := handlers.NewSessionHandler(st, cfg)
	votingHandler := handlers.NewVotingHandler(coord, cfg)
	resultsHandler := handlers.NewResultsHandler(st, svc, cfg)

# Voting Flow

	POST /sessions/{id}/eligibility → CheckEligibility (200 with outcome)
	POST /sessions/{id}/votes       → CastVote

Both require Authorization: Bearer <account token>. The wallet is named by
X-Wallet-Address and the device by X-Device-UUID plus the signals in the
body.

CastVote answers:

	201 committed
	200 recorded_on_chain_only (tx_hash and advisory set)
	403 window or identity rejection
	409 already voted (account, wallet, identity or device)
	422 wallet missing, rejected or on the wrong network
	502 provider error or reverted transaction
	504 provider timeout
	429 retry budget spent

# Results

Results and the audit view are sealed (403) until the session ends, unless
the session has results_visible set. Tallies are read from the ledger and
count confirmed votes only.
*/
package handlers
