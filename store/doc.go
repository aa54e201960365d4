// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store is the eligibility store adapter: sessions, candidates,
authorized identities and the off-chain vote records.

SQLStore runs on database/sql against Postgres or SQLite; MemoryStore is the
in-process equivalent used by tests.

# Uniqueness

RecordVote relies on the database, not on a prior read:

	UNIQUE (voting_session_id, voter_id)
	UNIQUE (voting_session_id, verified_id) WHERE verified_id IS NOT NULL

A violation of either surfaces as ErrConflict so callers can tell "someone
beat you to it" apart from an outage.

Identity values are compared after NormalizeIdentity (trim, NFKC, case fold).
Wallet addresses are compared lowercased.
*/
package store
