// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens database connections and creates the store schema.

# Connections

Open returns a *sql.DB for the eligibility store, retrying the first ping:

	conn, err := db.Open(ctx, "sqlite", "file:chainballot.db")

NewPool returns the pgx pool used by the Postgres-backed ledger.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - voting_session: Session metadata, access rules and window
  - candidate: Ballot entries, unique per (session, position)
  - authorized_id: Identity values allowed to vote in restricted sessions
  - vote: One off-chain record per confirmed ledger vote

# Relationships

	voting_session 1──* candidate
	voting_session 1──* vote
	candidate 1──* vote

Votes are never cascaded away; deleting a session with votes fails.

# Uniqueness

  - vote.(voting_session_id, voter_id)
  - vote.(voting_session_id, verified_id) where verified_id is set
  - authorized_id.(id_type, id_value)
*/
package db
