// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// The DDL is kept to the subset Postgres and SQLite both accept.
const schema = `
-- Voting sessions
CREATE TABLE IF NOT EXISTS voting_session (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    creator_id TEXT NOT NULL,
    organization_id TEXT,
    access_type TEXT NOT NULL DEFAULT 'open' CHECK (access_type IN ('open', 'organization', 'restricted')),
    id_verification_type TEXT NOT NULL DEFAULT 'none' CHECK (id_verification_type IN ('none', 'employee', 'student', 'staff', 'custom')),
    results_visible BOOLEAN NOT NULL DEFAULT FALSE,
    published BOOLEAN NOT NULL DEFAULT FALSE,
    start_time TIMESTAMP NOT NULL,
    end_time TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (end_time > start_time)
);

CREATE INDEX IF NOT EXISTS idx_voting_session_published ON voting_session(published, start_time);

-- Candidates
CREATE TABLE IF NOT EXISTS candidate (
    id TEXT PRIMARY KEY,
    voting_session_id TEXT NOT NULL REFERENCES voting_session(id),
    name TEXT NOT NULL,
    description TEXT,
    position INTEGER NOT NULL,
    UNIQUE (voting_session_id, position)
);

-- Authorized identities
CREATE TABLE IF NOT EXISTS authorized_id (
    id TEXT PRIMARY KEY,
    id_type TEXT NOT NULL,
    id_value TEXT NOT NULL,
    organization_id TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (id_type, id_value)
);

-- Votes
CREATE TABLE IF NOT EXISTS vote (
    id TEXT PRIMARY KEY,
    voting_session_id TEXT NOT NULL REFERENCES voting_session(id),
    candidate_id TEXT NOT NULL REFERENCES candidate(id),
    voter_id TEXT NOT NULL,
    voter_wallet_address TEXT,
    verified_id TEXT,
    blockchain_tx_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (voting_session_id, voter_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_vote_session_verified_id
    ON vote(voting_session_id, verified_id) WHERE verified_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_vote_session_wallet ON vote(voting_session_id, voter_wallet_address);
CREATE INDEX IF NOT EXISTS idx_vote_candidate ON vote(candidate_id);
`
