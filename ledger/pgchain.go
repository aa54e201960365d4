// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// appendLockKey serializes appends so the chain head cannot fork.
const appendLockKey = 0x63_68_61_69_6e // "chain"

const pgSchema = `
CREATE TABLE IF NOT EXISTS ledger_entry (
    sequence BIGINT PRIMARY KEY,
    tx_hash TEXT NOT NULL UNIQUE,
    session_key TEXT NOT NULL,
    candidate_id TEXT NOT NULL,
    voter TEXT NOT NULL,
    block BIGINT NOT NULL,
    reverted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entry_vote
    ON ledger_entry(session_key, voter) WHERE NOT reverted;
CREATE INDEX IF NOT EXISTS idx_ledger_entry_tally
    ON ledger_entry(session_key, candidate_id) WHERE NOT reverted;
`

// PostgresChain keeps the vote log in Postgres. Every entry is confirmed at
// insert; uniqueness per (session key, voter) is a partial unique index.
type PostgresChain struct {
	pool    *pgxpool.Pool
	chainID string
	clock   func() time.Time
}

func NewPostgresChain(pool *pgxpool.Pool, chainID string) *PostgresChain {
	return &PostgresChain{pool: pool, chainID: chainID, clock: time.Now}
}

// Init creates the ledger table. Safe to call multiple times.
func (c *PostgresChain) Init(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

func (c *PostgresChain) Wallet(address string) (Provider, error) {
	return newRelayWallet(c, address)
}

func (c *PostgresChain) network() string {
	return c.chainID
}

func (c *PostgresChain) submit(ctx context.Context, sessionKey, candidateID, voter string) (string, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: begin: %v", ErrProvider, err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // no-op after commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return "", fmt.Errorf("%w: lock: %v", ErrProvider, err)
	}

	var seq uint64
	prev := genesisHash
	err = tx.QueryRow(ctx, `SELECT sequence, hash FROM ledger_entry ORDER BY sequence DESC LIMIT 1`).Scan(&seq, &prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: read head: %v", ErrProvider, err)
	}

	entry := Entry{
		Sequence:    seq + 1,
		SessionKey:  sessionKey,
		CandidateID: candidateID,
		Voter:       strings.ToLower(voter),
		Block:       seq + 1,
		Timestamp:   c.clock().UTC().Truncate(time.Microsecond),
	}
	if err := entry.seal(prev); err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entry (sequence, tx_hash, session_key, candidate_id, voter, block, reverted, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.Sequence, entry.TxHash(), entry.SessionKey, entry.CandidateID, entry.Voter,
		entry.Block, entry.Reverted, entry.Timestamp, entry.PrevHash, entry.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrAlreadyVoted
		}
		return "", fmt.Errorf("%w: append: %v", ErrProvider, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("%w: commit: %v", ErrProvider, err)
	}
	return entry.TxHash(), nil
}

func (c *PostgresChain) HasVoted(ctx context.Context, sessionKey, address string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM ledger_entry WHERE session_key = $1 AND voter = $2 AND NOT reverted)
	`, sessionKey, strings.ToLower(strings.TrimSpace(address))).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: has voted: %v", ErrProvider, err)
	}
	return exists, nil
}

func (c *PostgresChain) VoteCount(ctx context.Context, sessionKey, candidateID string) (uint64, error) {
	var n int64
	err := c.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_entry WHERE session_key = $1 AND candidate_id = $2 AND NOT reverted
	`, sessionKey, candidateID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: vote count: %v", ErrProvider, err)
	}
	return uint64(n), nil
}

func (c *PostgresChain) Receipt(ctx context.Context, txHash string) (TxReceipt, error) {
	var r TxReceipt
	var reverted bool
	err := c.pool.QueryRow(ctx, `
		SELECT tx_hash, block, session_key, candidate_id, voter, reverted, created_at
		FROM ledger_entry WHERE tx_hash = $1
	`, strings.ToLower(txHash)).Scan(&r.Hash, &r.BlockNumber, &r.SessionKey, &r.CandidateID, &r.Voter, &reverted, &r.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return TxReceipt{}, ErrTxNotFound
	}
	if err != nil {
		return TxReceipt{}, fmt.Errorf("%w: receipt: %v", ErrProvider, err)
	}
	r.Status = TxConfirmed
	if reverted {
		r.Status = TxReverted
	}
	return r, nil
}

// Verify walks the stored chain and checks every link and hash.
func (c *PostgresChain) Verify(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `
		SELECT sequence, session_key, candidate_id, voter, block, reverted, created_at, prev_hash, hash
		FROM ledger_entry ORDER BY sequence
	`)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.Sequence, &e.SessionKey, &e.CandidateID, &e.Voter, &e.Block, &e.Reverted, &e.Timestamp, &e.PrevHash, &e.Hash)
		return e, err
	})
	if err != nil {
		return fmt.Errorf("scan ledger: %w", err)
	}
	return verifyChain(entries)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
