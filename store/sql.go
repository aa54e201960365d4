// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"modernc.org/sqlite"

	"github.com/danielhkuo/chainballot/models"
)

// SQLite extended result codes for constraint violations.
const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// SQLStore implements Store with database/sql. Works with Postgres (lib/pq)
// and SQLite (modernc).
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

const sessionColumns = `
	id, title, description, creator_id, organization_id, access_type,
	id_verification_type, results_visible, published, start_time, end_time, created_at
`

func scanSession(row interface{ Scan(...any) error }) (models.VotingSession, error) {
	var s models.VotingSession
	var description, orgID sql.NullString
	err := row.Scan(
		&s.ID, &s.Title, &description, &s.CreatorID, &orgID, &s.AccessType,
		&s.IDVerification, &s.ResultsVisible, &s.Published, &s.StartTime, &s.EndTime, &s.CreatedAt,
	)
	if err != nil {
		return models.VotingSession{}, err
	}
	s.Description = description.String
	s.OrganizationID = orgID.String
	return s, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (models.VotingSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM voting_session WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VotingSession{}, ErrNotFound
	}
	if err != nil {
		return models.VotingSession{}, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

func (s *SQLStore) ListSessions(ctx context.Context) ([]models.VotingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM voting_session
		WHERE published = TRUE
		ORDER BY start_time DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.VotingSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLStore) GetCandidates(ctx context.Context, sessionID string) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, voting_session_id, name, description, position
		FROM candidate
		WHERE voting_session_id = $1
		ORDER BY position, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	candidates := []models.Candidate{}
	for rows.Next() {
		var c models.Candidate
		var description sql.NullString
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Name, &description, &c.Position); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Description = description.String
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (s *SQLStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *SQLStore) HasVotedByAccount(ctx context.Context, sessionID, accountID string) (bool, error) {
	ok, err := s.exists(ctx, `
		SELECT EXISTS(SELECT 1 FROM vote WHERE voting_session_id = $1 AND voter_id = $2)
	`, sessionID, accountID)
	if err != nil {
		return false, fmt.Errorf("check account vote: %w", err)
	}
	return ok, nil
}

func (s *SQLStore) HasVotedByWallet(ctx context.Context, sessionID, walletAddress string) (bool, error) {
	ok, err := s.exists(ctx, `
		SELECT EXISTS(SELECT 1 FROM vote WHERE voting_session_id = $1 AND voter_wallet_address = $2)
	`, sessionID, models.NormalizeAddress(walletAddress))
	if err != nil {
		return false, fmt.Errorf("check wallet vote: %w", err)
	}
	return ok, nil
}

func (s *SQLStore) HasVotedByIdentity(ctx context.Context, sessionID, identityValue string) (bool, error) {
	ok, err := s.exists(ctx, `
		SELECT EXISTS(SELECT 1 FROM vote WHERE voting_session_id = $1 AND verified_id = $2)
	`, sessionID, NormalizeIdentity(identityValue))
	if err != nil {
		return false, fmt.Errorf("check identity vote: %w", err)
	}
	return ok, nil
}

// IsAuthorizedIdentity compares normalized forms on both sides; the allow
// list is written by administrators and is stored as entered. The indexed
// ASCII comparison answers most lookups, the scan covers values that only
// match after NFKC folding.
func (s *SQLStore) IsAuthorizedIdentity(ctx context.Context, kind, value string) (bool, error) {
	normalized := NormalizeIdentity(value)
	if normalized == "" {
		return false, nil
	}
	ok, err := s.exists(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM authorized_id
			WHERE id_type = $1 AND lower(trim(id_value)) = $2 AND is_active = TRUE
		)
	`, kind, normalized)
	if err != nil {
		return false, fmt.Errorf("check authorized identity: %w", err)
	}
	if ok {
		return true, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id_value FROM authorized_id
		WHERE id_type = $1 AND is_active = TRUE
	`, kind)
	if err != nil {
		return false, fmt.Errorf("scan authorized identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stored string
		if err := rows.Scan(&stored); err != nil {
			return false, fmt.Errorf("scan authorized identity: %w", err)
		}
		if NormalizeIdentity(stored) == normalized {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *SQLStore) RecordVote(ctx context.Context, draft models.VoteDraft) (string, error) {
	voteID := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vote (id, voting_session_id, candidate_id, voter_id, voter_wallet_address, verified_id, blockchain_tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, voteID, draft.SessionID, draft.CandidateID, draft.VoterID,
		nullString(models.NormalizeAddress(draft.WalletAddress)),
		nullString(NormalizeIdentity(draft.VerifiedID)),
		draft.TxHash, s.now().UTC())

	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("insert vote: %w", err)
	}
	return voteID, nil
}

func (s *SQLStore) CountVotes(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT candidate_id, COUNT(*) FROM vote
		WHERE voting_session_id = $1
		GROUP BY candidate_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var candidateID string
		var n int
		if err := rows.Scan(&candidateID, &n); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts[candidateID] = n
	}
	return counts, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey
	}
	return false
}
