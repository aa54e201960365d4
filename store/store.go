// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/danielhkuo/chainballot/models"
)

var (
	ErrConflict = errors.New("vote already recorded for this voter")
	ErrNotFound = errors.New("not found")
)

// Store is the narrow interface the core uses against durable state.
type Store interface {
	GetSession(ctx context.Context, id string) (models.VotingSession, error)
	ListSessions(ctx context.Context) ([]models.VotingSession, error)
	GetCandidates(ctx context.Context, sessionID string) ([]models.Candidate, error)

	HasVotedByAccount(ctx context.Context, sessionID, accountID string) (bool, error)
	HasVotedByWallet(ctx context.Context, sessionID, walletAddress string) (bool, error)
	HasVotedByIdentity(ctx context.Context, sessionID, identityValue string) (bool, error)
	IsAuthorizedIdentity(ctx context.Context, kind, value string) (bool, error)

	// RecordVote inserts the vote exactly once. A second write for the same
	// (session, voter) or (session, verified identity) fails with ErrConflict.
	RecordVote(ctx context.Context, draft models.VoteDraft) (string, error)

	CountVotes(ctx context.Context, sessionID string) (map[string]int, error)
}

// NormalizeIdentity folds an identity value so that "AB-123", " ab-123 " and
// the full-width "ＡＢ-123" all compare equal.
func NormalizeIdentity(value string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(value)))
}
