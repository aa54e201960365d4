// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/chainballot/models"
)

type voteKey struct {
	sessionID string
	value     string
}

type identityKey struct {
	kind  string
	value string
}

// MemoryStore is an in-process Store for tests and embedding. It enforces the
// same uniqueness rules as the SQL schema.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]models.VotingSession
	candidates map[string][]models.Candidate
	identities map[identityKey]bool
	votes      []models.Vote
	byVoter    map[voteKey]bool
	byIdentity map[voteKey]bool
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]models.VotingSession),
		candidates: make(map[string][]models.Candidate),
		identities: make(map[identityKey]bool),
		byVoter:    make(map[voteKey]bool),
		byIdentity: make(map[voteKey]bool),
		now:        time.Now,
	}
}

// PutSession inserts or replaces a session.
func (m *MemoryStore) PutSession(s models.VotingSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// PutCandidate appends a candidate to its session.
func (m *MemoryStore) PutCandidate(c models.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[c.SessionID] = append(m.candidates[c.SessionID], c)
}

// PutIdentity registers an identity as authorized (or revoked when active is false).
func (m *MemoryStore) PutIdentity(kind, value string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identityKey{kind: kind, value: NormalizeIdentity(value)}] = active
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (models.VotingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.VotingSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]models.VotingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := []models.VotingSession{}
	for _, s := range m.sessions {
		if s.Published {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].StartTime.After(sessions[j].StartTime)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

func (m *MemoryStore) GetCandidates(_ context.Context, sessionID string) ([]models.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	candidates := append([]models.Candidate{}, m.candidates[sessionID]...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Position < candidates[j].Position
	})
	return candidates, nil
}

func (m *MemoryStore) HasVotedByAccount(_ context.Context, sessionID, accountID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byVoter[voteKey{sessionID, accountID}], nil
}

func (m *MemoryStore) HasVotedByWallet(_ context.Context, sessionID, walletAddress string) (bool, error) {
	addr := models.NormalizeAddress(walletAddress)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.votes {
		if v.SessionID == sessionID && v.WalletAddress == addr && addr != "" {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) HasVotedByIdentity(_ context.Context, sessionID, identityValue string) (bool, error) {
	value := NormalizeIdentity(identityValue)
	if value == "" {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byIdentity[voteKey{sessionID, value}], nil
}

func (m *MemoryStore) IsAuthorizedIdentity(_ context.Context, kind, value string) (bool, error) {
	normalized := NormalizeIdentity(value)
	if normalized == "" {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identities[identityKey{kind: kind, value: normalized}], nil
}

func (m *MemoryStore) RecordVote(_ context.Context, draft models.VoteDraft) (string, error) {
	verified := NormalizeIdentity(draft.VerifiedID)

	m.mu.Lock()
	defer m.mu.Unlock()

	voter := voteKey{draft.SessionID, draft.VoterID}
	if m.byVoter[voter] {
		return "", ErrConflict
	}
	identity := voteKey{draft.SessionID, verified}
	if verified != "" && m.byIdentity[identity] {
		return "", ErrConflict
	}

	vote := models.Vote{
		ID:            uuid.NewString(),
		SessionID:     draft.SessionID,
		CandidateID:   draft.CandidateID,
		VoterID:       draft.VoterID,
		WalletAddress: models.NormalizeAddress(draft.WalletAddress),
		VerifiedID:    verified,
		TxHash:        draft.TxHash,
		CreatedAt:     m.now().UTC(),
	}
	m.votes = append(m.votes, vote)
	m.byVoter[voter] = true
	if verified != "" {
		m.byIdentity[identity] = true
	}
	return vote.ID, nil
}

func (m *MemoryStore) CountVotes(_ context.Context, sessionID string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, v := range m.votes {
		if v.SessionID == sessionID {
			counts[v.CandidateID]++
		}
	}
	return counts, nil
}

// Votes returns a copy of every recorded vote.
func (m *MemoryStore) Votes() []models.Vote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Vote{}, m.votes...)
}
