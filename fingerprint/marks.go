// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package fingerprint

import (
	"context"
	"sync"
	"time"
)

// Device identifies the client for the advisory device mark. Either field may
// be empty; an empty Device never matches a mark.
type Device struct {
	ClientID    string
	Fingerprint string
}

// MarkStore holds the advisory "already voted from this device" records.
// Marks are a UX shortcut only and must never be the sole gate.
//
// A client id is one install, so its mark applies to any account using it.
// Fingerprints collide across people and are only matched for the account
// that wrote them.
type MarkStore interface {
	Has(ctx context.Context, sessionID, accountID string, d Device) (bool, error)
	Mark(ctx context.Context, sessionID, accountID string, d Device, at time.Time) error
}

// MemoryMarks is a process-local MarkStore.
type MemoryMarks struct {
	mu       sync.RWMutex
	sessions map[string]bool
	prints   map[string]time.Time
}

func NewMemoryMarks() *MemoryMarks {
	return &MemoryMarks{
		sessions: make(map[string]bool),
		prints:   make(map[string]time.Time),
	}
}

func (m *MemoryMarks) Has(ctx context.Context, sessionID, accountID string, d Device) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if d.ClientID != "" && m.sessions[votedKey(sessionID, d.ClientID)] {
		return true, nil
	}
	if d.Fingerprint != "" && accountID != "" {
		if _, ok := m.prints[printKey(sessionID, accountID, d.Fingerprint)]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryMarks) Mark(ctx context.Context, sessionID, accountID string, d Device, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ClientID != "" {
		m.sessions[votedKey(sessionID, d.ClientID)] = true
	}
	if d.Fingerprint != "" && accountID != "" {
		m.prints[printKey(sessionID, accountID, d.Fingerprint)] = at
	}
	return nil
}

// Clear drops every mark (what clearing local storage does on a real client).
func (m *MemoryMarks) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]bool)
	m.prints = make(map[string]time.Time)
}

func votedKey(sessionID, clientID string) string {
	return "voted:" + sessionID + ":" + clientID
}

func printKey(sessionID, accountID, fp string) string {
	return "fp:" + sessionID + ":" + accountID + ":" + fp
}
