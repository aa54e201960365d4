// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/testutil"
)

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now()
	live := testutil.CreateTestSession(t, env.db, testutil.SessionOptions{})
	upcoming := testutil.CreateTestSession(t, env.db, testutil.SessionOptions{
		Start: now.Add(time.Hour), End: now.Add(2 * time.Hour),
	})
	testutil.CreateTestSession(t, env.db, testutil.SessionOptions{Draft: true})

	w := get(env.sessions.ListSessions, "/sessions", "", "")
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.ListSessionsResponse
	testutil.AssertJSON(t, w, &resp)

	if len(resp.Sessions) != 2 {
		t.Fatalf("Expected 2 published sessions, got %d", len(resp.Sessions))
	}
	// Newest start first
	if resp.Sessions[0].Session.ID != upcoming.ID || resp.Sessions[1].Session.ID != live.ID {
		t.Errorf("Unexpected order: %s, %s", resp.Sessions[0].Session.ID, resp.Sessions[1].Session.ID)
	}
	if resp.Sessions[0].Status != models.StatusScheduled || resp.Sessions[0].CanVote {
		t.Errorf("Expected upcoming session to be scheduled and closed, got %+v", resp.Sessions[0])
	}
	if resp.Sessions[1].Status != models.StatusActive || !resp.Sessions[1].CanVote {
		t.Errorf("Expected live session to be active and open, got %+v", resp.Sessions[1])
	}
	if resp.Sessions[1].StatusLabel != "Live Now" {
		t.Errorf("Expected label 'Live Now', got '%s'", resp.Sessions[1].StatusLabel)
	}
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t)

	session := testutil.CreateTestSession(t, env.db, testutil.SessionOptions{})
	second := testutil.AddTestCandidate(t, env.db, session.ID, "Bob", 2)
	first := testutil.AddTestCandidate(t, env.db, session.ID, "Alice", 1)
	draft := testutil.CreateTestSession(t, env.db, testutil.SessionOptions{Draft: true})

	tests := []struct {
		name           string
		sessionID      string
		expectedStatus int
	}{
		{"published session", session.ID, http.StatusOK},
		{"draft is hidden", draft.ID, http.StatusNotFound},
		{"unknown session", "missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(env.sessions.GetSession, "/sessions/"+tt.sessionID, "id", tt.sessionID)
			testutil.AssertStatus(t, w, tt.expectedStatus)
		})
	}

	w := get(env.sessions.GetSession, "/sessions/"+session.ID, "id", session.ID)
	var detail models.SessionDetail
	testutil.AssertJSON(t, w, &detail)

	if len(detail.Candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(detail.Candidates))
	}
	if detail.Candidates[0].ID != first || detail.Candidates[1].ID != second {
		t.Error("Expected candidates ordered by position")
	}
	if detail.TotalVotes != 0 {
		t.Errorf("Expected 0 votes, got %d", detail.TotalVotes)
	}
}
