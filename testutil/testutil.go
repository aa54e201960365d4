// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielhkuo/chainballot/auth"
	"github.com/danielhkuo/chainballot/cliparse"
	"github.com/danielhkuo/chainballot/db"
	"github.com/danielhkuo/chainballot/models"
)

// SetupTestDB opens a fresh SQLite database with the full schema. Each test
// gets its own file, so tests may run in parallel.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chainballot.db")
	conn, err := db.Open(context.Background(), "sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:              3318,
		DatabaseURL:       "file::memory:",
		DatabaseType:      "sqlite",
		LedgerChainID:     "sepolia",
		LedgerTimeout:     2 * time.Second,
		LedgerConfirmPoll: 5 * time.Millisecond,
		CommitRetries:     2,
		DeviceMarkTTL:     time.Hour,
		AuthJWTSecret:     "test-jwt-secret",
		IPHashSalt:        "test-ip-salt",
		RateLimitRPS:      100,
		RateLimitBurst:    100,
		ExplorerTxURL:     "https://sepolia.etherscan.io/tx/%s",
	}
}

// SessionOptions overrides the defaults of CreateTestSession. The zero
// value is a published, open session that is live right now.
type SessionOptions struct {
	OrganizationID string
	AccessType     string
	IDVerification string
	ResultsVisible bool
	Draft          bool
	Start          time.Time
	End            time.Time
}

// CreateTestSession inserts a session and returns it as stored
func CreateTestSession(t *testing.T, conn *sql.DB, opts SessionOptions) models.VotingSession {
	t.Helper()

	id, _ := auth.GenerateID(8)
	now := time.Now().UTC()
	s := models.VotingSession{
		ID:             id,
		Title:          "Test Session",
		Description:    "A test session",
		CreatorID:      "creator-1",
		OrganizationID: opts.OrganizationID,
		AccessType:     opts.AccessType,
		IDVerification: opts.IDVerification,
		ResultsVisible: opts.ResultsVisible,
		Published:      !opts.Draft,
		StartTime:      opts.Start.UTC(),
		EndTime:        opts.End.UTC(),
		CreatedAt:      now,
	}
	if s.AccessType == "" {
		s.AccessType = models.AccessOpen
	}
	if s.IDVerification == "" {
		s.IDVerification = models.VerifyNone
	}
	if opts.Start.IsZero() {
		s.StartTime = now.Add(-time.Hour)
	}
	if opts.End.IsZero() {
		s.EndTime = now.Add(time.Hour)
	}

	var orgID *string
	if s.OrganizationID != "" {
		orgID = &s.OrganizationID
	}

	_, err := conn.Exec(`
		INSERT INTO voting_session (id, title, description, creator_id, organization_id, access_type,
			id_verification_type, results_visible, published, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.ID, s.Title, s.Description, s.CreatorID, orgID, s.AccessType,
		s.IDVerification, s.ResultsVisible, s.Published, s.StartTime, s.EndTime, s.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return s
}

// AddTestCandidate adds a candidate to a session and returns its ID
func AddTestCandidate(t *testing.T, conn *sql.DB, sessionID, name string, position int) string {
	t.Helper()

	candidateID, _ := auth.GenerateID(6)
	_, err := conn.Exec(`
		INSERT INTO candidate (id, voting_session_id, name, description, position)
		VALUES ($1, $2, $3, $4, $5)
	`, candidateID, sessionID, name, "", position)
	if err != nil {
		t.Fatalf("Failed to create test candidate: %v", err)
	}

	return candidateID
}

// AddTestIdentity authorizes an identity value, stored exactly as given.
func AddTestIdentity(t *testing.T, conn *sql.DB, kind, value string, active bool) {
	t.Helper()

	id, _ := auth.GenerateID(8)
	_, err := conn.Exec(`
		INSERT INTO authorized_id (id, id_type, id_value, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, kind, value, active, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test identity: %v", err)
	}
}

// AccountToken returns a bearer header value for the account
func AccountToken(t *testing.T, cfg cliparse.Config, account models.Account) string {
	t.Helper()

	token, err := auth.IssueAccountToken(account, cfg.AuthJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue account token: %v", err)
	}
	return "Bearer " + token
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
