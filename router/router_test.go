// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielhkuo/chainballot/commit"
	"github.com/danielhkuo/chainballot/eligibility"
	"github.com/danielhkuo/chainballot/fingerprint"
	"github.com/danielhkuo/chainballot/ledger"
	"github.com/danielhkuo/chainballot/metrics"
	"github.com/danielhkuo/chainballot/middleware"
	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/store"
	"github.com/danielhkuo/chainballot/testutil"
)

type testServer struct {
	mux  *http.ServeMux
	deps Deps
}

func newTestServer(t *testing.T) (*testServer, *sql.DB) {
	t.Helper()

	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	st := store.NewSQLStore(conn)
	svc := ledger.NewService(ledger.NewMemoryChain(ledger.MemoryOptions{}), ledger.Config{
		ChainID:     cfg.LedgerChainID,
		Timeout:     cfg.LedgerTimeout,
		ConfirmPoll: cfg.LedgerConfirmPoll,
	})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	marks := fingerprint.NewMemoryMarks()
	engine := eligibility.NewEngine(st, svc, marks, eligibility.Options{})

	deps := Deps{
		Config:      cfg,
		Store:       st,
		Ledger:      svc,
		Coordinator: commit.NewCoordinator(st, engine, svc, marks, commit.Options{Metrics: m}),
		Metrics:     m,
		Gatherer:    reg,
	}
	return &testServer{mux: NewRouter(deps), deps: deps}, conn
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	if w.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", w.Body.String())
	}
}

func TestRootEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	expected := "chainballot API v1"
	if w.Body.String() != expected {
		t.Errorf("Expected body '%s', got '%s'", expected, w.Body.String())
	}
}

func TestRouteExistence(t *testing.T) {
	srv, _ := newTestServer(t)

	// 400, 401, 403, 404 are all valid responses depending on handler logic
	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/"},

		{"GET", "/sessions"},
		{"GET", "/sessions/test-id"},
		{"GET", "/sessions/test-id/results"},
		{"GET", "/sessions/test-id/audit"},
		{"GET", "/receipts/0xabc"},

		{"POST", "/sessions/test-id/eligibility"},
		{"POST", "/sessions/test-id/votes"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			srv.mux.ServeHTTP(w, req)

			if w.Code == http.StatusMethodNotAllowed {
				t.Errorf("Route %s %s returned 405, expected route handler to exist", tc.method, tc.path)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	testCases := []struct {
		method string
		path   string
	}{
		{"POST", "/health"},
		{"DELETE", "/sessions/test-id"},
		{"GET", "/sessions/test-id/votes"},
		{"PUT", "/sessions/test-id/eligibility"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			srv.mux.ServeHTTP(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405 for %s %s, got %d", tc.method, tc.path, w.Code)
			}
		})
	}
}

func TestVoteThroughRouter(t *testing.T) {
	srv, conn := newTestServer(t)
	cfg := srv.deps.Config

	session := testutil.CreateTestSession(t, conn, testutil.SessionOptions{ResultsVisible: true})
	candidate := testutil.AddTestCandidate(t, conn, session.ID, "Alice", 1)

	headers := map[string]string{
		"Authorization":                testutil.AccountToken(t, cfg, models.Account{ID: "voter-1"}),
		middleware.HeaderWalletAddress: "0x00000000000000000000000000000000000000aa",
	}
	req := testutil.MakeRequest("POST", "/sessions/"+session.ID+"/votes", models.CastVoteRequest{CandidateID: candidate}, headers)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusCreated)

	var outcome commit.Outcome
	testutil.AssertJSON(t, w, &outcome)

	w = httptest.NewRecorder()
	srv.mux.ServeHTTP(w, httptest.NewRequest("GET", "/receipts/"+outcome.TxHash, nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = httptest.NewRecorder()
	srv.mux.ServeHTTP(w, httptest.NewRequest("GET", "/sessions/"+session.ID+"/results", nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = httptest.NewRecorder()
	srv.mux.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `chainballot_commit_outcomes_total{outcome="committed",reason=""} 1`) {
		t.Errorf("Expected committed outcome in metrics output")
	}
}

func TestVoteRateLimited(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.deps.Config.RateLimitRPS = 0.001
	srv.deps.Config.RateLimitBurst = 1
	mux := NewRouter(srv.deps)

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest("POST", "/sessions/test-id/votes", strings.NewReader("{}"))
		req.RemoteAddr = "198.51.100.4:5000"
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] == http.StatusTooManyRequests {
		t.Error("Expected first request to pass the limiter")
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 for second request, got %d", codes[1])
	}
}
