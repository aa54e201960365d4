// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/chainballot/cliparse"
	"github.com/danielhkuo/chainballot/commit"
	"github.com/danielhkuo/chainballot/eligibility"
	"github.com/danielhkuo/chainballot/fingerprint"
	"github.com/danielhkuo/chainballot/ledger"
	"github.com/danielhkuo/chainballot/middleware"
	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/store"
	"github.com/danielhkuo/chainballot/testutil"
)

type testEnv struct {
	db       *sql.DB
	cfg      cliparse.Config
	chain    *ledger.MemoryChain
	sessions *SessionHandler
	voting   *VotingHandler
	results  *ResultsHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	st := store.NewSQLStore(conn)
	chain := ledger.NewMemoryChain(ledger.MemoryOptions{ChainID: cfg.LedgerChainID})
	svc := ledger.NewService(chain, ledger.Config{
		ChainID:     cfg.LedgerChainID,
		Timeout:     cfg.LedgerTimeout,
		ConfirmPoll: cfg.LedgerConfirmPoll,
	})
	marks := fingerprint.NewMemoryMarks()
	engine := eligibility.NewEngine(st, svc, marks, eligibility.Options{})
	coord := commit.NewCoordinator(st, engine, svc, marks, commit.Options{LogSalt: cfg.IPHashSalt})

	return &testEnv{
		db:       conn,
		cfg:      cfg,
		chain:    chain,
		sessions: NewSessionHandler(st, cfg),
		voting:   NewVotingHandler(coord, cfg),
		results:  NewResultsHandler(st, svc, cfg),
	}
}

// castVote posts a ballot for candidateID as account from wallet.
func (e *testEnv) castVote(t *testing.T, sessionID, candidateID string, account models.Account, wallet string) *httptest.ResponseRecorder {
	t.Helper()

	headers := map[string]string{
		"Authorization":                testutil.AccountToken(t, e.cfg, account),
		middleware.HeaderWalletAddress: wallet,
	}
	req := testutil.MakeRequest("POST", "/sessions/"+sessionID+"/votes", models.CastVoteRequest{CandidateID: candidateID}, headers)
	req.SetPathValue("id", sessionID)
	w := httptest.NewRecorder()
	e.voting.CastVote(w, req)
	return w
}

func get(handler http.HandlerFunc, path, name, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	if name != "" {
		req.SetPathValue(name, value)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func wallet(i int) string {
	const hex = "0123456789abcdef"
	b := []byte("0x0000000000000000000000000000000000000000")
	b[len(b)-1] = hex[i%16]
	b[len(b)-2] = hex[(i/16)%16]
	return string(b)
}

// testTime is now offset by hours.
func testTime(hours int) time.Time {
	return time.Now().Add(time.Duration(hours) * time.Hour)
}
