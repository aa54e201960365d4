// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/chainballot/cliparse"
	"github.com/danielhkuo/chainballot/ledger"
	"github.com/danielhkuo/chainballot/middleware"
	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/store"
)

type ResultsHandler struct {
	store  store.Store
	ledger *ledger.Service
	cfg    cliparse.Config
	now    func() time.Time
}

func NewResultsHandler(s store.Store, l *ledger.Service, cfg cliparse.Config) *ResultsHandler {
	return &ResultsHandler{store: s, ledger: l, cfg: cfg, now: time.Now}
}

// GetResults handles GET /sessions/{id}/results
// Tallies come from the ledger and count confirmed votes only. Returns 403
// while results are sealed.
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	session, candidates, ok := h.loadUnsealed(w, r)
	if !ok {
		return
	}

	tallies, err := h.ledger.Tallies(r.Context(), session.ID, candidateIDs(candidates))
	if err != nil {
		slog.Error("failed to read ledger tallies", "session_id", session.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Ledger unavailable")
		return
	}

	response := models.ResultsResponse{
		SessionID: session.ID,
		Status:    session.Status(h.now()),
		Tallies:   make([]models.CandidateTally, 0, len(candidates)),
	}
	for _, c := range candidates {
		n := tallies[c.ID]
		response.Tallies = append(response.Tallies, models.CandidateTally{
			CandidateID: c.ID,
			Name:        c.Name,
			Position:    c.Position,
			Votes:       n,
		})
		response.Total += n
	}

	middleware.JSONResponse(w, http.StatusOK, response)
}

// GetAudit handles GET /sessions/{id}/audit
// Compares the ledger tally with the store's vote records per candidate.
func (h *ResultsHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	session, candidates, ok := h.loadUnsealed(w, r)
	if !ok {
		return
	}

	tallies, err := h.ledger.Tallies(r.Context(), session.ID, candidateIDs(candidates))
	if err != nil {
		slog.Error("failed to read ledger tallies", "session_id", session.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Ledger unavailable")
		return
	}
	counts, err := h.store.CountVotes(r.Context(), session.ID)
	if err != nil {
		slog.Error("failed to count votes", "session_id", session.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	response := models.AuditResponse{SessionID: session.ID, Consistent: true}
	for _, c := range candidates {
		line := models.AuditLine{
			CandidateID: c.ID,
			LedgerVotes: tallies[c.ID],
			StoreVotes:  counts[c.ID],
		}
		line.Match = line.LedgerVotes == uint64(line.StoreVotes)
		response.Consistent = response.Consistent && line.Match
		response.Lines = append(response.Lines, line)
	}
	if !response.Consistent {
		slog.Warn("ledger and store disagree", "session_id", session.ID)
	}

	middleware.JSONResponse(w, http.StatusOK, response)
}

// GetReceipt handles GET /receipts/{tx}
func (h *ResultsHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(strings.TrimSpace(r.PathValue("tx")))
	if hash == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "transaction hash is required")
		return
	}

	receipt, err := h.ledger.Receipt(r.Context(), hash)
	if errors.Is(err, ledger.ErrTxNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		slog.Error("failed to read receipt", "tx_hash", hash, "error", err)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Ledger unavailable")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ReceiptResponse{
		TxHash:      receipt.Hash,
		Status:      receipt.Status.String(),
		SessionKey:  receipt.SessionKey,
		CandidateID: receipt.CandidateID,
		Voter:       receipt.Voter,
		BlockNumber: receipt.BlockNumber,
		Timestamp:   receipt.Timestamp,
		ExplorerURL: explorerURL(h.cfg.ExplorerTxURL, receipt.Hash),
	})
}

// loadUnsealed loads a published session and its candidates, answering 403
// while results are sealed: until the window ends unless the session shows
// results live.
func (h *ResultsHandler) loadUnsealed(w http.ResponseWriter, r *http.Request) (models.VotingSession, []models.Candidate, bool) {
	session, ok := loadPublished(w, r, h.store)
	if !ok {
		return models.VotingSession{}, nil, false
	}

	if !session.ResultsVisible && session.Status(h.now()) != models.StatusEnded {
		middleware.ErrorResponse(w, http.StatusForbidden, "Results are hidden until the session ends")
		return models.VotingSession{}, nil, false
	}

	candidates, err := h.store.GetCandidates(r.Context(), session.ID)
	if err != nil {
		slog.Error("failed to query candidates", "session_id", session.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return models.VotingSession{}, nil, false
	}
	return session, candidates, true
}

func candidateIDs(candidates []models.Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}

func explorerURL(format, hash string) string {
	if format == "" || hash == "" || !strings.Contains(format, "%s") {
		return ""
	}
	return fmt.Sprintf(format, hash)
}
