// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/chainballot/auth"
	"github.com/danielhkuo/chainballot/cliparse"
	"github.com/danielhkuo/chainballot/commit"
	"github.com/danielhkuo/chainballot/fingerprint"
	"github.com/danielhkuo/chainballot/middleware"
	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/voteerr"
)

type VotingHandler struct {
	coord *commit.Coordinator
	cfg   cliparse.Config
}

func NewVotingHandler(coord *commit.Coordinator, cfg cliparse.Config) *VotingHandler {
	return &VotingHandler{coord: coord, cfg: cfg}
}

// CheckEligibility handles POST /sessions/{id}/eligibility
// Answers whether the caller could vote right now. Always 200 for a
// decision; the outcome body carries the reason.
func (h *VotingHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	account, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req models.EligibilityRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	res, err := h.coord.Check(r.Context(), commit.Request{
		SessionID:     r.PathValue("id"),
		Account:       account,
		WalletAddress: r.Header.Get(middleware.HeaderWalletAddress),
		IdentityValue: req.IdentityValue,
		Device:        fingerprint.DeviceFromRequest(r, req.Device),
	})
	outcome := commit.EvaluationOutcome(res, err)
	if err != nil {
		middleware.JSONResponse(w, statusFor(outcome), outcome)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, outcome)
}

// CastVote handles POST /sessions/{id}/votes
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	account, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.CandidateID) == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "candidate_id is required")
		return
	}

	res, err := h.coord.Commit(r.Context(), commit.Request{
		SessionID:     r.PathValue("id"),
		CandidateID:   req.CandidateID,
		Account:       account,
		WalletAddress: r.Header.Get(middleware.HeaderWalletAddress),
		IdentityValue: req.IdentityValue,
		Device:        fingerprint.DeviceFromRequest(r, req.Device),
	})
	outcome := commit.OutcomeFor(res, err).WithExplorer(h.cfg.ExplorerTxURL)
	if err != nil {
		if _, ok := voteerr.ReasonOf(err); !ok {
			slog.Error("vote commit failed", "session_id", r.PathValue("id"), "error", err)
		}
	}

	middleware.JSONResponse(w, statusFor(outcome), outcome)
}

func (h *VotingHandler) authenticate(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	account, err := auth.AccountFromRequest(r, h.cfg.AuthJWTSecret)
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Authorization header required")
		return models.Account{}, false
	case err != nil:
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid account token")
		return models.Account{}, false
	}
	return account, true
}

// statusFor maps an outcome to its HTTP status.
func statusFor(o commit.Outcome) int {
	switch o.Kind {
	case commit.KindCommitted:
		return http.StatusCreated
	case commit.KindEligible, commit.KindRecordedOnChainOnly:
		return http.StatusOK
	}

	switch o.Reason {
	case voteerr.SessionNotFound:
		return http.StatusNotFound
	case voteerr.UnknownCandidate:
		return http.StatusBadRequest
	case voteerr.NoProvider, voteerr.UserRejected, voteerr.NetworkMismatch:
		return http.StatusUnprocessableEntity
	case voteerr.ProviderTimeout:
		return http.StatusGatewayTimeout
	case voteerr.RetriesExhausted:
		return http.StatusTooManyRequests
	case voteerr.Transient:
		return http.StatusServiceUnavailable
	}

	switch o.ErrorKind {
	case voteerr.KindWindow, voteerr.KindIdentity:
		return http.StatusForbidden
	case voteerr.KindEligibility:
		return http.StatusConflict
	case voteerr.KindProvider, voteerr.KindLedger:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
