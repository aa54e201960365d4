// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/chainballot/cliparse"
	"github.com/danielhkuo/chainballot/middleware"
	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/store"
)

type SessionHandler struct {
	store store.Store
	cfg   cliparse.Config
	now   func() time.Time
}

func NewSessionHandler(s store.Store, cfg cliparse.Config) *SessionHandler {
	return &SessionHandler{store: s, cfg: cfg, now: time.Now}
}

// ListSessions handles GET /sessions
// Only published sessions are listed, newest window first
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	now := h.now()
	response := models.ListSessionsResponse{Sessions: make([]models.SessionSummary, 0, len(sessions))}
	for _, s := range sessions {
		summary, err := h.summarize(r, s, now)
		if err != nil {
			slog.Error("failed to count votes", "session_id", s.ID, "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		response.Sessions = append(response.Sessions, summary)
	}

	middleware.JSONResponse(w, http.StatusOK, response)
}

// GetSession handles GET /sessions/{id}
// Returns the session and its ballot, never per-candidate counts
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := loadPublished(w, r, h.store)
	if !ok {
		return
	}

	candidates, err := h.store.GetCandidates(r.Context(), session.ID)
	if err != nil {
		slog.Error("failed to query candidates", "session_id", session.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	summary, err := h.summarize(r, session, h.now())
	if err != nil {
		slog.Error("failed to count votes", "session_id", session.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.SessionDetail{
		SessionSummary: summary,
		Candidates:     candidates,
	})
}

func (h *SessionHandler) summarize(r *http.Request, s models.VotingSession, now time.Time) (models.SessionSummary, error) {
	counts, err := h.store.CountVotes(r.Context(), s.ID)
	if err != nil {
		return models.SessionSummary{}, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	status := s.Status(now)
	return models.SessionSummary{
		Session:       s,
		Status:        status,
		StatusLabel:   models.StatusLabel(status),
		CanVote:       status == models.StatusActive,
		TimeRemaining: s.TimeRemaining(now),
		TotalVotes:    total,
	}, nil
}

// loadPublished reads the {id} session and writes 404 for missing or draft
// sessions. It reports whether the caller should continue.
func loadPublished(w http.ResponseWriter, r *http.Request, st store.Store) (models.VotingSession, bool) {
	id := r.PathValue("id")
	if id == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "session id is required")
		return models.VotingSession{}, false
	}

	session, err := st.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !session.Published) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Session not found")
		return models.VotingSession{}, false
	}
	if err != nil {
		slog.Error("failed to query session", "session_id", id, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return models.VotingSession{}, false
	}
	return session, true
}
