// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielhkuo/chainballot/cliparse"
	"github.com/danielhkuo/chainballot/commit"
	"github.com/danielhkuo/chainballot/handlers"
	"github.com/danielhkuo/chainballot/ledger"
	"github.com/danielhkuo/chainballot/metrics"
	"github.com/danielhkuo/chainballot/middleware"
	"github.com/danielhkuo/chainballot/store"
)

// Deps are the shared services the routes are built on.
type Deps struct {
	Config      cliparse.Config
	Store       store.Store
	Ledger      *ledger.Service
	Coordinator *commit.Coordinator
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics. Nil omits the route.
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(d.Store, d.Config)
	votingHandler := handlers.NewVotingHandler(d.Coordinator, d.Config)
	resultsHandler := handlers.NewResultsHandler(d.Store, d.Ledger, d.Config)
	limiter := middleware.NewRateLimiter(d.Config.RateLimitRPS, d.Config.RateLimitBurst, d.Config.IPHashSalt, d.Metrics)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// Sessions (public)
	mux.HandleFunc("GET /sessions", middleware.WithLogging(sessionHandler.ListSessions))
	mux.HandleFunc("GET /sessions/{id}", middleware.WithLogging(sessionHandler.GetSession))

	// Voting (account token required, rate limited per client)
	mux.HandleFunc("POST /sessions/{id}/eligibility", middleware.WithLogging(limiter.Limit(votingHandler.CheckEligibility)))
	mux.HandleFunc("POST /sessions/{id}/votes", middleware.WithLogging(limiter.Limit(votingHandler.CastVote)))

	// Results (sealed until the session ends) and ledger lookups
	mux.HandleFunc("GET /sessions/{id}/results", middleware.WithLogging(resultsHandler.GetResults))
	mux.HandleFunc("GET /sessions/{id}/audit", middleware.WithLogging(resultsHandler.GetAudit))
	mux.HandleFunc("GET /receipts/{tx}", middleware.WithLogging(resultsHandler.GetReceipt))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("chainballot API v1"))
	})

	return mux
}
