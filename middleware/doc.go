// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging and Metrics

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))
	server.Handler = middleware.Instrument(m, middleware.CORS(mux))

WithLogging logs request start (method, path) and completion (status,
duration_ms). Instrument feeds the request duration histogram and the
in-flight gauge.

# Rate Limiting

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.IPHashSalt, m)
	mux.HandleFunc("POST /sessions/{id}/votes", limiter.Limit(handler))

One token bucket per client, keyed by auth.HashIP of the client address.
Rejected requests answer 429 with Retry-After.

# CORS Middleware

Allows GET, POST, OPTIONS with headers Content-Type, Authorization,
X-Wallet-Address and X-Device-UUID.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Client IP Extraction

	ip := middleware.GetClientIP(r)

Checks X-Forwarded-For, X-Real-IP, then RemoteAddr.
*/
package middleware
