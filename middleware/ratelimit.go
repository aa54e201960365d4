// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/danielhkuo/chainballot/auth"
	"github.com/danielhkuo/chainballot/metrics"
)

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// RateLimiter throttles requests per client. Clients are keyed by a salted
// hash of their IP so raw addresses are never held in memory.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	salt     string
	idle     time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRateLimiter(rps float64, burst int, salt string, m *metrics.Metrics) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		salt:     salt,
		idle:     10 * time.Minute,
		metrics:  m,
		now:      time.Now,
	}
}

// Allow reports whether the client identified by ip may proceed now.
func (l *RateLimiter) Allow(ip string) bool {
	key := auth.HashIP(ip, l.salt)
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.seen = now
	l.sweep(now)
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// sweep drops visitors idle longer than l.idle. Callers hold l.mu.
func (l *RateLimiter) sweep(now time.Time) {
	if len(l.visitors) < 1024 {
		return
	}
	for k, v := range l.visitors {
		if now.Sub(v.seen) > l.idle {
			delete(l.visitors, k)
		}
	}
}

// Limit wraps next with the limiter. Rejected requests get 429.
func (l *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(GetClientIP(r)) {
			l.metrics.IncRateLimited()
			slog.Warn("rate limited", "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			ErrorResponse(w, http.StatusTooManyRequests, "Too many requests; slow down")
			return
		}
		next(w, r)
	}
}
