// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics holds the Prometheus collectors for the vote path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	CommitOutcomes   *prometheus.CounterVec
	Evaluations      *prometheus.CounterVec
	LedgerSubmit     *prometheus.HistogramVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	RateLimited      prometheus.Counter
	DeviceMarkErrors prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommitOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainballot_commit_outcomes_total",
				Help: "Vote commits by outcome kind and reason.",
			},
			[]string{"outcome", "reason"},
		),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainballot_eligibility_evaluations_total",
				Help: "Eligibility evaluations by result reason (empty when eligible).",
			},
			[]string{"reason"},
		),
		LedgerSubmit: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainballot_ledger_submit_duration_seconds",
				Help:    "Time from ledger dispatch to a confirmed or failed receipt.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainballot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chainballot_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chainballot_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter.",
			},
		),
		DeviceMarkErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chainballot_device_mark_errors_total",
				Help: "Failed writes of advisory device marks.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.CommitOutcomes,
			m.Evaluations,
			m.LedgerSubmit,
			m.RequestDuration,
			m.RequestsInFlight,
			m.RateLimited,
			m.DeviceMarkErrors,
		)
	}
	return m
}

func (m *Metrics) ObserveCommit(outcome, reason string) {
	if m == nil {
		return
	}
	m.CommitOutcomes.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) ObserveEvaluation(reason string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveLedgerSubmit(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.LedgerSubmit.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.RequestsInFlight.Add(delta)
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) IncDeviceMarkError() {
	if m == nil {
		return
	}
	m.DeviceMarkErrors.Inc()
}
