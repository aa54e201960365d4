// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveCommit("committed", "")
	m.ObserveEvaluation("")
	m.ObserveLedgerSubmit("confirmed", time.Second)
	m.ObserveRequest("GET", "200", time.Millisecond)
	m.InFlight(1)
	m.IncRateLimited()
	m.IncDeviceMarkError()
}

func TestCollectorsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommit("ineligible", "already_voted_account")
	m.ObserveCommit("ineligible", "already_voted_account")
	m.ObserveCommit("committed", "")
	m.IncRateLimited()

	if got := testutil.ToFloat64(m.CommitOutcomes.WithLabelValues("ineligible", "already_voted_account")); got != 2 {
		t.Errorf("ineligible count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RateLimited); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}

	n, err := testutil.GatherAndCount(reg, "chainballot_commit_outcomes_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("series = %d, want 2", n)
	}
}
