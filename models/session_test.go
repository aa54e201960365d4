// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"strings"
	"testing"
	"time"
)

func TestStatusAt(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name      string
		now       time.Time
		published bool
		want      string
	}{
		{"unpublished is draft", start.Add(time.Minute), false, StatusDraft},
		{"before start", start.Add(-time.Nanosecond), true, StatusScheduled},
		{"at start", start, true, StatusActive},
		{"mid window", start.Add(30 * time.Minute), true, StatusActive},
		{"just before end", end.Add(-time.Nanosecond), true, StatusActive},
		{"at end", end, true, StatusEnded},
		{"after end", end.Add(time.Hour), true, StatusEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusAt(tt.now, tt.published, start, end); got != tt.want {
				t.Errorf("StatusAt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInWindow(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	if !InWindow(start, start, end) {
		t.Error("start should be inside the window")
	}
	if InWindow(end, start, end) {
		t.Error("end should be outside the window")
	}
}

func TestValidate(t *testing.T) {
	start := time.Now()
	base := VotingSession{
		AccessType:     AccessOpen,
		IDVerification: VerifyNone,
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
	}

	tests := []struct {
		name    string
		mutate  func(s *VotingSession)
		wantErr error
	}{
		{"valid", func(s *VotingSession) {}, nil},
		{"empty window", func(s *VotingSession) { s.EndTime = s.StartTime }, ErrInvalidWindow},
		{"bad access", func(s *VotingSession) { s.AccessType = "public" }, ErrInvalidAccessType},
		{"bad kind", func(s *VotingSession) { s.IDVerification = "passport" }, ErrInvalidVerification},
		{"restricted without kind", func(s *VotingSession) { s.AccessType = AccessRestricted }, ErrRestrictedNoKind},
		{"restricted with kind", func(s *VotingSession) {
			s.AccessType = AccessRestricted
			s.IDVerification = VerifyStudent
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			if err := s.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeRemaining(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := VotingSession{Published: true, StartTime: start, EndTime: start.Add(3 * time.Hour)}

	if got := s.TimeRemaining(start.Add(-2 * time.Hour)); !strings.HasPrefix(got, "opens ") || !strings.HasSuffix(got, "from now") {
		t.Errorf("scheduled TimeRemaining() = %q", got)
	}
	if got := s.TimeRemaining(start.Add(time.Hour)); !strings.HasPrefix(got, "closes ") {
		t.Errorf("active TimeRemaining() = %q", got)
	}
	if got := s.TimeRemaining(start.Add(4 * time.Hour)); !strings.HasSuffix(got, "ago") {
		t.Errorf("ended TimeRemaining() = %q", got)
	}
}
