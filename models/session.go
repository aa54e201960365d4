// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"errors"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	ErrInvalidWindow       = errors.New("session end must be after start")
	ErrInvalidAccessType   = errors.New("invalid access type")
	ErrInvalidVerification = errors.New("invalid id verification type")
	ErrRestrictedNoKind    = errors.New("restricted sessions require an id verification type")
)

// InWindow reports whether now falls inside the half-open window [start, end).
func InWindow(now, start, end time.Time) bool {
	return !now.Before(start) && now.Before(end)
}

// StatusAt derives the lifecycle state from the published flag and the
// wall clock. It never reads a stored status, so it cannot regress.
func StatusAt(now time.Time, published bool, start, end time.Time) string {
	if !published {
		return StatusDraft
	}
	if now.Before(start) {
		return StatusScheduled
	}
	if now.Before(end) {
		return StatusActive
	}
	return StatusEnded
}

// Status is StatusAt for this session.
func (s VotingSession) Status(now time.Time) string {
	return StatusAt(now, s.Published, s.StartTime, s.EndTime)
}

// StatusLabel returns the display label for a status.
func StatusLabel(status string) string {
	switch status {
	case StatusScheduled:
		return "Upcoming"
	case StatusActive:
		return "Live Now"
	case StatusEnded:
		return "Ended"
	}
	return "Draft"
}

// TimeRemaining describes the window relative to now, e.g. "closes 3 hours from now".
func (s VotingSession) TimeRemaining(now time.Time) string {
	switch s.Status(now) {
	case StatusDraft:
		return "Not published"
	case StatusScheduled:
		return "opens " + humanize.RelTime(s.StartTime, now, "ago", "from now")
	case StatusActive:
		return "closes " + humanize.RelTime(s.EndTime, now, "ago", "from now")
	}
	return "Ended " + humanize.RelTime(s.EndTime, now, "ago", "from now")
}

// Validate checks the invariants a session must satisfy before voting.
func (s VotingSession) Validate() error {
	if !s.EndTime.After(s.StartTime) {
		return ErrInvalidWindow
	}
	switch s.AccessType {
	case AccessOpen, AccessOrganization, AccessRestricted:
	default:
		return ErrInvalidAccessType
	}
	if !IsVerificationKind(s.IDVerification) {
		return ErrInvalidVerification
	}
	if s.AccessType == AccessRestricted && !s.RequiresIdentity() {
		return ErrRestrictedNoKind
	}
	return nil
}

// IsVerificationKind reports whether kind is a known verification kind.
func IsVerificationKind(kind string) bool {
	switch kind {
	case VerifyNone, VerifyEmployee, VerifyStudent, VerifyStaff, VerifyCustom:
		return true
	}
	return false
}

// NormalizeAddress canonicalizes a wallet address for comparison and storage.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
