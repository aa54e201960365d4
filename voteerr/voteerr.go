// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package voteerr is the error taxonomy shared by the eligibility engine,
// the commit coordinator, and the HTTP layer.
package voteerr

import (
	"errors"
	"fmt"
)

// Kind is the top-level error class a reason belongs to.
type Kind string

const (
	KindWindow              Kind = "window"
	KindIdentity            Kind = "identity"
	KindEligibility         Kind = "eligibility"
	KindProvider            Kind = "provider"
	KindLedger              Kind = "ledger"
	KindPersistenceConflict Kind = "persistence_conflict"
	KindTransient           Kind = "transient"
	KindInvalid             Kind = "invalid"
)

// Reason is the specific, user-visible cause of a rejection or failure.
type Reason string

const (
	OutsideWindow       Reason = "outside_window"
	SessionNotPublished Reason = "session_not_published"

	IdentityRequired  Reason = "identity_required"
	IdentityInvalid   Reason = "identity_invalid"
	NotInOrganization Reason = "not_in_organization"

	AlreadyVotedAccount  Reason = "already_voted_account"
	AlreadyVotedChain    Reason = "already_voted_chain"
	AlreadyVotedDevice   Reason = "already_voted_device"
	AlreadyVotedIdentity Reason = "already_voted_identity"

	NoProvider      Reason = "no_provider"
	UserRejected    Reason = "user_rejected"
	NetworkMismatch Reason = "network_mismatch"
	ProviderTimeout Reason = "provider_timeout"
	ProviderFailure Reason = "provider_error"

	TxReverted Reason = "tx_reverted"

	RecordedOnChainOnly Reason = "recorded_on_chain_only"

	Transient Reason = "transient"

	SessionNotFound  Reason = "session_not_found"
	UnknownCandidate Reason = "unknown_candidate"
	RetriesExhausted Reason = "retries_exhausted"
)

var reasons = map[Reason]struct {
	kind    Kind
	message string
}{
	OutsideWindow:        {KindWindow, "Voting is not open for this session right now"},
	SessionNotPublished:  {KindWindow, "This session has not been published"},
	IdentityRequired:     {KindIdentity, "This session requires an authorized identity"},
	IdentityInvalid:      {KindIdentity, "The identity provided is not authorized for this session"},
	NotInOrganization:    {KindIdentity, "This session is limited to members of its organization"},
	AlreadyVotedAccount:  {KindEligibility, "You have already voted in this session"},
	AlreadyVotedChain:    {KindEligibility, "This wallet has already voted in this session"},
	AlreadyVotedDevice:   {KindEligibility, "A vote has already been cast in this session from this device"},
	AlreadyVotedIdentity: {KindEligibility, "This identity has already been used to vote in this session"},
	NoProvider:           {KindProvider, "No wallet provider is available"},
	UserRejected:         {KindProvider, "The wallet request was rejected"},
	NetworkMismatch:      {KindProvider, "The wallet is connected to the wrong network"},
	ProviderTimeout:      {KindProvider, "The wallet did not respond in time"},
	ProviderFailure:      {KindProvider, "The wallet provider returned an error"},
	TxReverted:           {KindLedger, "The vote transaction was reverted"},
	RecordedOnChainOnly:  {KindPersistenceConflict, "Your vote is on the ledger; a duplicate submission was detected and deduplicated"},
	Transient:            {KindTransient, "A temporary error occurred; please try again"},
	SessionNotFound:      {KindInvalid, "Session not found"},
	UnknownCandidate:     {KindInvalid, "Candidate does not belong to this session"},
	RetriesExhausted:     {KindProvider, "Too many failed attempts for this vote"},
}

// Kind returns the class of r, or KindTransient for unknown reasons.
func (r Reason) Kind() Kind {
	if info, ok := reasons[r]; ok {
		return info.kind
	}
	return KindTransient
}

// Message returns the human-readable text for r.
func (r Reason) Message() string {
	if info, ok := reasons[r]; ok {
		return info.message
	}
	return string(r)
}

// Error is a taxonomy error. Detail is optional extra context for users;
// Err is the underlying cause and is not shown to users.
type Error struct {
	Reason Reason
	Detail string
	Err    error
}

// New returns an Error for reason wrapping err (which may be nil).
func New(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// Newf returns an Error for reason with a formatted detail.
func Newf(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the class of the error's reason.
func (e *Error) Kind() Kind {
	return e.Reason.Kind()
}

// Retryable reports whether a fresh attempt may succeed. Already-voted and
// persistence conflicts are final; everything else can be retried once the
// condition is corrected.
func (e *Error) Retryable() bool {
	switch e.Kind() {
	case KindEligibility, KindPersistenceConflict:
		return false
	}
	return e.Reason != RetriesExhausted
}

// ReasonOf extracts the taxonomy reason from err.
func ReasonOf(err error) (Reason, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

// Is reports whether err carries reason.
func Is(err error, reason Reason) bool {
	r, ok := ReasonOf(err)
	return ok && r == reason
}
