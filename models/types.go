// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Access policy constants
const (
	AccessOpen         = "open"
	AccessOrganization = "organization"
	AccessRestricted   = "restricted"
)

// Identity verification kinds
const (
	VerifyNone     = "none"
	VerifyEmployee = "employee"
	VerifyStudent  = "student"
	VerifyStaff    = "staff"
	VerifyCustom   = "custom"
)

// Session lifecycle states
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusEnded     = "ended"
)

// Domain types

type VotingSession struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	CreatorID      string    `json:"creator_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	AccessType     string    `json:"access_type"`
	IDVerification string    `json:"id_verification_type"`
	ResultsVisible bool      `json:"results_visible"`
	Published      bool      `json:"published"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// RequiresIdentity reports whether voters must present an authorized identity.
func (s VotingSession) RequiresIdentity() bool {
	return s.IDVerification != "" && s.IDVerification != VerifyNone
}

type Candidate struct {
	ID          string `json:"id"`
	SessionID   string `json:"voting_session_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position"`
}

type AuthorizedIdentity struct {
	ID             string    `json:"id"`
	Kind           string    `json:"id_type"`
	Value          string    `json:"id_value"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Vote is the immutable audit record written once per commit.
type Vote struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"voting_session_id"`
	CandidateID   string    `json:"candidate_id"`
	VoterID       string    `json:"-"` // Never expose in JSON
	WalletAddress string    `json:"voter_wallet_address,omitempty"`
	VerifiedID    string    `json:"-"` // Never expose in JSON
	TxHash        string    `json:"blockchain_tx_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// VoteDraft is the input to RecordVote; the store assigns ID and CreatedAt.
type VoteDraft struct {
	SessionID     string
	CandidateID   string
	VoterID       string
	WalletAddress string
	VerifiedID    string
	TxHash        string
}

// Account is the authenticated subject supplied by the auth context.
type Account struct {
	ID             string
	OrganizationID string
}

// Request types

// DeviceSignals are the environment probes a client reports alongside a vote.
type DeviceSignals struct {
	ScreenWidth         int     `json:"screen_width,omitempty"`
	ScreenHeight        int     `json:"screen_height,omitempty"`
	ColorDepth          int     `json:"color_depth,omitempty"`
	TimezoneOffset      *int    `json:"timezone_offset,omitempty"`
	Canvas              string  `json:"canvas,omitempty"`
	CanvasError         bool    `json:"canvas_error,omitempty"`
	WebGL               string  `json:"webgl,omitempty"`
	WebGLError          bool    `json:"webgl_error,omitempty"`
	HardwareConcurrency int     `json:"hardware_concurrency,omitempty"`
	DeviceMemory        float64 `json:"device_memory,omitempty"`
}

type EligibilityRequest struct {
	IdentityValue string        `json:"identity_value,omitempty"`
	Device        DeviceSignals `json:"device"`
}

type CastVoteRequest struct {
	CandidateID   string        `json:"candidate_id"`
	IdentityValue string        `json:"identity_value,omitempty"`
	Device        DeviceSignals `json:"device"`
}

// Response types

type SessionSummary struct {
	Session       VotingSession `json:"session"`
	Status        string        `json:"status"`
	StatusLabel   string        `json:"status_label"`
	CanVote       bool          `json:"can_vote"`
	TimeRemaining string        `json:"time_remaining"`
	TotalVotes    int           `json:"total_votes"`
}

type SessionDetail struct {
	SessionSummary
	Candidates []Candidate `json:"candidates"`
}

type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

type CandidateTally struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Position    int    `json:"position"`
	Votes       uint64 `json:"votes"`
}

type ResultsResponse struct {
	SessionID string           `json:"session_id"`
	Status    string           `json:"status"`
	Tallies   []CandidateTally `json:"tallies"`
	Total     uint64           `json:"total"`
}

type AuditLine struct {
	CandidateID string `json:"candidate_id"`
	LedgerVotes uint64 `json:"ledger_votes"`
	StoreVotes  int    `json:"store_votes"`
	Match       bool   `json:"match"`
}

type AuditResponse struct {
	SessionID  string      `json:"session_id"`
	Lines      []AuditLine `json:"lines"`
	Consistent bool        `json:"consistent"`
}

type ReceiptResponse struct {
	TxHash      string    `json:"tx_hash"`
	Status      string    `json:"status"`
	SessionKey  string    `json:"session_key"`
	CandidateID string    `json:"candidate_id"`
	Voter       string    `json:"voter_address"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
	ExplorerURL string    `json:"explorer_url,omitempty"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
