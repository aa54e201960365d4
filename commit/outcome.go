// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package commit

import (
	"fmt"
	"strings"

	"github.com/danielhkuo/chainballot/eligibility"
	"github.com/danielhkuo/chainballot/voteerr"
)

// Kind is the structured outcome reported to the UI layer.
type Kind string

const (
	KindEligible            Kind = "eligible"
	KindIneligible          Kind = "ineligible"
	KindCommitted           Kind = "committed"
	KindRecordedOnChainOnly Kind = "recorded_on_chain_only"
	KindFailed              Kind = "failed"
)

const duplicateAdvisory = "A second submission was detected and deduplicated; the ledger transaction above is your proof of vote."

type Outcome struct {
	Kind        Kind           `json:"outcome"`
	Reason      voteerr.Reason `json:"reason,omitempty"`
	ErrorKind   voteerr.Kind   `json:"error_kind,omitempty"`
	Message     string         `json:"message,omitempty"`
	Advisory    string         `json:"advisory,omitempty"`
	TxHash      string         `json:"tx_hash,omitempty"`
	VoteID      string         `json:"vote_id,omitempty"`
	ExplorerURL string         `json:"explorer_url,omitempty"`
	Retryable   bool           `json:"retryable"`
}

// KindFor maps a taxonomy reason to the outcome it produces.
func KindFor(reason voteerr.Reason) Kind {
	switch reason.Kind() {
	case voteerr.KindWindow, voteerr.KindIdentity, voteerr.KindEligibility, voteerr.KindInvalid:
		return KindIneligible
	case voteerr.KindPersistenceConflict:
		return KindRecordedOnChainOnly
	}
	return KindFailed
}

// OutcomeFor converts a Commit return into the structured outcome. Errors
// without a taxonomy reason are reported as transient failures.
func OutcomeFor(res Result, err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindCommitted, TxHash: res.TxHash, VoteID: res.VoteID}
	}
	return failureOutcome(err, res.TxHash)
}

// EvaluationOutcome converts an eligibility check into an outcome.
func EvaluationOutcome(r eligibility.Result, err error) Outcome {
	if err != nil {
		return failureOutcome(err, "")
	}
	if r.Eligible {
		return Outcome{Kind: KindEligible}
	}
	return failureOutcome(r.Err(), "")
}

func failureOutcome(err error, txHash string) Outcome {
	ve := asVoteError(err)
	o := Outcome{
		Kind:      KindFor(ve.Reason),
		Reason:    ve.Reason,
		ErrorKind: ve.Kind(),
		Message:   ve.Reason.Message(),
		TxHash:    txHash,
		Retryable: ve.Retryable(),
	}
	if ve.Detail != "" {
		o.Message += " (" + ve.Detail + ")"
	}
	if o.Kind == KindRecordedOnChainOnly {
		o.Advisory = duplicateAdvisory
	}
	return o
}

func asVoteError(err error) *voteerr.Error {
	if reason, ok := voteerr.ReasonOf(err); ok {
		ve := &voteerr.Error{Reason: reason}
		if e, ok := err.(*voteerr.Error); ok {
			ve.Detail = e.Detail
		}
		return ve
	}
	return voteerr.New(voteerr.Transient, err)
}

// WithExplorer fills ExplorerURL from a printf format such as
// "https://sepolia.etherscan.io/tx/%s".
func (o Outcome) WithExplorer(format string) Outcome {
	if o.TxHash != "" && strings.Contains(format, "%s") {
		o.ExplorerURL = fmt.Sprintf(format, o.TxHash)
	}
	return o
}
