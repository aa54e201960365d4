// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package eligibility

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danielhkuo/chainballot/voteerr"
)

// State is the position of one voter interaction in the commit lifecycle.
type State int

const (
	Unchecked State = iota
	Eligible
	Ineligible
	Submitting
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Eligible:
		return "eligible"
	case Ineligible:
		return "ineligible"
	case Submitting:
		return "submitting"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Ineligible || s == Committed
}

var ErrInvalidTransition = errors.New("invalid flow transition")

// PendingVote is a transaction that was broadcast but not seen confirmed
// before its attempt ended. It holds what the ledger was asked to record.
type PendingVote struct {
	TxHash        string
	CandidateID   string
	WalletAddress string
	IdentityValue string
}

// Flow tracks one (session, voter) interaction:
//
//	Unchecked → Eligible → Submitting → Committed
//	Unchecked → Ineligible
//	Submitting → Failed → Eligible (bounded), then Failed for good
//	Failed (pending tx) → Submitting, once the tx is seen confirmed
type Flow struct {
	mu         sync.Mutex
	state      State
	reason     voteerr.Reason
	retries    int
	maxRetries int
	exhausted  bool
	pending    *PendingVote
}

func NewFlow(maxRetries int) *Flow {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Flow{state: Unchecked, maxRetries: maxRetries}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Reason is the rejection or failure reason of the last transition.
func (f *Flow) Reason() voteerr.Reason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// Retries is how many times the flow has returned from Failed to Eligible.
func (f *Flow) Retries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries
}

func (f *Flow) invalid(to State) error {
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, f.state, to)
}

// Apply records an eligibility decision. A fresh evaluation is accepted in
// Unchecked or Eligible; a Failed flow must Retry first.
func (f *Flow) Apply(r Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Unchecked && f.state != Eligible {
		if r.Eligible {
			return f.invalid(Eligible)
		}
		return f.invalid(Ineligible)
	}
	if r.Eligible {
		f.state, f.reason = Eligible, ""
		return nil
	}
	f.state, f.reason = Ineligible, r.Reason
	return nil
}

// BeginSubmit moves Eligible to Submitting.
func (f *Flow) BeginSubmit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Eligible {
		return f.invalid(Submitting)
	}
	f.state = Submitting
	return nil
}

// Commit moves Submitting to Committed.
func (f *Flow) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Submitting {
		return f.invalid(Committed)
	}
	f.state, f.reason, f.pending = Committed, "", nil
	return nil
}

// Reject moves Submitting to Ineligible, as when the ledger reports the
// address already voted.
func (f *Flow) Reject(reason voteerr.Reason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Submitting {
		return f.invalid(Ineligible)
	}
	f.state, f.reason, f.pending = Ineligible, reason, nil
	return nil
}

// Fail moves Submitting to Failed.
func (f *Flow) Fail(reason voteerr.Reason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Submitting {
		return f.invalid(Failed)
	}
	f.state, f.reason = Failed, reason
	f.exhausted = f.retries >= f.maxRetries
	return nil
}

// FailPending moves Submitting to Failed and remembers a transaction that
// may still confirm. The next attempt must look it up before sending again.
func (f *Flow) FailPending(reason voteerr.Reason, p PendingVote) error {
	if err := f.Fail(reason); err != nil {
		return err
	}
	f.mu.Lock()
	f.pending = &p
	f.mu.Unlock()
	return nil
}

// Pending returns the unresolved transaction of a Failed flow.
func (f *Flow) Pending() (PendingVote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return PendingVote{}, false
	}
	return *f.pending, true
}

// DropPending forgets the pending transaction once the ledger shows it
// reverted or never included.
func (f *Flow) DropPending() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
}

// Resume moves a Failed flow whose pending transaction confirmed back to
// Submitting without spending a retry.
func (f *Flow) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Failed || f.pending == nil {
		return f.invalid(Submitting)
	}
	f.state, f.reason = Submitting, ""
	return nil
}

// Retry returns a Failed flow to Eligible, pending a fresh evaluation. It
// fails with RetriesExhausted once the retry budget is spent.
func (f *Flow) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Failed {
		return f.invalid(Eligible)
	}
	if f.exhausted {
		return voteerr.Newf(voteerr.RetriesExhausted, "%d retries used", f.retries)
	}
	f.retries++
	f.state, f.reason = Eligible, ""
	return nil
}

// Exhausted reports whether the flow is Failed with no retries left.
func (f *Flow) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == Failed && f.exhausted
}

type flowKey struct {
	sessionID string
	accountID string
}

type failure struct {
	retries   int
	exhausted bool
	reason    voteerr.Reason
	pending   *PendingVote
	at        time.Time
}

// Flows carries failed interactions across requests so the retry budget
// and any unresolved transaction survive a page reload. It only remembers failures, never "has voted":
// each request gets its own Flow and concurrent commits still race on the
// store.
type Flows struct {
	mu         sync.Mutex
	failed     map[flowKey]failure
	maxRetries int
	idle       time.Duration
}

// NewFlows forgets a failure after idle without a new attempt. Failures that
// still hold a pending transaction are kept until it is resolved.
func NewFlows(maxRetries int, idle time.Duration) *Flows {
	if idle <= 0 {
		idle = time.Hour
	}
	return &Flows{failed: make(map[flowKey]failure), maxRetries: maxRetries, idle: idle}
}

// Acquire returns a Flow for a new request. It starts Unchecked, or Failed
// when an earlier attempt for the pair failed.
func (fs *Flows) Acquire(sessionID, accountID string) *Flow {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now()
	for k, f := range fs.failed {
		if f.pending == nil && now.Sub(f.at) > fs.idle {
			delete(fs.failed, k)
		}
	}

	flow := NewFlow(fs.maxRetries)
	if f, ok := fs.failed[flowKey{sessionID, accountID}]; ok {
		flow.state = Failed
		flow.retries = f.retries
		flow.exhausted = f.exhausted
		flow.reason = f.reason
		flow.pending = f.pending
	}
	return flow
}

// Settle records where a request's flow ended. Failed flows are kept for
// the next attempt; any other state clears the pair.
func (fs *Flows) Settle(sessionID, accountID string, flow *Flow) {
	flow.mu.Lock()
	state, f := flow.state, failure{
		retries:   flow.retries,
		exhausted: flow.exhausted,
		reason:    flow.reason,
		pending:   flow.pending,
		at:        time.Now(),
	}
	flow.mu.Unlock()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	key := flowKey{sessionID, accountID}
	if state == Failed {
		fs.failed[key] = f
		return
	}
	delete(fs.failed, key)
}

// Len is the number of remembered failures.
func (fs *Flows) Len() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.failed)
}
