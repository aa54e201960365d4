// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package commit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/danielhkuo/chainballot/auth"
	"github.com/danielhkuo/chainballot/eligibility"
	"github.com/danielhkuo/chainballot/fingerprint"
	"github.com/danielhkuo/chainballot/ledger"
	"github.com/danielhkuo/chainballot/metrics"
	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/store"
	"github.com/danielhkuo/chainballot/voteerr"
)

const (
	recordAttempts = 3
	recordBackoff  = 50 * time.Millisecond
)

// Options are the optional collaborators of a Coordinator.
type Options struct {
	Flows   *eligibility.Flows
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
	// LogSalt keys the hashed wallet tag written to logs.
	LogSalt string
}

// Coordinator runs one vote commit end to end: re-check, ledger submit,
// durable record, device mark.
type Coordinator struct {
	store   store.Store
	engine  *eligibility.Engine
	ledger  *ledger.Service
	marks   fingerprint.MarkStore
	flows   *eligibility.Flows
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
	salt    string

	mu       sync.Mutex
	inflight map[inflightKey]int
}

// inflightKey names the commits of one account through one wallet.
type inflightKey struct {
	sessionID string
	accountID string
	wallet    string
}

func NewCoordinator(s store.Store, engine *eligibility.Engine, l *ledger.Service, marks fingerprint.MarkStore, opts Options) *Coordinator {
	if opts.Flows == nil {
		opts.Flows = eligibility.NewFlows(2, time.Hour)
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		store:   s,
		engine:  engine,
		ledger:  l,
		marks:   marks,
		flows:   opts.Flows,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		logger:  opts.Logger,
		salt:    opts.LogSalt,

		inflight: make(map[inflightKey]int),
	}
}

type Request struct {
	SessionID     string
	CandidateID   string
	Account       models.Account
	WalletAddress string
	IdentityValue string
	Device        fingerprint.Device
}

// Result describes a vote that reached the ledger. TxHash is also set on a
// RecordedOnChainOnly error and on a timeout after broadcast.
type Result struct {
	VoteID  string
	TxHash  string
	Receipt ledger.TxReceipt
}

// Check runs the eligibility engine for a session without side effects.
func (c *Coordinator) Check(ctx context.Context, req Request) (eligibility.Result, error) {
	session, err := c.loadSession(ctx, req.SessionID)
	if err != nil {
		return eligibility.Result{}, err
	}
	res, err := c.engine.Evaluate(ctx, c.evalRequest(session, req))
	if err == nil {
		c.metrics.ObserveEvaluation(evaluationLabel(res))
	}
	return res, err
}

// Commit casts one vote. Every return other than a nil error carries a
// voteerr reason; a RecordedOnChainOnly error still returns the ledger
// reference in Result.
func (c *Coordinator) Commit(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := c.tracer.Start(ctx, "commit.vote", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("candidate.id", req.CandidateID),
	))
	log := c.logger.With(
		"session_id", req.SessionID,
		"account_id", req.Account.ID,
		"wallet", auth.HashAddress(req.WalletAddress, c.salt),
	)

	key := inflightKey{req.SessionID, req.Account.ID, models.NormalizeAddress(req.WalletAddress)}
	flow := c.flows.Acquire(req.SessionID, req.Account.ID)
	defer func() {
		c.flows.Settle(req.SessionID, req.Account.ID, flow)
		kind, reason := KindCommitted, ""
		if err != nil {
			r, _ := voteerr.ReasonOf(err)
			kind, reason = KindFor(r), string(r)
			span.RecordError(err)
			span.SetStatus(codes.Error, reason)
		}
		span.SetAttributes(attribute.String("commit.outcome", string(kind)))
		span.End()
		c.metrics.ObserveCommit(string(kind), reason)
		log.Info("vote commit finished", "outcome", kind, "reason", reason, "tx_hash", res.TxHash, "flow", flow.State())
	}()

	defer c.enter(key)()

	if p, ok := flow.Pending(); ok {
		reconciled, done, rerr := c.reconcile(ctx, log, flow, req, p)
		if done {
			return reconciled, rerr
		}
	}

	if flow.State() == eligibility.Failed {
		if err := flow.Retry(); err != nil {
			return Result{}, err
		}
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("retries", flow.Retries())))
	}

	session, err := c.loadSession(ctx, req.SessionID)
	if err != nil {
		return Result{}, err
	}
	if err := c.checkCandidate(ctx, session.ID, req.CandidateID); err != nil {
		return Result{}, err
	}

	eval, err := c.engine.Evaluate(ctx, c.evalRequest(session, req))
	if err != nil {
		return Result{}, err
	}
	if eval.Reason == voteerr.AlreadyVotedChain {
		eval.Reason = c.alreadyVotedReason(ctx, key)
	}
	c.metrics.ObserveEvaluation(evaluationLabel(eval))
	if err := flow.Apply(eval); err != nil {
		return Result{}, voteerr.New(voteerr.Transient, err)
	}
	if !eval.Eligible {
		return Result{}, eval.Err()
	}
	span.AddEvent("eligible")

	if session.RequiresIdentity() {
		ok, err := c.store.IsAuthorizedIdentity(ctx, session.IDVerification, req.IdentityValue)
		if err != nil || !ok {
			// Fail closed on a lookup error as well as on a revoked identity.
			_ = flow.BeginSubmit()
			_ = flow.Reject(voteerr.IdentityInvalid)
			return Result{}, voteerr.New(voteerr.IdentityInvalid, err)
		}
	}

	if err := flow.BeginSubmit(); err != nil {
		return Result{}, voteerr.New(voteerr.Transient, err)
	}

	client := c.ledger.Client(req.WalletAddress)
	if _, err := client.Connect(ctx); err != nil {
		reason := ledgerReason(err)
		c.settleLedgerFailure(flow, reason)
		return Result{}, voteerr.New(reason, err)
	}
	span.AddEvent("connected")

	started := time.Now()
	receipt, err := client.SubmitVote(ctx, session.ID, req.CandidateID)
	c.metrics.ObserveLedgerSubmit(submitLabel(err), time.Since(started))
	if err != nil {
		reason := ledgerReason(err)
		if reason == voteerr.AlreadyVotedChain {
			reason = c.alreadyVotedReason(ctx, key)
		}
		if receipt.Hash != "" && receipt.Status == ledger.TxPending {
			// Broadcast but unconfirmed: the next attempt looks it up first.
			_ = flow.FailPending(reason, eligibility.PendingVote{
				TxHash:        receipt.Hash,
				CandidateID:   req.CandidateID,
				WalletAddress: req.WalletAddress,
				IdentityValue: req.IdentityValue,
			})
		} else {
			c.settleLedgerFailure(flow, reason)
		}
		log.Warn("ledger submit failed", "reason", reason, "tx_hash", receipt.Hash, "error", err)
		return Result{TxHash: receipt.Hash, Receipt: receipt}, voteerr.New(reason, err)
	}
	span.AddEvent("ledger_confirmed", trace.WithAttributes(attribute.String("tx.hash", receipt.Hash)))

	return c.finish(ctx, log, flow, req, eligibility.PendingVote{
		TxHash:        receipt.Hash,
		CandidateID:   req.CandidateID,
		WalletAddress: req.WalletAddress,
		IdentityValue: req.IdentityValue,
	}, receipt)
}

// finish writes the local record and device mark for a confirmed vote. The
// vote is on the ledger, so nothing here may be abandoned because the caller
// went away.
func (c *Coordinator) finish(ctx context.Context, log *slog.Logger, flow *eligibility.Flow, req Request, v eligibility.PendingVote, receipt ledger.TxReceipt) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	res := Result{TxHash: receipt.Hash, Receipt: receipt}

	voteID, err := c.record(ctx, models.VoteDraft{
		SessionID:     req.SessionID,
		CandidateID:   v.CandidateID,
		VoterID:       req.Account.ID,
		WalletAddress: v.WalletAddress,
		VerifiedID:    v.IdentityValue,
		TxHash:        receipt.Hash,
	})
	c.mark(ctx, log, req.SessionID, req.Account.ID, req.Device)
	if err != nil {
		_ = flow.Reject(voteerr.RecordedOnChainOnly)
		if errors.Is(err, store.ErrConflict) {
			return res, voteerr.New(voteerr.RecordedOnChainOnly, err)
		}
		log.Error("vote on ledger but not recorded", "tx_hash", receipt.Hash, "error", err)
		return res, &voteerr.Error{Reason: voteerr.RecordedOnChainOnly, Detail: "the local record could not be written", Err: err}
	}

	_ = flow.Commit()
	res.VoteID = voteID
	return res, nil
}

// reconcile resolves the transaction an earlier attempt left unconfirmed.
// done is false when the transaction reverted or was never included, and
// the caller may submit again.
func (c *Coordinator) reconcile(ctx context.Context, log *slog.Logger, flow *eligibility.Flow, req Request, p eligibility.PendingVote) (res Result, done bool, err error) {
	receipt, err := c.ledger.Receipt(ctx, p.TxHash)
	if errors.Is(err, ledger.ErrTxNotFound) {
		log.Warn("pending vote transaction not found", "tx_hash", p.TxHash)
		flow.DropPending()
		return Result{}, false, nil
	}
	if err != nil {
		return Result{TxHash: p.TxHash}, true, voteerr.New(ledgerReason(err), err)
	}

	switch receipt.Status {
	case ledger.TxPending:
		return Result{TxHash: p.TxHash, Receipt: receipt}, true, &voteerr.Error{
			Reason: voteerr.ProviderTimeout,
			Detail: "the earlier transaction is not confirmed yet",
		}
	case ledger.TxReverted:
		flow.DropPending()
		return Result{}, false, nil
	}

	if err := flow.Resume(); err != nil {
		return Result{}, true, voteerr.New(voteerr.Transient, err)
	}
	log.Info("pending vote transaction confirmed", "tx_hash", receipt.Hash)
	res, err = c.finish(ctx, log, flow, req, p, receipt)
	return res, true, err
}

// enter counts a running commit for key until the returned func is called.
func (c *Coordinator) enter(key inflightKey) func() {
	c.mu.Lock()
	c.inflight[key]++
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.inflight[key]--; c.inflight[key] <= 0 {
			delete(c.inflight, key)
		}
	}
}

func (c *Coordinator) loadSession(ctx context.Context, id string) (models.VotingSession, error) {
	session, err := c.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.VotingSession{}, voteerr.New(voteerr.SessionNotFound, err)
	}
	if err != nil {
		return models.VotingSession{}, voteerr.New(voteerr.Transient, err)
	}
	return session, nil
}

func (c *Coordinator) checkCandidate(ctx context.Context, sessionID, candidateID string) error {
	candidates, err := c.store.GetCandidates(ctx, sessionID)
	if err != nil {
		return voteerr.New(voteerr.Transient, err)
	}
	for _, cand := range candidates {
		if cand.ID == candidateID {
			return nil
		}
	}
	return voteerr.Newf(voteerr.UnknownCandidate, "%q", candidateID)
}

func (c *Coordinator) evalRequest(session models.VotingSession, req Request) eligibility.Request {
	return eligibility.Request{
		Session:       session,
		Account:       req.Account,
		WalletAddress: req.WalletAddress,
		Device:        req.Device,
		IdentityValue: req.IdentityValue,
	}
}

// alreadyVotedReason tells a duplicate from the same account apart from a
// wallet reused by another account once the ledger refuses the vote. Another
// commit of the same account through the same wallet may not have written its
// record yet, so a running one counts as well.
func (c *Coordinator) alreadyVotedReason(ctx context.Context, key inflightKey) voteerr.Reason {
	c.mu.Lock()
	concurrent := c.inflight[key] > 1
	c.mu.Unlock()
	if concurrent {
		return voteerr.AlreadyVotedAccount
	}

	voted, err := c.store.HasVotedByAccount(context.WithoutCancel(ctx), key.sessionID, key.accountID)
	if err == nil && voted {
		return voteerr.AlreadyVotedAccount
	}
	return voteerr.AlreadyVotedChain
}

// settleLedgerFailure leaves a cancelled attempt in Submitting, which Settle
// discards without spending a retry.
func (c *Coordinator) settleLedgerFailure(flow *eligibility.Flow, reason voteerr.Reason) {
	if reason == voteerr.Transient {
		return
	}
	if reason.Kind() == voteerr.KindEligibility {
		_ = flow.Reject(reason)
		return
	}
	_ = flow.Fail(reason)
}

// record writes the vote, retrying outages. A conflict is final.
func (c *Coordinator) record(ctx context.Context, draft models.VoteDraft) (string, error) {
	var err error
	for attempt := range recordAttempts {
		if attempt > 0 {
			time.Sleep(recordBackoff * time.Duration(attempt))
		}
		var id string
		id, err = c.store.RecordVote(ctx, draft)
		if err == nil || errors.Is(err, store.ErrConflict) {
			return id, err
		}
	}
	return "", err
}

func (c *Coordinator) mark(ctx context.Context, log *slog.Logger, sessionID, accountID string, d fingerprint.Device) {
	if c.marks == nil {
		return
	}
	if err := c.marks.Mark(ctx, sessionID, accountID, d, c.engine.Now()); err != nil {
		c.metrics.IncDeviceMarkError()
		log.Warn("device mark write failed", "error", err)
	}
}

// ledgerReason maps a ledger adapter error onto the taxonomy.
func ledgerReason(err error) voteerr.Reason {
	switch {
	case errors.Is(err, ledger.ErrAlreadyVoted):
		return voteerr.AlreadyVotedChain
	case errors.Is(err, ledger.ErrNoProvider), errors.Is(err, ledger.ErrDisconnected):
		return voteerr.NoProvider
	case errors.Is(err, ledger.ErrUserRejected):
		return voteerr.UserRejected
	case errors.Is(err, ledger.ErrNetworkMismatch):
		return voteerr.NetworkMismatch
	case errors.Is(err, ledger.ErrProviderTimeout):
		return voteerr.ProviderTimeout
	case errors.Is(err, ledger.ErrReverted):
		return voteerr.TxReverted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return voteerr.Transient
	}
	return voteerr.ProviderFailure
}

func submitLabel(err error) string {
	if err == nil {
		return "confirmed"
	}
	return string(ledgerReason(err))
}

func evaluationLabel(r eligibility.Result) string {
	if r.Eligible {
		return ""
	}
	return string(r.Reason)
}
