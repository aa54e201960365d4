// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package eligibility

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielhkuo/chainballot/fingerprint"
	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/store"
	"github.com/danielhkuo/chainballot/voteerr"
)

// ChainChecker answers whether an address already voted on the ledger.
type ChainChecker interface {
	HasVotedOnChain(ctx context.Context, sessionID, address string) (bool, error)
}

// Options are the optional collaborators of an Engine.
type Options struct {
	Clock  func() time.Time
	Logger *slog.Logger
}

// Engine decides whether an account may vote in a session. It holds no
// per-voter state; every call reads the store and ledger afresh.
type Engine struct {
	store  store.Store
	chain  ChainChecker
	marks  fingerprint.MarkStore
	clock  func() time.Time
	logger *slog.Logger
}

func NewEngine(s store.Store, chain ChainChecker, marks fingerprint.MarkStore, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{store: s, chain: chain, marks: marks, clock: opts.Clock, logger: opts.Logger}
}

// Now is the engine's clock.
func (e *Engine) Now() time.Time {
	return e.clock()
}

type Request struct {
	Session       models.VotingSession
	Account       models.Account
	WalletAddress string
	Device        fingerprint.Device
	IdentityValue string
}

type Result struct {
	Eligible  bool
	Reason    voteerr.Reason
	Detail    string
	CheckedAt time.Time
}

// Err returns the rejection as a taxonomy error, or nil when eligible.
func (r Result) Err() error {
	if r.Eligible {
		return nil
	}
	return &voteerr.Error{Reason: r.Reason, Detail: r.Detail}
}

func (e *Engine) reject(now time.Time, reason voteerr.Reason, detail string) Result {
	return Result{Reason: reason, Detail: detail, CheckedAt: now}
}

// Evaluate runs the checks in a fixed order: window, organization, identity,
// then the authoritative store and ledger lookups, and only then the
// advisory device mark. An error means a backend could not answer; it is
// never a decision.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Result, error) {
	now := e.clock()
	s := req.Session

	if !s.Published {
		return e.reject(now, voteerr.SessionNotPublished, ""), nil
	}
	if !models.InWindow(now, s.StartTime, s.EndTime) {
		return e.reject(now, voteerr.OutsideWindow, s.TimeRemaining(now)), nil
	}

	if s.AccessType == models.AccessOrganization && req.Account.OrganizationID != s.OrganizationID {
		return e.reject(now, voteerr.NotInOrganization, ""), nil
	}

	identity := store.NormalizeIdentity(req.IdentityValue)
	if s.RequiresIdentity() {
		if identity == "" {
			return e.reject(now, voteerr.IdentityRequired, s.IDVerification), nil
		}
		ok, err := e.store.IsAuthorizedIdentity(ctx, s.IDVerification, identity)
		if err != nil {
			return Result{}, voteerr.New(voteerr.Transient, err)
		}
		if !ok {
			return e.reject(now, voteerr.IdentityInvalid, ""), nil
		}
	}

	voted, err := e.store.HasVotedByAccount(ctx, s.ID, req.Account.ID)
	if err != nil {
		return Result{}, voteerr.New(voteerr.Transient, err)
	}
	if voted {
		return e.reject(now, voteerr.AlreadyVotedAccount, ""), nil
	}

	if s.RequiresIdentity() {
		used, err := e.store.HasVotedByIdentity(ctx, s.ID, identity)
		if err != nil {
			return Result{}, voteerr.New(voteerr.Transient, err)
		}
		if used {
			return e.reject(now, voteerr.AlreadyVotedIdentity, ""), nil
		}
	}

	if wallet := models.NormalizeAddress(req.WalletAddress); wallet != "" {
		recorded, err := e.store.HasVotedByWallet(ctx, s.ID, wallet)
		if err != nil {
			return Result{}, voteerr.New(voteerr.Transient, err)
		}
		if recorded {
			return e.reject(now, voteerr.AlreadyVotedChain, ""), nil
		}

		if e.chain != nil {
			onChain, err := e.chain.HasVotedOnChain(ctx, s.ID, wallet)
			if err != nil {
				return Result{}, voteerr.New(voteerr.Transient, err)
			}
			if onChain {
				return e.reject(now, voteerr.AlreadyVotedChain, ""), nil
			}
		}
	}

	if e.marks != nil {
		marked, err := e.marks.Has(ctx, s.ID, req.Account.ID, req.Device)
		if err != nil {
			// Marks are advisory; an outage must not block voting.
			e.logger.Warn("device mark lookup failed", "session_id", s.ID, "error", err)
		} else if marked {
			return e.reject(now, voteerr.AlreadyVotedDevice, ""), nil
		}
	}

	return Result{Eligible: true, CheckedAt: now}, nil
}
