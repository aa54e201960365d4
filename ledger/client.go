// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/chainballot/models"
)

// Config bounds every interaction with a wallet provider.
type Config struct {
	// ChainID is the network votes must be sent on.
	ChainID     string
	Timeout     time.Duration
	ConfirmPoll time.Duration
	Logger      *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ChainID == "" {
		c.ChainID = "sepolia"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ConfirmPoll <= 0 {
		c.ConfirmPoll = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// State is either Disconnected or Connected.
type State interface {
	isState()
}

type Disconnected struct{}

type Connected struct {
	Account AccountHandle
}

func (Disconnected) isState() {}
func (Connected) isState() {}

// Client is the ledger adapter for one voter interaction. Operations that
// sign fail closed unless the client is Connected.
type Client struct {
	provider Provider
	cfg      Config

	mu    sync.Mutex
	state State
}

// NewClient wraps a wallet provider. A nil provider yields a client whose
// Connect always fails with ErrNoProvider.
func NewClient(p Provider, cfg Config) *Client {
	return &Client{provider: p, cfg: cfg.withDefaults(), state: Disconnected{}}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) Disconnect() {
	c.setState(Disconnected{})
}

// Connect asks the provider for an account.
func (c *Client) Connect(ctx context.Context) (AccountHandle, error) {
	if c.provider == nil {
		return AccountHandle{}, ErrNoProvider
	}

	accounts, err := call(ctx, c.cfg.Timeout, c.provider.RequestAccounts)
	if err != nil {
		return AccountHandle{}, providerError("request accounts", err)
	}
	if len(accounts) == 0 || models.NormalizeAddress(accounts[0]) == "" {
		return AccountHandle{}, ErrUserRejected
	}

	chainID, err := call(ctx, c.cfg.Timeout, c.provider.ChainID)
	if err != nil {
		return AccountHandle{}, providerError("chain id", err)
	}

	account := AccountHandle{Address: models.NormalizeAddress(accounts[0]), ChainID: chainID}
	c.setState(Connected{Account: account})
	return account, nil
}

func (c *Client) connected() (AccountHandle, error) {
	switch s := c.State().(type) {
	case Connected:
		return s.Account, nil
	default:
		return AccountHandle{}, ErrDisconnected
	}
}

// HasVotedOnChain reports whether address already has a vote in the session.
func (c *Client) HasVotedOnChain(ctx context.Context, sessionID, address string) (bool, error) {
	if c.provider == nil {
		return false, ErrNoProvider
	}
	return hasVoted(ctx, c.provider, c.cfg.Timeout, sessionID, address)
}

func (c *Client) GetTally(ctx context.Context, sessionID, candidateID string) (uint64, error) {
	if c.provider == nil {
		return 0, ErrNoProvider
	}
	return tally(ctx, c.provider, c.cfg.Timeout, sessionID, candidateID)
}

// SubmitVote sends a vote from the connected account and waits for it to be
// confirmed. A retry after a partial success is caught by the on-chain
// check and fails with ErrAlreadyVoted instead of voting twice.
//
// On ErrReverted, and on ErrProviderTimeout after broadcast, the returned
// receipt still carries the transaction hash.
func (c *Client) SubmitVote(ctx context.Context, sessionID, candidateID string) (TxReceipt, error) {
	account, err := c.connected()
	if err != nil {
		return TxReceipt{}, err
	}

	if err := c.ensureChain(ctx); err != nil {
		return TxReceipt{}, err
	}

	voted, err := hasVoted(ctx, c.provider, c.cfg.Timeout, sessionID, account.Address)
	if err != nil {
		return TxReceipt{}, err
	}
	if voted {
		return TxReceipt{}, ErrAlreadyVoted
	}

	// Last point at which cancellation is honoured.
	if err := ctx.Err(); err != nil {
		return TxReceipt{}, err
	}
	ctx = context.WithoutCancel(ctx)

	key := SessionKey(sessionID)
	start := time.Now()
	hash, err := call(ctx, c.cfg.Timeout, func(ctx context.Context) (string, error) {
		return c.provider.SendVote(ctx, key, candidateID)
	})
	if err != nil {
		return TxReceipt{}, providerError("send vote", err)
	}
	c.cfg.Logger.Debug("vote broadcast", "tx_hash", hash, "session_id", sessionID)

	receipt, err := c.awaitReceipt(ctx, hash, start.Add(c.cfg.Timeout))
	if err != nil {
		return receipt, err
	}
	if receipt.Status == TxReverted {
		return receipt, ErrReverted
	}
	return receipt, nil
}

// ensureChain verifies the provider network and requests a switch if needed.
func (c *Client) ensureChain(ctx context.Context) error {
	chainID, err := call(ctx, c.cfg.Timeout, c.provider.ChainID)
	if err != nil {
		return providerError("chain id", err)
	}
	if chainID == c.cfg.ChainID {
		return nil
	}

	c.cfg.Logger.Info("requesting network switch", "from", chainID, "to", c.cfg.ChainID)
	err = call0(ctx, c.cfg.Timeout, func(ctx context.Context) error {
		return c.provider.SwitchChain(ctx, c.cfg.ChainID)
	})
	if err != nil {
		if errors.Is(err, ErrProviderTimeout) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: switch to %s refused: %v", ErrNetworkMismatch, c.cfg.ChainID, err)
	}

	chainID, err = call(ctx, c.cfg.Timeout, c.provider.ChainID)
	if err != nil {
		return providerError("chain id", err)
	}
	if chainID != c.cfg.ChainID {
		return fmt.Errorf("%w: still on %s", ErrNetworkMismatch, chainID)
	}

	switch s := c.State().(type) {
	case Connected:
		s.Account.ChainID = chainID
		c.setState(s)
	}
	return nil
}

// awaitReceipt polls until the transaction leaves Pending or deadline passes.
func (c *Client) awaitReceipt(ctx context.Context, hash string, deadline time.Time) (TxReceipt, error) {
	pending := TxReceipt{Hash: hash, Status: TxPending}
	ticker := time.NewTicker(c.cfg.ConfirmPoll)
	defer ticker.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return pending, ErrProviderTimeout
		}
		receipt, err := call(ctx, remaining, func(ctx context.Context) (TxReceipt, error) {
			return c.provider.Receipt(ctx, hash)
		})
		switch {
		case err == nil && receipt.Status != TxPending:
			return receipt, nil
		case err == nil:
			pending = receipt
		case errors.Is(err, ErrTxNotFound):
		default:
			return pending, providerError("receipt", err)
		}

		select {
		case <-ticker.C:
		case <-time.After(remaining):
			return pending, ErrProviderTimeout
		}
	}
}

func hasVoted(ctx context.Context, r Reader, timeout time.Duration, sessionID, address string) (bool, error) {
	key := SessionKey(sessionID)
	addr := models.NormalizeAddress(address)
	voted, err := call(ctx, timeout, func(ctx context.Context) (bool, error) {
		return r.HasVoted(ctx, key, addr)
	})
	if err != nil {
		return false, providerError("has voted", err)
	}
	return voted, nil
}

func tally(ctx context.Context, r Reader, timeout time.Duration, sessionID, candidateID string) (uint64, error) {
	key := SessionKey(sessionID)
	n, err := call(ctx, timeout, func(ctx context.Context) (uint64, error) {
		return r.VoteCount(ctx, key, candidateID)
	})
	if err != nil {
		return 0, providerError("vote count", err)
	}
	return n, nil
}

// providerError keeps known ledger errors and context errors as they are and
// wraps anything else in ErrProvider.
func providerError(op string, err error) error {
	for _, known := range []error{
		ErrNoProvider, ErrUserRejected, ErrProvider, ErrAlreadyVoted, ErrNetworkMismatch,
		ErrProviderTimeout, ErrReverted, ErrDisconnected, ErrTxNotFound,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrProvider, op, err)
}
