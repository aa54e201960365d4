// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"fmt"

	"github.com/danielhkuo/chainballot/models"
)

// backend is a ledger that can append votes on behalf of an address.
type backend interface {
	Reader
	network() string
	submit(ctx context.Context, sessionKey, candidateID, voter string) (string, error)
}

// relayWallet signs for one address against a backend. The backend's
// network is fixed, so a switch request to any other network is refused.
type relayWallet struct {
	backend
	address string
}

func newRelayWallet(b backend, address string) (Provider, error) {
	addr := models.NormalizeAddress(address)
	if addr == "" {
		return nil, ErrNoProvider
	}
	return &relayWallet{backend: b, address: addr}, nil
}

func (w *relayWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []string{w.address}, nil
}

func (w *relayWallet) ChainID(ctx context.Context) (string, error) {
	return w.network(), ctx.Err()
}

func (w *relayWallet) SwitchChain(_ context.Context, chainID string) error {
	if chainID != w.network() {
		return fmt.Errorf("%w: relay is on %s", ErrNetworkMismatch, w.network())
	}
	return nil
}

func (w *relayWallet) SendVote(ctx context.Context, sessionKey, candidateID string) (string, error) {
	return w.submit(ctx, sessionKey, candidateID, w.address)
}
