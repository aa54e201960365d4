// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"fmt"
)

// Service is the shared, read-mostly entry point to a ledger network. It
// hands out a Client per voter interaction.
type Service struct {
	net Network
	cfg Config
}

func NewService(net Network, cfg Config) *Service {
	return &Service{net: net, cfg: cfg.withDefaults()}
}

// ChainID is the network votes are expected on.
func (s *Service) ChainID() string {
	return s.cfg.ChainID
}

// Client returns an adapter for the wallet at address. An empty or unknown
// address produces a client that fails closed with ErrNoProvider.
func (s *Service) Client(address string) *Client {
	p, err := s.net.Wallet(address)
	if err != nil {
		return NewClient(nil, s.cfg)
	}
	return NewClient(p, s.cfg)
}

func (s *Service) HasVotedOnChain(ctx context.Context, sessionID, address string) (bool, error) {
	return hasVoted(ctx, s.net, s.cfg.Timeout, sessionID, address)
}

func (s *Service) GetTally(ctx context.Context, sessionID, candidateID string) (uint64, error) {
	return tally(ctx, s.net, s.cfg.Timeout, sessionID, candidateID)
}

// Tallies returns the confirmed count per candidate.
func (s *Service) Tallies(ctx context.Context, sessionID string, candidateIDs []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(candidateIDs))
	for _, id := range candidateIDs {
		n, err := s.GetTally(ctx, sessionID, id)
		if err != nil {
			return nil, fmt.Errorf("tally %s: %w", id, err)
		}
		out[id] = n
	}
	return out, nil
}

func (s *Service) Receipt(ctx context.Context, txHash string) (TxReceipt, error) {
	r, err := call(ctx, s.cfg.Timeout, func(ctx context.Context) (TxReceipt, error) {
		return s.net.Receipt(ctx, txHash)
	})
	if err != nil {
		return TxReceipt{}, providerError("receipt", err)
	}
	return r, nil
}
