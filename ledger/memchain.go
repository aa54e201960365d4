// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryOptions configures a MemoryChain.
type MemoryOptions struct {
	ChainID string
	// Confirmations is how many blocks must follow a transaction's block
	// before it is confirmed. Ignored when BlockTime is zero.
	Confirmations uint64
	// BlockTime is the interval between blocks. Zero confirms every
	// transaction as soon as it is included.
	BlockTime time.Duration
	Clock     func() time.Time
	// Revert decides whether an included vote fails execution.
	Revert func(sessionKey, candidateID string) bool
}

type voterKey struct {
	sessionKey string
	voter      string
}

// MemoryChain is an in-process, hash-chained, append-only vote ledger. It
// enforces one non-reverted vote per (session key, address).
type MemoryChain struct {
	mu      sync.RWMutex
	opts    MemoryOptions
	genesis time.Time
	entries []Entry
	byHash  map[string]int
	voted   map[voterKey]string
}

func NewMemoryChain(opts MemoryOptions) *MemoryChain {
	if opts.ChainID == "" {
		opts.ChainID = "sepolia"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &MemoryChain{
		opts:    opts,
		genesis: opts.Clock(),
		byHash:  make(map[string]int),
		voted:   make(map[voterKey]string),
	}
}

func (c *MemoryChain) Wallet(address string) (Provider, error) {
	return newRelayWallet(c, address)
}

func (c *MemoryChain) network() string {
	return c.opts.ChainID
}

func (c *MemoryChain) height() uint64 {
	if c.opts.BlockTime <= 0 {
		return uint64(len(c.entries))
	}
	elapsed := c.opts.Clock().Sub(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.opts.BlockTime)
}

func (c *MemoryChain) submit(ctx context.Context, sessionKey, candidateID, voter string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := voterKey{sessionKey, strings.ToLower(voter)}
	if _, ok := c.voted[key]; ok {
		return "", ErrAlreadyVoted
	}

	prev := genesisHash
	if n := len(c.entries); n > 0 {
		prev = c.entries[n-1].Hash
	}
	entry := Entry{
		Sequence:    uint64(len(c.entries)) + 1,
		SessionKey:  sessionKey,
		CandidateID: candidateID,
		Voter:       key.voter,
		Block:       c.height() + 1,
		Reverted:    c.opts.Revert != nil && c.opts.Revert(sessionKey, candidateID),
		Timestamp:   c.opts.Clock().UTC(),
	}
	if c.opts.BlockTime <= 0 {
		entry.Block = entry.Sequence
	}
	if err := entry.seal(prev); err != nil {
		return "", err
	}

	c.entries = append(c.entries, entry)
	c.byHash[entry.TxHash()] = len(c.entries) - 1
	if !entry.Reverted {
		c.voted[key] = entry.TxHash()
	}
	return entry.TxHash(), nil
}

func (c *MemoryChain) status(e Entry) TxStatus {
	if e.Reverted {
		return TxReverted
	}
	if c.opts.BlockTime <= 0 || c.height() >= e.Block+c.opts.Confirmations {
		return TxConfirmed
	}
	return TxPending
}

func (c *MemoryChain) HasVoted(ctx context.Context, sessionKey, address string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.voted[voterKey{sessionKey, strings.ToLower(strings.TrimSpace(address))}]
	return ok, nil
}

// VoteCount counts confirmed votes only.
func (c *MemoryChain) VoteCount(ctx context.Context, sessionKey, candidateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n uint64
	for _, e := range c.entries {
		if e.SessionKey == sessionKey && e.CandidateID == candidateID && c.status(e) == TxConfirmed {
			n++
		}
	}
	return n, nil
}

func (c *MemoryChain) Receipt(ctx context.Context, txHash string) (TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return TxReceipt{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byHash[strings.ToLower(txHash)]
	if !ok {
		return TxReceipt{}, ErrTxNotFound
	}
	e := c.entries[i]
	return TxReceipt{
		Hash:        e.TxHash(),
		Status:      c.status(e),
		BlockNumber: e.Block,
		SessionKey:  e.SessionKey,
		CandidateID: e.CandidateID,
		Voter:       e.Voter,
		Timestamp:   e.Timestamp,
	}, nil
}

// Entries returns a copy of the log.
func (c *MemoryChain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entry(nil), c.entries...)
}

// Verify checks the integrity of the entire chain.
func (c *MemoryChain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return verifyChain(c.entries)
}
