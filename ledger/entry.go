// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

const genesisHash = "genesis"

// Entry is one vote transaction in the append-only log. Each entry is
// hash-chained to its predecessor.
type Entry struct {
	Sequence    uint64
	SessionKey  string
	CandidateID string
	Voter       string
	Block       uint64
	Reverted    bool
	Timestamp   time.Time
	PrevHash    string
	Hash        string
}

// TxHash is the transaction reference handed to voters.
func (e Entry) TxHash() string {
	return "0x" + e.Hash
}

type entryContent struct {
	Seq         uint64 `json:"seq"`
	SessionKey  string `json:"session_key"`
	CandidateID string `json:"candidate_id"`
	Voter       string `json:"voter"`
	Block       uint64 `json:"block"`
	Reverted    bool   `json:"reverted"`
	Timestamp   string `json:"ts"`
	PrevHash    string `json:"prev"`
}

// computeHash is SHA-256 over the RFC 8785 canonical form of the entry
// content, so the hash survives storage round trips.
func (e Entry) computeHash() (string, error) {
	raw, err := json.Marshal(entryContent{
		Seq:         e.Sequence,
		SessionKey:  e.SessionKey,
		CandidateID: e.CandidateID,
		Voter:       e.Voter,
		Block:       e.Block,
		Reverted:    e.Reverted,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
		PrevHash:    e.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// seal links e to prev and fills in its hash.
func (e *Entry) seal(prev string) error {
	e.PrevHash = prev
	h, err := e.computeHash()
	if err != nil {
		return err
	}
	e.Hash = h
	return nil
}

// verifyChain checks linkage and hashes of an ordered entry list.
func verifyChain(entries []Entry) error {
	prev := genesisHash
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d links to %s, want %s", ErrChainInconsistent, i+1, e.PrevHash, prev)
		}
		computed, err := e.computeHash()
		if err != nil {
			return err
		}
		if computed != e.Hash {
			return fmt.Errorf("%w: hash mismatch at entry %d", ErrChainInconsistent, i+1)
		}
		prev = e.Hash
	}
	return nil
}
