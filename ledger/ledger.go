// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/sha3"
)

var (
	ErrNoProvider        = errors.New("no wallet provider available")
	ErrUserRejected      = errors.New("request rejected by wallet")
	ErrProvider          = errors.New("wallet provider error")
	ErrAlreadyVoted      = errors.New("address already voted in this session")
	ErrNetworkMismatch   = errors.New("wallet is on the wrong network")
	ErrProviderTimeout   = errors.New("wallet provider did not respond in time")
	ErrReverted          = errors.New("transaction reverted")
	ErrDisconnected      = errors.New("ledger account not connected")
	ErrTxNotFound        = errors.New("transaction not found")
	ErrChainInconsistent = errors.New("ledger hash chain is broken")
)

// TxStatus is the lifecycle of a submitted transaction.
type TxStatus int

const (
	TxPending TxStatus = iota
	TxConfirmed
	TxReverted
)

func (s TxStatus) String() string {
	switch s {
	case TxConfirmed:
		return "confirmed"
	case TxReverted:
		return "reverted"
	}
	return "pending"
}

func (s TxStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AccountHandle is a connected wallet account.
type AccountHandle struct {
	Address string `json:"address"`
	ChainID string `json:"chain_id"`
}

// TxReceipt describes a vote transaction as the ledger sees it.
type TxReceipt struct {
	Hash        string    `json:"hash"`
	Status      TxStatus  `json:"status"`
	BlockNumber uint64    `json:"block_number"`
	SessionKey  string    `json:"session_key"`
	CandidateID string    `json:"candidate_id"`
	Voter       string    `json:"voter"`
	Timestamp   time.Time `json:"timestamp"`
}

// Reader is the read side of a ledger. It needs no signer.
type Reader interface {
	HasVoted(ctx context.Context, sessionKey, address string) (bool, error)
	VoteCount(ctx context.Context, sessionKey, candidateID string) (uint64, error)
	Receipt(ctx context.Context, txHash string) (TxReceipt, error)
}

// Provider is a wallet: a signer bound to one network.
type Provider interface {
	Reader
	RequestAccounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (string, error)
	SwitchChain(ctx context.Context, chainID string) error
	// SendVote broadcasts the vote and returns the transaction hash. The
	// transaction may still be pending when it returns.
	SendVote(ctx context.Context, sessionKey, candidateID string) (string, error)
}

// Network hands out wallets for voter addresses.
type Network interface {
	Reader
	Wallet(address string) (Provider, error)
}

// SessionKey encodes a session id the way the voting contract indexes it:
// 0x-prefixed keccak256 of the id bytes.
func SessionKey(sessionID string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sessionID))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
