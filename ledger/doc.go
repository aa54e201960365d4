// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger is the adapter to the append-only vote ledger.

# Adapter

A Client wraps one wallet Provider for one voter interaction. Its state is
explicitly Disconnected or Connected; SubmitVote fails closed with
ErrDisconnected until Connect succeeds.

	c := svc.Client(walletAddress)
	if _, err := c.Connect(ctx); err != nil { ... }
	receipt, err := c.SubmitVote(ctx, sessionID, candidateID)

SubmitVote runs, in order:

 1. verify the provider network, requesting a switch on mismatch
 2. check the address on-chain and stop with ErrAlreadyVoted if it voted
 3. send the transaction
 4. poll the receipt until it is confirmed or reverted

Step 2 makes retries safe after a broadcast whose receipt was never seen.
Cancellation is honoured up to step 3; after that the call runs to
completion bounded by Config.Timeout. Every provider call is bounded by
Config.Timeout and reports ErrProviderTimeout when it is exceeded.

# Backends

MemoryChain and PostgresChain implement Network. Both keep a hash-chained
log: each entry's hash is SHA-256 over its RFC 8785 canonical JSON, linked to
the previous entry, and Verify recomputes the chain. Sessions are indexed by
SessionKey, the keccak256 of the session id.

MemoryChain can model confirmation depth and reverts. PostgresChain
serializes appends with an advisory transaction lock and enforces one vote
per (session key, address) with a partial unique index.
*/
package ledger
