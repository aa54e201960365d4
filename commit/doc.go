// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package commit coordinates casting a vote.

A Commit re-runs eligibility against fresh state, connects the voter's
wallet, submits to the ledger and waits for confirmation, then writes the
off-chain record and the advisory device mark:

	load session + candidate
	  → evaluate (flow: Unchecked → Eligible | Ineligible)
	  → re-verify identity
	  → connect + submit (flow: Submitting → Failed | Ineligible)
	  → record vote (uncancellable from here)
	  → mark device (best effort)
	  → flow: Committed

The ledger write happens before the store write. When the store then
refuses the record because the account already voted, the vote is real on
the ledger and the caller gets RecordedOnChainOnly together with the
transaction hash instead of a generic error.

Failures that leave nothing on the ledger (timeouts, rejections, reverts)
are remembered per (session, account) so the retry budget spans requests.

OutcomeFor and EvaluationOutcome turn results into the Outcome shape the
HTTP layer returns.
*/
package commit
