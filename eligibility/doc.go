// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package eligibility decides whether an account may vote in a session.

# Evaluation

Engine.Evaluate runs its checks in this order and stops at the first
rejection:

 1. session published (SessionNotPublished)
 2. now inside [start, end) (OutsideWindow)
 3. organization match for organization sessions (NotInOrganization)
 4. identity supplied and authorized when required (IdentityRequired, IdentityInvalid)
 5. account has no vote in the store (AlreadyVotedAccount)
 6. identity value not used yet (AlreadyVotedIdentity)
 7. wallet has no vote in the store or on the ledger (AlreadyVotedChain)
 8. device mark absent (AlreadyVotedDevice)

The device mark is advisory and runs last, so clearing client storage never
gets past steps 5 to 7. A failing mark store is logged and ignored.

# Flow

Flow is the per-interaction state machine:

	Unchecked → Eligible → Submitting → Committed
	Unchecked → Ineligible
	Submitting → Failed → Eligible (bounded retries)

Flows remembers failed interactions between requests so the retry budget
applies across reloads.
*/
package eligibility
