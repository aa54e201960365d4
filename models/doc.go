// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines domain, request, and response types for the API.

# Domain Types

  - VotingSession: window, access policy, verification kind, visibility
  - Candidate: ordered option within one session
  - AuthorizedIdentity: (kind, value) allow-list entry, soft-deleted via Active
  - Vote: immutable audit record, one per (session, voter)
  - VoteDraft: input to the store's RecordVote
  - Account: authenticated subject from the auth context

# Session Status

Status is never stored. It is derived from the published flag and the
half-open window [start, end) at read time:

	StatusAt(now, published, start, end)

	draft     → not published
	scheduled → now < start
	active    → start <= now < end
	ended     → now >= end

Because the result depends only on the clock, status cannot regress.

# Constants

Access policies:

	AccessOpen         = "open"
	AccessOrganization = "organization"
	AccessRestricted   = "restricted"

Verification kinds:

	VerifyNone, VerifyEmployee, VerifyStudent, VerifyStaff, VerifyCustom
*/
package models
