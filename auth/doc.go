// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth resolves the voter account behind a request.

# Account Tokens

Accounts arrive as HS256 JWTs in the Authorization header:

	Authorization: Bearer <token>

The subject is the account id and the optional org_id claim is the
account's organization. Tokens must carry an expiry.

	account, err := auth.AccountFromRequest(r, cfg.AuthJWTSecret)

IssueAccountToken mints tokens for tests and local tooling.

# ID Generation

Random hex IDs for database records:

	id, err := auth.GenerateID(16)  // 32 hex characters

# Hashing

For privacy-preserving rate limiting and logs:

	hash := auth.HashIP(ipAddress, salt)
	tag := auth.HashAddress(wallet, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
