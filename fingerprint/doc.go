// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package fingerprint derives a best-effort device identifier and stores the
advisory "voted from this device" marks.

# Collecting

Collect hashes a fixed-order list of environment signals:

	fp := fingerprint.Collect(fingerprint.Environment{
		UserAgent: ua,
		Language:  "en-US",
		Canvas:    canvasProbe,
	})

The result is always Length hex characters. A probe that errors or panics
contributes its sentinel (canvas-error, webgl-error, unknown) instead of
aborting, so the output stays defined in locked-down browsers.

On the server, FromRequest builds the Environment from request headers and
the signals the client reported in the body. DeviceFromRequest leaves the
fingerprint empty when every signal is a sentinel.

# Marks

A MarkStore records two facts per vote:

	voted:{session}:{client}             → true
	fp:{session}:{account}:{fingerprint} → timestamp

A client mark applies to every account on that install. A fingerprint is
shared by many people, so its mark only flags the account that wrote it.

MemoryMarks keeps them in process; RedisMarks shares them across replicas
with a TTL. Marks are untrusted: clearing storage removes them,
and the account and ledger checks still block a second vote.
*/
package fingerprint
