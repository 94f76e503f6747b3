package msl

import (
	"context"
	"math"
)

// TokenFactory is the spec.md §6 collaborator consulted for entity/token
// trust and revocation, and for the linearizable non-replayable-ID
// compare-and-advance spec.md §5 requires. The concrete implementation
// (internal/store) backs this with Redis; this package only depends on the
// interface.
type TokenFactory interface {
	// IsEntityRevoked returns a non-empty reason if the given identity is
	// revoked.
	IsEntityRevoked(ctx context.Context, identity string) (reason string, revoked bool, err error)

	// IsMasterTokenRevoked returns a non-empty reason if the master token
	// (or its identity) is revoked.
	IsMasterTokenRevoked(ctx context.Context, mt *MasterToken) (reason string, revoked bool, err error)

	// IsUserIDTokenRevoked returns a non-empty reason if the user-ID token
	// is revoked. Callers must have already checked that it attaches to
	// mt's serial number.
	IsUserIDTokenRevoked(ctx context.Context, mt *MasterToken, ut *UserIDToken) (reason string, revoked bool, err error)

	// AcceptNonReplayableID evaluates and, on acceptance, atomically
	// advances the largest-seen non-replayable ID for the given master
	// token's serial number, per the acceptance-window rule in spec.md
	// §4.5. accepted implies the ID has been recorded; replay and
	// unrecoverable are mutually exclusive failure reasons.
	AcceptNonReplayableID(ctx context.Context, mt *MasterToken, id int64) (accepted, replay, unrecoverable bool, err error)
}

// AcceptanceWindow is the width W from spec.md §4.5.
const AcceptanceWindow int64 = 65536

// maxNonReplayableID is "the maximum long value" spec.md §4.5 refers to:
// non-replayable IDs live in [0, maxNonReplayableID].
const maxNonReplayableID = math.MaxInt64

// EvaluateNonReplayableID implements the acceptance-window test from
// spec.md §4.5 in isolation from storage, so TokenFactory implementations
// and tests can share one decision function: given largest-seen L and
// incoming N, is N a fresh ID inside the window, a replay, or
// unrecoverably far ahead?
//
// IDs ordinarily only move forward, so the common cases are a direct
// comparison: equal or behind is a replay, more than W ahead is
// unrecoverable, anything in between is accepted. The one place that
// direct comparison breaks is when the sequence itself wraps — the sender
// reaches the maximum long value and the next ID is 0. Since a genuine
// wraparound can only have happened if L was already within W of the top
// of the range, an incoming ID that looks "behind" is re-tested as a
// wrapped advance in exactly that situation; everywhere else, looking
// behind really does mean replayed.
func EvaluateNonReplayableID(largestSeen, incoming int64) (accept, replay, unrecoverable bool) {
	if incoming == largestSeen {
		return false, true, false
	}
	if incoming > largestSeen {
		delta := incoming - largestSeen
		if delta <= AcceptanceWindow {
			return true, false, false
		}
		return false, false, true
	}

	// incoming < largestSeen: check for a legitimate wraparound advance.
	distanceToWrap := (maxNonReplayableID - largestSeen) + incoming + 1
	if distanceToWrap <= AcceptanceWindow {
		return true, false, false
	}
	return false, true, false
}
