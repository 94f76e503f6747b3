package msl

import (
	"context"
	"time"
)

// EnforceFreshness implements the rule table in spec.md §4.5, evaluated in
// the order given there: expiration/renewability, handshake completeness,
// then non-replayable-ID acceptance. now is threaded in rather than read
// from time.Now() so tests can pin it.
func EnforceFreshness(ctx context.Context, mctx *Context, mh *MessageHeader, now time.Time) error {
	msgID := mh.MessageID
	identity := resolveIdentity(mh)
	user := resolveUser(mh)

	if mh.MasterToken != nil && mh.MasterToken.IsExpired(now) {
		switch {
		case !mh.MasterToken.IsRenewable(now):
			return newError(KindMessageExpired, &msgID, identity, user, nil)
		case len(mh.KeyRequestData) == 0:
			if mctx.Role == RoleTrustedNetworkClient {
				// Trusted-network client receiving an expired, renewable
				// token from its server: accept, the caller may rotate.
				break
			}
			return newError(KindMessageExpired, &msgID, identity, user, nil)
		default:
			// Renewable with key request data: accept.
		}
	}

	if mh.Handshake {
		hasKeyRequests := len(mh.KeyRequestData) > 0
		renewable := mh.Renewable
		if !renewable || !hasKeyRequests {
			return newError(KindHandshakeDataMissing, &msgID, identity, user, nil)
		}
	}

	if mh.NonReplayableID != nil {
		if mh.MasterToken == nil {
			return newError(KindIncompleteNonReplayableMessage, &msgID, identity, user, nil)
		}
		accepted, replay, unrecoverable, err := mctx.TokenFactory.AcceptNonReplayableID(ctx, mh.MasterToken, *mh.NonReplayableID)
		if err != nil {
			return newError(KindMessageReplayed, &msgID, identity, user, err)
		}
		switch {
		case accepted:
			// largest-seen advances inside the Token Factory.
		case unrecoverable:
			return newError(KindMessageReplayedUnrecoverable, &msgID, identity, user, nil)
		case replay:
			return newError(KindMessageReplayed, &msgID, identity, user, nil)
		default:
			return newError(KindMessageReplayed, &msgID, identity, user, nil)
		}
	}

	return nil
}

// isExplicitHandshake and canInferHandshake are the header-only parts of
// MessageInputStream.IsHandshake (spec.md §4.6 isHandshake()): a message is a
// handshake either explicitly (renewable and the handshake flag is set) or,
// when allowInferred is set (spec.md §9 Open Question (a)), inferred from a
// renewable message with key request data whose sole payload chunk is empty
// and end-of-message. The chunk condition is evaluated by the caller once it
// has pulled the first chunk; isExplicitHandshake covers the explicit case
// and canInferHandshake the static preconditions for inference.
func isExplicitHandshake(mh *MessageHeader) bool {
	return mh.Renewable && mh.Handshake
}

func canInferHandshake(mh *MessageHeader, allowInferred bool) bool {
	return allowInferred && mh.Renewable && len(mh.KeyRequestData) > 0
}
