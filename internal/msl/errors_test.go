package msl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesOnKindAlone(t *testing.T) {
	msgID := int64(42)
	a := newError(KindMessageReplayed, &msgID, "alice", "", nil)
	b := &Error{Kind: KindMessageReplayed}

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, &Error{Kind: KindMessageReplayedUnrecoverable}))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := newError(KindJSONParseError, nil, "", "", cause)
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestErrorMessageIncludesContext(t *testing.T) {
	msgID := int64(7)
	e := newError(KindMessageExpired, &msgID, "bob", "carol", errors.New("stale"))
	msg := e.Error()
	assert.Contains(t, msg, "MESSAGE_EXPIRED")
	assert.Contains(t, msg, "message_id=7")
	assert.Contains(t, msg, "identity=bob")
	assert.Contains(t, msg, "user=carol")
	assert.Contains(t, msg, "stale")
}

func TestIsStreamTerminating(t *testing.T) {
	assert.False(t, KindPayloadMessageIDMismatch.IsStreamTerminating())
	assert.False(t, KindPayloadSequenceNumberMismatch.IsStreamTerminating())
	assert.True(t, KindPayloadVerificationFailed.IsStreamTerminating())
	assert.True(t, KindMessageExpired.IsStreamTerminating())
	assert.True(t, KindMasterTokenUntrusted.IsStreamTerminating())
}

func TestHTTPStatusCoversEveryKind(t *testing.T) {
	allKinds := []Kind{
		KindJSONParseError, KindMessageFormatError,
		KindEntityRevoked, KindEntityAuthFactoryNotFound, KindEntityAuthVerificationFailed,
		KindMasterTokenUntrusted, KindMasterTokenIdentityRevoked, KindMasterTokenRevoked,
		KindUserIDTokenUntrusted, KindUserIDTokenRevoked,
		KindKeyxFactoryNotFound, KindKeyxResponseRequestMismatch,
		KindMessageExpired, KindHandshakeDataMissing, KindIncompleteNonReplayableMessage,
		KindMessageReplayed, KindMessageReplayedUnrecoverable,
		KindPayloadMessageIDMismatch, KindPayloadSequenceNumberMismatch, KindPayloadVerificationFailed,
		KindInternalException,
	}
	for _, k := range allKinds {
		assert.NotZero(t, k.HTTPStatus(), "kind %s should map to a non-zero status", k)
	}
}
