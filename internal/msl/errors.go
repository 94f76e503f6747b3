package msl

import "fmt"

// Kind enumerates the closed set of error kinds the receive pipeline can
// produce, grouped by the stage they belong to; see the table in spec.md §7.
// The parse kinds are also raised by header parsing and the chunk stream
// when an object inside the header or a chunk is malformed.
type Kind string

const (
	// Parse errors (Frame Reader).
	KindJSONParseError      Kind = "JSON_PARSE_ERROR"
	KindMessageFormatError  Kind = "MESSAGE_FORMAT_ERROR"

	// Entity auth errors (Header Parser & Validator / Credential Resolution).
	KindEntityRevoked                Kind = "ENTITY_REVOKED"
	KindEntityAuthFactoryNotFound    Kind = "ENTITYAUTH_FACTORY_NOT_FOUND"
	KindEntityAuthVerificationFailed Kind = "ENTITYAUTH_VERIFICATION_FAILED"

	// Master token errors.
	KindMasterTokenUntrusted       Kind = "MASTERTOKEN_UNTRUSTED"
	KindMasterTokenIdentityRevoked Kind = "MASTERTOKEN_IDENTITY_REVOKED"
	KindMasterTokenRevoked         Kind = "MASTERTOKEN_REVOKED"

	// User-ID token errors.
	KindUserIDTokenUntrusted Kind = "USERIDTOKEN_UNTRUSTED"
	KindUserIDTokenRevoked   Kind = "USERIDTOKEN_REVOKED"

	// Key exchange errors.
	KindKeyxFactoryNotFound          Kind = "KEYX_FACTORY_NOT_FOUND"
	KindKeyxResponseRequestMismatch  Kind = "KEYX_RESPONSE_REQUEST_MISMATCH"

	// Freshness errors.
	KindMessageExpired                 Kind = "MESSAGE_EXPIRED"
	KindHandshakeDataMissing           Kind = "HANDSHAKE_DATA_MISSING"
	KindIncompleteNonReplayableMessage Kind = "INCOMPLETE_NONREPLAYABLE_MESSAGE"
	KindMessageReplayed                Kind = "MESSAGE_REPLAYED"
	KindMessageReplayedUnrecoverable   Kind = "MESSAGE_REPLAYED_UNRECOVERABLE"

	// Chunk errors.
	KindPayloadMessageIDMismatch      Kind = "PAYLOAD_MESSAGE_ID_MISMATCH"
	KindPayloadSequenceNumberMismatch Kind = "PAYLOAD_SEQUENCE_NUMBER_MISMATCH"
	KindPayloadVerificationFailed     Kind = "PAYLOAD_VERIFICATION_FAILED"

	// Misuse.
	KindInternalException Kind = "INTERNAL_EXCEPTION"
)

// Error is the single error type the pipeline returns. It always carries a
// Kind from the closed enumeration above, plus whatever identifying
// information had been resolved by the stage that raised it.
type Error struct {
	Kind      Kind
	MessageID *int64
	Identity  string
	User      string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("msl: %s", e.Kind)
	if e.MessageID != nil {
		msg += fmt.Sprintf(" (message_id=%d)", *e.MessageID)
	}
	if e.Identity != "" {
		msg += fmt.Sprintf(" (identity=%s)", e.Identity)
	}
	if e.User != "" {
		msg += fmt.Sprintf(" (user=%s)", e.User)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &Error{Kind: KindX}) to match on Kind alone.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// newError builds an *Error, threading through whatever identifying
// context is already known at the call site. Any of msgID, identity, or
// user may be the zero value when unknown.
func newError(kind Kind, msgID *int64, identity, user string, cause error) *Error {
	return &Error{Kind: kind, MessageID: msgID, Identity: identity, User: user, Err: cause}
}

// IsStreamTerminating reports whether an error of this kind, once raised,
// ends the stream (header-phase and freshness-phase errors, per spec.md §7's
// propagation policy) as opposed to being a per-read error that leaves the
// stream open for the next read (chunk-phase mismatches).
func (k Kind) IsStreamTerminating() bool {
	switch k {
	case KindPayloadMessageIDMismatch, KindPayloadSequenceNumberMismatch:
		return false
	default:
		return true
	}
}

// HTTPStatus maps a Kind to the status code the demo ingress (internal/api)
// uses when surfacing pipeline errors over HTTP. Not part of the core
// contract; purely a convenience for the one concrete collaborator that
// needs an HTTP vocabulary.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindJSONParseError, KindMessageFormatError:
		return 400
	case KindEntityRevoked, KindMasterTokenIdentityRevoked, KindMasterTokenRevoked,
		KindUserIDTokenRevoked, KindMessageReplayed, KindMessageReplayedUnrecoverable:
		return 403
	case KindEntityAuthFactoryNotFound, KindKeyxFactoryNotFound:
		return 501
	case KindEntityAuthVerificationFailed, KindMasterTokenUntrusted, KindUserIDTokenUntrusted,
		KindPayloadVerificationFailed:
		return 401
	case KindKeyxResponseRequestMismatch, KindHandshakeDataMissing,
		KindIncompleteNonReplayableMessage, KindPayloadMessageIDMismatch,
		KindPayloadSequenceNumberMismatch:
		return 400
	case KindMessageExpired:
		return 419
	default:
		return 500
	}
}
