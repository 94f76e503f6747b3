package msl

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

type wireChunkEnvelope struct {
	Payload   []byte `json:"payload"`
	Signature []byte `json:"signature"`
}

type chunkPlaintext struct {
	SequenceNumber  int64  `json:"sequencenumber"`
	MessageID       int64  `json:"messageid"`
	EndOfMsg        bool   `json:"endofmsg"`
	CompressionAlgo string `json:"compressionalgo,omitempty"`
	Data            []byte `json:"data"`
}

// firstSequenceNumber is the sequence number spec.md §3 I2 fixes as the
// start of a message's chunk numbering.
const firstSequenceNumber = int64(1)

// MessageInputStream is the spec.md §4.6 public contract: read, isReady,
// isHandshake, mark/reset, close, and the read-only accessors. One instance
// is owned by a single logical task for its lifetime (spec.md §5).
type MessageInputStream struct {
	ctx  *Context
	role Role

	header      *MessageHeader
	errorHeader *ErrorHeader

	headerCryptoContext  CryptoContext
	payloadCryptoContext CryptoContext
	keyExchangeCryptoCtx CryptoContext

	frames *frameReader

	readyDone bool
	readyErr  error

	// pendingKeyRequestData is the caller's record of what it requested
	// earlier (spec.md §4.4), consumed once by isReady's call to
	// NegotiateKeyResponse.
	pendingKeyRequestData []*KeyRequestData

	buf rewindBuffer

	expectedSeq  int64
	pulledChunks int
	eomSeen      bool
	streamErr    *Error // set by a stream-terminating chunk error; sticky
	closed       bool
}

// NewMessageInputStream parses the leading frame from r (spec.md §4.2) and
// returns a stream ready for isReady()/read(). keyRequestData is the
// caller's own record of what it requested earlier (spec.md §4.4) — distinct
// from any key request data carried inside the header itself.
func NewMessageInputStream(ctx context.Context, mctx *Context, r io.Reader, keyRequestData []*KeyRequestData) (*MessageInputStream, error) {
	frames := newFrameReader(r)
	env, err := frames.next()
	if err != nil {
		return nil, err
	}
	parsed, err := ParseHeader(ctx, mctx, env)
	if err != nil {
		return nil, err
	}

	s := &MessageInputStream{
		ctx:                 mctx,
		role:                mctx.Role,
		header:              parsed.Message,
		errorHeader:         parsed.Error,
		headerCryptoContext: parsed.HeaderCryptoContext,
		frames:              frames,
		expectedSeq:         firstSequenceNumber,
	}
	if parsed.Message != nil {
		s.payloadCryptoContext = parsed.HeaderCryptoContext
		s.pendingKeyRequestData = keyRequestData
	}
	return s, nil
}

// isReady performs header validation and spec.md §4.5 checks; it must
// complete (successfully) before any read, and is idempotent — later calls
// return the cached outcome.
func (s *MessageInputStream) isReady(ctx context.Context) error {
	if s.readyDone {
		return s.readyErr
	}
	s.readyDone = true

	if s.errorHeader != nil {
		return nil
	}

	if err := ResolveCredentials(ctx, s.ctx, s.header); err != nil {
		s.readyErr = err
		return err
	}
	if err := EnforceFreshness(ctx, s.ctx, s.header, time.Now()); err != nil {
		s.readyErr = err
		return err
	}

	negotiated, err := NegotiateKeyResponse(
		ctx,
		s.header.MessageID,
		resolveIdentity(s.header),
		s.headerCryptoContext,
		s.pendingKeyRequestData,
		s.header.KeyResponseData,
		s.ctx.KeyExchangeFactories,
		s.role,
	)
	if err != nil {
		s.readyErr = err
		return err
	}
	s.payloadCryptoContext = negotiated.PayloadCryptoContext
	s.keyExchangeCryptoCtx = negotiated.KeyExchangeCryptoContext
	return nil
}

// IsReady is the exported form of isReady.
func (s *MessageInputStream) IsReady(ctx context.Context) error { return s.isReady(ctx) }

// IsHandshake implements spec.md §4.6 isHandshake(): true explicitly
// (renewable + handshake flag) or, behind AllowInferredHandshake, inferred
// from a renewable message with key request data whose sole chunk is empty
// and end-of-message (spec.md §9 Open Question (a)).
func (s *MessageInputStream) IsHandshake(ctx context.Context) (bool, error) {
	if s.errorHeader != nil {
		return false, nil
	}
	if isExplicitHandshake(s.header) {
		return true, nil
	}
	if !canInferHandshake(s.header, s.ctx.AllowInferredHandshake) {
		return false, nil
	}
	if err := s.pullOneChunk(ctx); err != nil && err != io.EOF {
		return false, err
	}
	return s.pulledChunks == 1 && s.eomSeen && len(s.buf.pending) == 0, nil
}

// Read returns up to n decrypted application bytes (spec.md §4.6). n = -1
// returns whatever is immediately available from the current chunk, at
// most one chunk's worth. An empty, nil-error result signals end-of-message.
func (s *MessageInputStream) Read(ctx context.Context, n int) ([]byte, error) {
	if s.errorHeader != nil {
		return nil, newError(KindInternalException, nil, "", "", nil)
	}
	if s.closed {
		return nil, nil
	}
	if !s.readyDone {
		if err := s.isReady(ctx); err != nil {
			return nil, err
		}
	}
	if s.readyErr != nil {
		return nil, s.readyErr
	}
	if s.streamErr != nil {
		return nil, s.streamErr
	}

	for len(s.buf.pending) == 0 && !s.eomSeen {
		err := s.pullOneChunk(ctx)
		if err == io.EOF {
			s.eomSeen = true
			break
		}
		if err != nil {
			if msl, ok := err.(*Error); ok && !msl.Kind.IsStreamTerminating() {
				// Per-read error: the bad chunk is skipped, stream stays
				// open, but THIS read reports the failure.
				return nil, err
			}
			s.streamErr, _ = err.(*Error)
			return nil, err
		}
		if n == -1 {
			break
		}
	}

	return s.buf.take(n), nil
}

// pullOneChunk pulls, decrypts, and verifies exactly one frame, applying
// the spec.md §4.6 chunk pull loop. Returns io.EOF once the byte source is
// exhausted with no further frames (treated as an implicit end-of-message,
// spec.md §1 non-goals: "assumes ... will eventually signal end-of-stream").
func (s *MessageInputStream) pullOneChunk(ctx context.Context) error {
	if s.eomSeen {
		return io.EOF
	}

	env, err := s.frames.next()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return err
	}

	var wire wireChunkEnvelope
	if _, ferr := env.field("payload", &wire.Payload); ferr != nil {
		return ferr
	}
	if _, ferr := env.field("signature", &wire.Signature); ferr != nil {
		return ferr
	}

	msgID := s.header.MessageID
	identity := resolveIdentity(s.header)

	ok, verr := s.payloadCryptoContext.Verify(ctx, wire.Payload, wire.Signature)
	if verr != nil || !ok {
		return newError(KindPayloadVerificationFailed, &msgID, identity, resolveUser(s.header), verr)
	}
	plaintextBytes, derr := s.payloadCryptoContext.Decrypt(ctx, wire.Payload)
	if derr != nil {
		return newError(KindPayloadVerificationFailed, &msgID, identity, resolveUser(s.header), derr)
	}
	var chunk chunkPlaintext
	if jerr := json.Unmarshal(plaintextBytes, &chunk); jerr != nil {
		return newError(KindMessageFormatError, &msgID, identity, resolveUser(s.header), jerr)
	}

	s.pulledChunks++

	if chunk.MessageID != s.header.MessageID {
		return newError(KindPayloadMessageIDMismatch, &msgID, identity, resolveUser(s.header), nil)
	}
	if chunk.SequenceNumber != s.expectedSeq {
		return newError(KindPayloadSequenceNumberMismatch, &msgID, identity, resolveUser(s.header), nil)
	}
	s.expectedSeq++

	data, cerr := decompress(chunk.CompressionAlgo, chunk.Data)
	if cerr != nil {
		return newError(KindMessageFormatError, &msgID, identity, resolveUser(s.header), cerr)
	}
	s.buf.append(data)

	if chunk.EndOfMsg {
		s.eomSeen = true
	}
	return nil
}

// Mark begins capturing bytes returned by Read so a later Reset can replay
// them. A second Mark discards whatever the previous one had captured.
func (s *MessageInputStream) Mark() { s.buf.mark() }

// Reset replays every byte returned by Read since the last Mark.
func (s *MessageInputStream) Reset() error { return s.buf.reset() }

// MarkSupported is always true; every stream supports mark/reset.
func (s *MessageInputStream) MarkSupported() bool { return true }

// Close releases the rewind buffer. Idempotent.
func (s *MessageInputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf.close()
	return nil
}

func (s *MessageInputStream) GetMessageHeader() *MessageHeader { return s.header }
func (s *MessageInputStream) GetErrorHeader() *ErrorHeader      { return s.errorHeader }

// GetIdentity implements spec.md §3 I4.
func (s *MessageInputStream) GetIdentity() string {
	if s.errorHeader != nil {
		if s.errorHeader.EntityAuthData != nil {
			return s.errorHeader.EntityAuthData.Identity
		}
		return ""
	}
	return resolveIdentity(s.header)
}

func (s *MessageInputStream) GetUser() string {
	if s.header == nil {
		return ""
	}
	return resolveUser(s.header)
}

func (s *MessageInputStream) GetPayloadCryptoContext() CryptoContext { return s.payloadCryptoContext }
func (s *MessageInputStream) GetKeyExchangeCryptoContext() CryptoContext {
	return s.keyExchangeCryptoCtx
}
