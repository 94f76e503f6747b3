package msl

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// sealEntityAuthMessage builds the wire bytes for a message header secured
// by an entity-auth-derived crypto context (no master token).
func sealEntityAuthMessage(t *testing.T, cc hmacCryptoContext, ead *EntityAuthData, hp headerPlaintext) []byte {
	t.Helper()
	headerData, err := json.Marshal(hp)
	require.NoError(t, err)
	sig, err := cc.Sign(context.Background(), headerData)
	require.NoError(t, err)

	env := wireMessageEnvelope{
		EntityAuthData: &wireEntityAuthData{Scheme: ead.Scheme, Identity: ead.Identity, AuthData: ead.Payload},
		HeaderData:     headerData,
		Signature:      sig,
	}
	out, err := json.Marshal(env)
	require.NoError(t, err)
	return out
}

// sealMasterTokenEnvelope builds a wireMasterTokenEnvelope sealed under
// mslCC, whose decrypted session key seed is sessionKeySeed.
func sealMasterTokenEnvelope(t *testing.T, mslCC hmacCryptoContext, mt masterTokenPlaintext, sessionKeySeed []byte) *wireMasterTokenEnvelope {
	t.Helper()
	tokenData, err := json.Marshal(mt)
	require.NoError(t, err)
	sig, err := mslCC.Sign(context.Background(), tokenData)
	require.NoError(t, err)
	return &wireMasterTokenEnvelope{
		TokenData:      tokenData,
		Signature:      sig,
		SessionKeyData: sessionKeySeed,
	}
}

// sealMasterTokenMessage builds the wire bytes for a message header secured
// by a master token, whose session context is sessionCC.
func sealMasterTokenMessage(t *testing.T, sessionCC hmacCryptoContext, wireMT *wireMasterTokenEnvelope, hp headerPlaintext) []byte {
	t.Helper()
	headerData, err := json.Marshal(hp)
	require.NoError(t, err)
	sig, err := sessionCC.Sign(context.Background(), headerData)
	require.NoError(t, err)

	env := wireMessageEnvelope{
		MasterToken: wireMT,
		HeaderData:  headerData,
		Signature:   sig,
	}
	out, err := json.Marshal(env)
	require.NoError(t, err)
	return out
}

// sealChunk builds the wire bytes for one payload chunk, sealed under cc.
func sealChunk(t *testing.T, cc hmacCryptoContext, chunk chunkPlaintext) []byte {
	t.Helper()
	payload, err := json.Marshal(chunk)
	require.NoError(t, err)
	sig, err := cc.Sign(context.Background(), payload)
	require.NoError(t, err)
	env := wireChunkEnvelope{Payload: payload, Signature: sig}
	out, err := json.Marshal(env)
	require.NoError(t, err)
	return out
}

func concatFrames(frames ...[]byte) *bytes.Reader {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(f)
	}
	return bytes.NewReader(buf.Bytes())
}

// newTestContext builds an msl.Context wired with fakes suitable for most
// pipeline tests: a PSK-like entity auth factory, an in-memory token
// factory and store, and an HMAC-backed session crypto context factory.
func newTestContext(role Role) (*Context, hmacCryptoContext, *fakeTokenFactory, *fakeStore) {
	entityCC := hmacCryptoContext{key: []byte("entity-shared-secret")}
	tf := newFakeTokenFactory()
	store := newFakeStore()

	mctx := NewContext(hmacCryptoContext{key: []byte("msl-context-key")}, tf, store, role)
	mctx.EntityAuthFactories = EntityAuthFactories{
		"PSK": &fakeEntityAuthFactory{scheme: "PSK", cc: entityCC},
	}
	mctx.SessionCryptoContextFactory = func(seed []byte) (CryptoContext, error) {
		return hmacCryptoContext{key: seed}, nil
	}
	return mctx, entityCC, tf, store
}

func unixAt(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}
