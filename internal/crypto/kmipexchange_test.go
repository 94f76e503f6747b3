package crypto

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/kenneth/msl/internal/msl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKeyManager is an in-memory KeyManager double so
// SymmetricWrappedKeyExchangeFactory can be tested without a real KMIP
// server; xors the plaintext with a fixed pad, same shape as the gateway's
// own keymanager_test.go mock handler.
type fakeKeyManager struct{}

func (fakeKeyManager) Provider() string { return "fake-kmip" }

func (fakeKeyManager) WrapKey(_ context.Context, plaintext []byte, _ map[string]string) (*KeyEnvelope, error) {
	return &KeyEnvelope{KeyID: "k1", KeyVersion: 1, Provider: "fake-kmip", Ciphertext: xorPad(plaintext)}, nil
}

func (fakeKeyManager) UnwrapKey(_ context.Context, envelope *KeyEnvelope, _ map[string]string) ([]byte, error) {
	return xorPad(envelope.Ciphertext), nil
}

func (fakeKeyManager) ActiveKeyVersion(_ context.Context) (int, error) { return 1, nil }
func (fakeKeyManager) HealthCheck(_ context.Context) error             { return nil }
func (fakeKeyManager) Close(_ context.Context) error                   { return nil }

func xorPad(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ 0x5c
	}
	return out
}

func TestSymmetricWrappedKeyExchangeFactory_DerivesUsableContext(t *testing.T) {
	mgr := fakeKeyManager{}
	seed := []byte("unwrapped-session-seed")
	env, err := mgr.WrapKey(context.Background(), seed, nil)
	require.NoError(t, err)

	factory := NewSymmetricWrappedKeyExchangeFactory(mgr, NewAESGCMContext)
	assert.Equal(t, "SYMMETRIC_WRAPPED", factory.Scheme())

	request := &msl.KeyRequestData{
		Scheme: "SYMMETRIC_WRAPPED",
		Parameters: map[string]string{
			"id":      env.KeyID,
			"wrapped": base64.StdEncoding.EncodeToString(env.Ciphertext),
		},
	}
	response := &msl.KeyResponseData{Scheme: "SYMMETRIC_WRAPPED", Parameters: map[string]string{"id": env.KeyID}}

	cc, err := factory.DeriveCryptoContext(context.Background(), request, response)
	require.NoError(t, err)
	require.NotNil(t, cc)

	ciphertext, err := cc.Encrypt(context.Background(), []byte("payload"))
	require.NoError(t, err)
	plaintext, err := cc.Decrypt(context.Background(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plaintext))
}
