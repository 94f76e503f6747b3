package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESGCMContext_EncryptDecryptRoundTrip(t *testing.T) {
	cc, err := NewAESGCMContext([]byte("a shared session seed"))
	require.NoError(t, err)

	ciphertext, err := cc.Encrypt(context.Background(), []byte("hello world"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("hello world"), ciphertext)

	plaintext, err := cc.Decrypt(context.Background(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(plaintext))
}

func TestAESGCMContext_EncryptIsNonDeterministic(t *testing.T) {
	cc, err := NewAESGCMContext([]byte("seed"))
	require.NoError(t, err)

	a, err := cc.Encrypt(context.Background(), []byte("payload"))
	require.NoError(t, err)
	b, err := cc.Encrypt(context.Background(), []byte("payload"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "fresh nonce per call")
}

func TestAESGCMContext_DecryptTamperedCiphertextFails(t *testing.T) {
	cc, err := NewAESGCMContext([]byte("seed"))
	require.NoError(t, err)

	ciphertext, err := cc.Encrypt(context.Background(), []byte("payload"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = cc.Decrypt(context.Background(), ciphertext)
	require.Error(t, err)
}

func TestAESGCMContext_SignVerifyRoundTrip(t *testing.T) {
	cc, err := NewAESGCMContext([]byte("seed"))
	require.NoError(t, err)

	sig, err := cc.Sign(context.Background(), []byte("header bytes"))
	require.NoError(t, err)

	ok, err := cc.Verify(context.Background(), []byte("header bytes"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cc.Verify(context.Background(), []byte("different bytes"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAESGCMContext_WrapUnwrapRoundTrip(t *testing.T) {
	cc, err := NewAESGCMContext([]byte("seed"))
	require.NoError(t, err)

	wrapped, err := cc.Wrap(context.Background(), []byte("a session key seed"))
	require.NoError(t, err)

	unwrapped, err := cc.Unwrap(context.Background(), wrapped)
	require.NoError(t, err)
	assert.Equal(t, "a session key seed", string(unwrapped))
}

func TestAESGCMContext_DifferentSeedsDoNotInterop(t *testing.T) {
	a, err := NewAESGCMContext([]byte("seed-a"))
	require.NoError(t, err)
	b, err := NewAESGCMContext([]byte("seed-b"))
	require.NoError(t, err)

	ciphertext, err := a.Encrypt(context.Background(), []byte("payload"))
	require.NoError(t, err)

	_, err = b.Decrypt(context.Background(), ciphertext)
	require.Error(t, err)
}
