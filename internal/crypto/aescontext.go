package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/kenneth/msl/internal/msl"
)

// aesGCMContext implements msl.CryptoContext with AES-256-GCM for
// encrypt/decrypt/wrap/unwrap and HMAC-SHA256 for sign/verify, derived from
// a single seed via HKDF (hkdf.go). This is the production backend for
// msl.Context.SessionCryptoContextFactory; its Seal/Open shape is adapted
// from the gateway's chunked.go (AEAD construction, nonce-then-ciphertext
// wire layout) collapsed to one whole-buffer operation per call instead of
// a chunked stream, since the chunk framing itself already lives in
// internal/msl/chunkstream.go.
type aesGCMContext struct {
	aead    cipher.AEAD
	signKey []byte
}

// NewAESGCMContext derives an AES-256-GCM + HMAC-SHA256 crypto context from
// seed. Used directly as an msl.Context.SessionCryptoContextFactory value:
//
//	mctx.SessionCryptoContextFactory = crypto.NewAESGCMContext
func NewAESGCMContext(seed []byte) (msl.CryptoContext, error) {
	encKey, signKey, err := deriveSessionKeys(seed)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: new gcm: %w", err)
	}
	return &aesGCMContext{aead: aead, signKey: append([]byte(nil), signKey[:]...)}, nil
}

// Encrypt seals plaintext, prefixing the output with a freshly generated
// nonce (the gateway's chunked.go wire layout: nonce-then-ciphertext, no
// separate IV channel needed since every call is self-contained).
func (c *aesGCMContext) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (c *aesGCMContext) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("crypto: aes-gcm: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: open: %w", err)
	}
	return plaintext, nil
}

// Sign produces an HMAC-SHA256 tag over data.
func (c *aesGCMContext) Sign(_ context.Context, data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, c.signKey)
	mac.Write(data)
	return mac.Sum(nil), nil
}

// Verify checks an HMAC-SHA256 tag over data in constant time.
func (c *aesGCMContext) Verify(_ context.Context, data, signature []byte) (bool, error) {
	mac := hmac.New(sha256.New, c.signKey)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), signature), nil
}

// Wrap/Unwrap reuse the same AEAD as Encrypt/Decrypt; key material is just
// another plaintext buffer from AES-GCM's point of view.
func (c *aesGCMContext) Wrap(ctx context.Context, keyData []byte) ([]byte, error) {
	return c.Encrypt(ctx, keyData)
}

func (c *aesGCMContext) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	return c.Decrypt(ctx, wrapped)
}
