package msl

import "context"

// CryptoContext is the capability interface spec.md §9 calls "crypto
// context polymorphism": a bag of {encrypt, decrypt, sign, verify, wrap,
// unwrap}. Concrete contexts (session, entity auth, key exchange, payload)
// are constructed by factories outside this package; the pipeline only ever
// holds one through this interface.
type CryptoContext interface {
	// Encrypt/Decrypt operate on application-level plaintext/ciphertext
	// (payload chunk data).
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)

	// Sign/Verify operate over the signed envelope bytes (header or
	// payload chunk), producing/checking the detached signature field.
	Sign(ctx context.Context, data []byte) ([]byte, error)
	Verify(ctx context.Context, data, signature []byte) (bool, error)

	// Wrap/Unwrap encrypt/decrypt key material itself (used by key
	// exchange and key manager implementations to protect session keys).
	Wrap(ctx context.Context, keyData []byte) ([]byte, error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// NullCryptoContext is a no-op crypto context: encrypt/decrypt/wrap/unwrap
// are identity operations, sign returns an empty signature, verify always
// succeeds. Exists for tests, per spec.md §9.
type NullCryptoContext struct{}

func (NullCryptoContext) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (NullCryptoContext) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

func (NullCryptoContext) Sign(_ context.Context, data []byte) ([]byte, error) {
	return nil, nil
}

func (NullCryptoContext) Verify(_ context.Context, _, _ []byte) (bool, error) {
	return true, nil
}

func (NullCryptoContext) Wrap(_ context.Context, keyData []byte) ([]byte, error) {
	return keyData, nil
}

func (NullCryptoContext) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	return wrapped, nil
}

// RejectingCryptoContext always fails verification; encrypt/decrypt/wrap/
// unwrap are identity operations and sign returns an empty signature. Used in tests that exercise
// ENTITYAUTH_VERIFICATION_FAILED / PAYLOAD_VERIFICATION_FAILED paths
// without standing up real cryptography.
type RejectingCryptoContext struct{}

func (RejectingCryptoContext) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (RejectingCryptoContext) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

func (RejectingCryptoContext) Sign(_ context.Context, data []byte) ([]byte, error) {
	return nil, nil
}

func (RejectingCryptoContext) Verify(_ context.Context, _, _ []byte) (bool, error) {
	return false, nil
}

func (RejectingCryptoContext) Wrap(_ context.Context, keyData []byte) ([]byte, error) {
	return keyData, nil
}

func (RejectingCryptoContext) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	return wrapped, nil
}
