package msl

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
)

// hmacCryptoContext is a test double that actually verifies: Sign/Verify
// use HMAC-SHA256 over a shared key, so tests can exercise real
// verification-failure paths (NullCryptoContext always succeeds and
// RejectingCryptoContext always fails, neither of which can build a valid
// then-tampered fixture). Encrypt/Decrypt are identity — these tests care
// about the pipeline's control flow, not confidentiality.
type hmacCryptoContext struct{ key []byte }

func (c hmacCryptoContext) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (c hmacCryptoContext) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

func (c hmacCryptoContext) Sign(_ context.Context, data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func (c hmacCryptoContext) Verify(_ context.Context, data, signature []byte) (bool, error) {
	expected, _ := c.Sign(context.Background(), data)
	return hmac.Equal(expected, signature), nil
}

func (c hmacCryptoContext) Wrap(_ context.Context, keyData []byte) ([]byte, error) {
	return keyData, nil
}

func (c hmacCryptoContext) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	return wrapped, nil
}

// fakeTokenFactory is an in-memory TokenFactory for tests: revocation is
// driven by pre-seeded maps, non-replayable IDs by EvaluateNonReplayableID
// itself (so these tests double as integration coverage of it).
type fakeTokenFactory struct {
	revokedEntities     map[string]string
	revokedMasterTokens map[int64]string
	revokedUserTokens   map[int64]string
	largestSeen         map[int64]int64
}

func newFakeTokenFactory() *fakeTokenFactory {
	return &fakeTokenFactory{
		revokedEntities:     map[string]string{},
		revokedMasterTokens: map[int64]string{},
		revokedUserTokens:   map[int64]string{},
		largestSeen:         map[int64]int64{},
	}
}

func (f *fakeTokenFactory) IsEntityRevoked(_ context.Context, identity string) (string, bool, error) {
	reason, revoked := f.revokedEntities[identity]
	return reason, revoked, nil
}

func (f *fakeTokenFactory) IsMasterTokenRevoked(_ context.Context, mt *MasterToken) (string, bool, error) {
	reason, revoked := f.revokedMasterTokens[mt.SerialNumber]
	return reason, revoked, nil
}

func (f *fakeTokenFactory) IsUserIDTokenRevoked(_ context.Context, _ *MasterToken, ut *UserIDToken) (string, bool, error) {
	reason, revoked := f.revokedUserTokens[ut.SerialNumber]
	return reason, revoked, nil
}

func (f *fakeTokenFactory) AcceptNonReplayableID(_ context.Context, mt *MasterToken, id int64) (accept, replay, unrecoverable bool, err error) {
	largest, ok := f.largestSeen[mt.SerialNumber]
	if !ok {
		largest = -1
	}
	accept, replay, unrecoverable = EvaluateNonReplayableID(largest, id)
	if accept {
		f.largestSeen[mt.SerialNumber] = id
	}
	return accept, replay, unrecoverable, nil
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	m map[int64]CryptoContext
}

func newFakeStore() *fakeStore { return &fakeStore{m: map[int64]CryptoContext{}} }

func (s *fakeStore) GetSessionCryptoContext(_ context.Context, serialNumber int64) (CryptoContext, bool, error) {
	cc, ok := s.m[serialNumber]
	return cc, ok, nil
}

func (s *fakeStore) SetSessionCryptoContext(_ context.Context, serialNumber int64, cc CryptoContext) error {
	s.m[serialNumber] = cc
	return nil
}

// fakeEntityAuthFactory always hands back the same crypto context for its
// scheme, regardless of the entity auth data's contents.
type fakeEntityAuthFactory struct {
	scheme string
	cc     CryptoContext
	err    error
}

func (f *fakeEntityAuthFactory) Scheme() string { return f.scheme }

func (f *fakeEntityAuthFactory) CryptoContext(_ context.Context, _ *EntityAuthData) (CryptoContext, error) {
	return f.cc, f.err
}

// fakeKeyExchangeFactory derives a fixed crypto context for its scheme.
type fakeKeyExchangeFactory struct {
	scheme string
	cc     CryptoContext
	err    error
}

func (f *fakeKeyExchangeFactory) Scheme() string { return f.scheme }

func (f *fakeKeyExchangeFactory) DeriveCryptoContext(_ context.Context, _ *KeyRequestData, _ *KeyResponseData) (CryptoContext, error) {
	return f.cc, f.err
}
