package crypto

import (
	"context"
	"fmt"
	"sync"

	"github.com/kenneth/msl/internal/msl"
)

// PSKEntityAuthFactory implements msl.EntityAuthFactory for scheme "PSK":
// a static, operator-provisioned shared secret per identity, the simplest
// concrete entity authentication scheme and the one spec.md §1 names as an
// example without specifying. The resolved crypto context is an
// aesGCMContext built by NewAESGCMContext with the identity's secret as
// the HKDF seed (there is no separate session seed).
type PSKEntityAuthFactory struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

// NewPSKEntityAuthFactory builds a factory over a fixed identity -> shared
// secret table. Secrets should be provisioned out of band (config file,
// secret manager); this factory only holds them in memory.
func NewPSKEntityAuthFactory(secrets map[string][]byte) *PSKEntityAuthFactory {
	copied := make(map[string][]byte, len(secrets))
	for id, secret := range secrets {
		copied[id] = append([]byte(nil), secret...)
	}
	return &PSKEntityAuthFactory{secrets: copied}
}

func (f *PSKEntityAuthFactory) Scheme() string { return "PSK" }

// CryptoContext resolves the PSK crypto context for data.Identity. Returns
// an error if the identity has no provisioned secret; the caller (header.go)
// is responsible for turning that into an ENTITYAUTH_VERIFICATION_FAILED
// taxonomy error.
func (f *PSKEntityAuthFactory) CryptoContext(_ context.Context, data *msl.EntityAuthData) (msl.CryptoContext, error) {
	f.mu.RLock()
	secret, ok := f.secrets[data.Identity]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("crypto: psk: no shared secret provisioned for identity %q", data.Identity)
	}
	return NewAESGCMContext(secret)
}

// SetSecret provisions or replaces the shared secret for an identity while
// the factory is in use.
func (f *PSKEntityAuthFactory) SetSecret(identity string, secret []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[identity] = append([]byte(nil), secret...)
}
