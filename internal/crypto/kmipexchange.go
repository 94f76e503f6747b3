package crypto

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/kenneth/msl/internal/msl"
	"github.com/ovh/kmip-go"
	"github.com/ovh/kmip-go/payloads"
)

// KMIPKeyReference names one wrapping key version a CosmianKMIPManager
// knows about, by the KMIP server's unique identifier.
type KMIPKeyReference struct {
	ID      string
	Version int
}

// CosmianKMIPOptions configures a CosmianKMIPManager.
type CosmianKMIPOptions struct {
	Endpoint  string
	Keys      []KMIPKeyReference
	TLSConfig *tls.Config
	Timeout   time.Duration
	Provider  string

	// DualReadWindow is how many key versions below the envelope's
	// KeyVersion UnwrapKey will still try, newest first, after decryption
	// under the envelope's own key fails.
	DualReadWindow int
}

// CosmianKMIPManager wraps/unwraps key material against a KMIP 2.x server
// (Cosmian KMS and compatible appliances) using symmetric Encrypt/Decrypt
// operations on a pre-provisioned wrapping key, adapted from the gateway's
// KeyManager contract onto the symmetric-wrapped key exchange scheme.
type CosmianKMIPManager struct {
	client   *kmip.Client
	opts     CosmianKMIPOptions
	provider string

	mu       sync.RWMutex
	byID     map[string]KMIPKeyReference
	byVer    map[int]KMIPKeyReference
	activeID string
}

// NewCosmianKMIPManager dials the KMIP endpoint and returns a manager ready
// to wrap/unwrap key material against the first entry of opts.Keys (the
// active wrapping key).
func NewCosmianKMIPManager(opts CosmianKMIPOptions) (*CosmianKMIPManager, error) {
	if len(opts.Keys) == 0 {
		return nil, fmt.Errorf("crypto: kmip: at least one key reference is required")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client, err := kmip.Dial(opts.Endpoint,
		kmip.WithTLSConfig(opts.TLSConfig),
		kmip.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("crypto: kmip: dial %s: %w", opts.Endpoint, err)
	}

	provider := opts.Provider
	if provider == "" {
		provider = "cosmian-kmip"
	}

	m := &CosmianKMIPManager{
		client:   client,
		opts:     opts,
		provider: provider,
		byID:     make(map[string]KMIPKeyReference, len(opts.Keys)),
		byVer:    make(map[int]KMIPKeyReference, len(opts.Keys)),
	}
	for _, k := range opts.Keys {
		m.byID[k.ID] = k
		m.byVer[k.Version] = k
	}
	m.activeID = opts.Keys[0].ID
	return m, nil
}

// Provider returns the configured provider label.
func (m *CosmianKMIPManager) Provider() string { return m.provider }

// WrapKey encrypts plaintext under the active wrapping key.
func (m *CosmianKMIPManager) WrapKey(ctx context.Context, plaintext []byte, _ map[string]string) (*KeyEnvelope, error) {
	m.mu.RLock()
	active := m.byID[m.activeID]
	m.mu.RUnlock()

	req := &payloads.EncryptRequestPayload{
		UniqueIdentifier: active.ID,
		Data:             plaintext,
	}
	resp, err := kmip.Request[payloads.EncryptRequestPayload, payloads.EncryptResponsePayload](ctx, m.client, req)
	if err != nil {
		return nil, fmt.Errorf("crypto: kmip: encrypt: %w", err)
	}

	return &KeyEnvelope{
		KeyID:      active.ID,
		KeyVersion: active.Version,
		Provider:   m.provider,
		Ciphertext: resp.Data,
	}, nil
}

// UnwrapKey decrypts envelope.Ciphertext under the key it names, falling
// back to a version lookup when KeyID is empty (legacy envelopes) and
// trying up to DualReadWindow older versions before giving up.
func (m *CosmianKMIPManager) UnwrapKey(ctx context.Context, envelope *KeyEnvelope, _ map[string]string) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("crypto: kmip: nil envelope")
	}

	keyID := envelope.KeyID
	if keyID == "" {
		m.mu.RLock()
		ref, ok := m.byVer[envelope.KeyVersion]
		m.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("crypto: kmip: no key reference for version %d", envelope.KeyVersion)
		}
		keyID = ref.ID
	}

	plaintext, err := m.decryptWith(ctx, keyID, envelope.Ciphertext)
	if err == nil {
		return plaintext, nil
	}
	firstErr := err

	for i := 0; i < m.opts.DualReadWindow; i++ {
		m.mu.RLock()
		ref, ok := m.byVer[envelope.KeyVersion-1-i]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if plaintext, err = m.decryptWith(ctx, ref.ID, envelope.Ciphertext); err == nil {
			return plaintext, nil
		}
	}
	return nil, firstErr
}

func (m *CosmianKMIPManager) decryptWith(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	req := &payloads.DecryptRequestPayload{
		UniqueIdentifier: keyID,
		Data:             ciphertext,
	}
	resp, err := kmip.Request[payloads.DecryptRequestPayload, payloads.DecryptResponsePayload](ctx, m.client, req)
	if err != nil {
		return nil, fmt.Errorf("crypto: kmip: decrypt with %s: %w", keyID, err)
	}
	return resp.Data, nil
}

// ActiveKeyVersion returns the version of the currently active wrapping key.
func (m *CosmianKMIPManager) ActiveKeyVersion(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[m.activeID].Version, nil
}

// HealthCheck performs a lightweight Get against the active key to confirm
// the KMIP endpoint is reachable and the key still exists.
func (m *CosmianKMIPManager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	active := m.byID[m.activeID]
	m.mu.RUnlock()

	req := &payloads.GetRequestPayload{UniqueIdentifier: active.ID}
	_, err := kmip.Request[payloads.GetRequestPayload, payloads.GetResponsePayload](ctx, m.client, req)
	if err != nil {
		return fmt.Errorf("crypto: kmip: health check: %w", err)
	}
	return nil
}

// Close releases the underlying KMIP connection.
func (m *CosmianKMIPManager) Close(_ context.Context) error {
	return m.client.Close()
}

// SymmetricWrappedKeyExchangeFactory implements msl.KeyExchangeFactory for
// scheme "SYMMETRIC_WRAPPED": the key request carries a wrapped session key
// seed (parameter "wrapped", base64) and a key ID (parameter "id"); the
// response echoes the same id once the responder has confirmed it can
// unwrap it. Deriving the crypto context means unwrapping the seed through
// the KeyManager and handing it to the same factory function the master
// token path uses to turn a seed into a session crypto context, so a
// key-exchange-derived context and a master-token-derived one are
// indistinguishable downstream.
type SymmetricWrappedKeyExchangeFactory struct {
	manager KeyManager
	newCC   func(seed []byte) (msl.CryptoContext, error)
}

// NewSymmetricWrappedKeyExchangeFactory builds the "SYMMETRIC_WRAPPED"
// msl.KeyExchangeFactory backed by manager, deriving crypto contexts with
// newCC.
func NewSymmetricWrappedKeyExchangeFactory(manager KeyManager, newCC func(seed []byte) (msl.CryptoContext, error)) *SymmetricWrappedKeyExchangeFactory {
	return &SymmetricWrappedKeyExchangeFactory{manager: manager, newCC: newCC}
}

func (f *SymmetricWrappedKeyExchangeFactory) Scheme() string { return "SYMMETRIC_WRAPPED" }

// DeriveCryptoContext unwraps the session key seed carried in request's
// "wrapped" parameter through the KeyManager and builds a session crypto
// context from it. response is consulted only for its "id" parameter match,
// already verified by msl.NegotiateKeyResponse before this is called.
func (f *SymmetricWrappedKeyExchangeFactory) DeriveCryptoContext(ctx context.Context, request *msl.KeyRequestData, response *msl.KeyResponseData) (msl.CryptoContext, error) {
	wrapped, err := base64.StdEncoding.DecodeString(request.Parameters["wrapped"])
	if err != nil {
		return nil, fmt.Errorf("crypto: symmetric-wrapped keyx: decode wrapped parameter: %w", err)
	}

	envelope := &KeyEnvelope{
		KeyID:    request.Parameters["id"],
		Provider: f.manager.Provider(),
	}
	envelope.Ciphertext = wrapped

	seed, err := f.manager.UnwrapKey(ctx, envelope, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: symmetric-wrapped keyx: unwrap: %w", err)
	}
	return f.newCC(seed)
}
