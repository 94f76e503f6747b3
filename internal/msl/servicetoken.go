package msl

import "context"

// ServiceToken is an opaque application-level token carried in a message
// header (spec.md GLOSSARY). The core never decides how to interpret one —
// resolving its contents requires a crypto context the caller supplies by
// name, since service tokens are scoped to the application, not to MSL
// itself.
type ServiceToken struct {
	Name string

	data      []byte
	signature []byte
}

// Resolve verifies and decrypts the token's sealed payload using a
// caller-supplied crypto context, keyed by Name in whatever table the
// application maintains. Returns the verification failure as a
// KindPayloadVerificationFailed-free plain error — service tokens sit
// outside the closed error taxonomy (spec.md §7 covers only the core
// pipeline's own stages).
func (t *ServiceToken) Resolve(ctx context.Context, cc CryptoContext) ([]byte, error) {
	ok, err := cc.Verify(ctx, t.data, t.signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errServiceTokenVerificationFailed
	}
	return cc.Decrypt(ctx, t.data)
}

var errServiceTokenVerificationFailed = serviceTokenError("service token signature verification failed")

type serviceTokenError string

func (e serviceTokenError) Error() string { return string(e) }
