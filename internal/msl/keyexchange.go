package msl

import "context"

// KeyExchangeFactory derives a crypto context from a matched
// (request, response) pair. Concrete schemes (Diffie-Hellman,
// symmetric-wrapped, JWE/JWK variants) are out of the core's scope; this is
// the contract it consumes (spec.md §6).
type KeyExchangeFactory interface {
	Scheme() string
	DeriveCryptoContext(ctx context.Context, request *KeyRequestData, response *KeyResponseData) (CryptoContext, error)
}

// KeyExchangeFactories is the scheme-keyed lookup table spec.md §6 calls
// "key exchange factories by scheme".
type KeyExchangeFactories map[string]KeyExchangeFactory

func (f KeyExchangeFactories) Lookup(scheme string) (KeyExchangeFactory, bool) {
	factory, ok := f[scheme]
	return factory, ok
}

// NegotiatedKeys is the outcome of §4.4: the payload crypto context to use
// for this message, and — in peer-to-peer mode — the separately retained
// key-exchange context for subsequent messages.
type NegotiatedKeys struct {
	PayloadCryptoContext    CryptoContext
	KeyExchangeCryptoContext CryptoContext
}

// NegotiateKeyResponse implements spec.md §4.4. headerCryptoContext is the
// context resolved in §4.2 (session or entity-auth derived); it becomes the
// payload crypto context when there is no key response, or remains so in
// peer-to-peer mode even when one is present.
func NegotiateKeyResponse(
	ctx context.Context,
	msgID int64,
	identity string,
	headerCryptoContext CryptoContext,
	keyRequests []*KeyRequestData,
	keyResponse *KeyResponseData,
	factories KeyExchangeFactories,
	role Role,
) (*NegotiatedKeys, error) {
	if keyResponse == nil {
		return &NegotiatedKeys{PayloadCryptoContext: headerCryptoContext}, nil
	}

	var matched *KeyRequestData
	for _, req := range keyRequests {
		if keyResponse.Matches(req) {
			matched = req
			break
		}
	}
	if matched == nil {
		return nil, newError(KindKeyxResponseRequestMismatch, &msgID, identity, "", nil)
	}

	factory, ok := factories.Lookup(keyResponse.Scheme)
	if !ok {
		return nil, newError(KindKeyxFactoryNotFound, &msgID, identity, "", nil)
	}

	kxContext, err := factory.DeriveCryptoContext(ctx, matched, keyResponse)
	if err != nil {
		return nil, newError(KindKeyxFactoryNotFound, &msgID, identity, "", err)
	}

	if role == RolePeer {
		// Peer-to-peer: the master token's session context continues to
		// govern the payload; the key exchange context is retained
		// separately for messages that follow.
		return &NegotiatedKeys{
			PayloadCryptoContext:     headerCryptoContext,
			KeyExchangeCryptoContext: kxContext,
		}, nil
	}

	// Trusted-network: the derived context takes over the payload
	// immediately.
	return &NegotiatedKeys{
		PayloadCryptoContext:     kxContext,
		KeyExchangeCryptoContext: kxContext,
	}, nil
}
