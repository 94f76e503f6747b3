package msl

// Role distinguishes the three process roles spec.md §4.5/§5 treat
// differently: a trusted-network client, a trusted-network server, or a
// peer-to-peer endpoint with no asymmetric trust relationship.
type Role int

const (
	RoleTrustedNetworkClient Role = iota
	RoleTrustedNetworkServer
	RolePeer
)

// Context bundles the collaborators spec.md §6 says the Header Parser &
// Validator needs: the MSL crypto context, entity auth data, entity auth
// factories by scheme, key exchange factories by scheme, the token
// factory, the MSL store, and the role flag. It is the single thing a
// caller constructs once per process and passes to every stream.
type Context struct {
	// MSLCryptoContext verifies and decrypts master tokens (spec.md §3:
	// "Verified by the process-wide MSL crypto context").
	MSLCryptoContext CryptoContext

	// LocalEntityAuthData is this endpoint's own entity auth data, used
	// when building outgoing headers; the receive pipeline doesn't need
	// it but collaborators constructed alongside a Context often do.
	LocalEntityAuthData *EntityAuthData

	EntityAuthFactories  EntityAuthFactories
	KeyExchangeFactories KeyExchangeFactories
	TokenFactory         TokenFactory
	Store                Store

	// SessionCryptoContextFactory derives a session crypto context from a
	// freshly-unsealed master token's session key seed material. It is the
	// one place the core reaches into a concrete crypto backend (AES-GCM,
	// via internal/crypto), kept as an injected function so this package
	// never imports a concrete cipher implementation.
	SessionCryptoContextFactory func(sessionKeySeed []byte) (CryptoContext, error)

	Role Role

	// AllowInferredHandshake controls the legacy behavior spec.md §9 Open
	// Question (a) describes: inferring a handshake from a renewable
	// message whose key request data is present and whose first payload
	// chunk is empty and end-of-message, without an explicit handshake
	// flag. Defaults to true (via NewContext) to match existing senders;
	// set false to require the explicit flag.
	AllowInferredHandshake bool
}

// NewContext builds a Context with AllowInferredHandshake defaulted on, per
// DESIGN.md's Open Question decision.
func NewContext(mslCC CryptoContext, tokenFactory TokenFactory, store Store, role Role) *Context {
	return &Context{
		MSLCryptoContext:       mslCC,
		EntityAuthFactories:    EntityAuthFactories{},
		KeyExchangeFactories:   KeyExchangeFactories{},
		TokenFactory:           tokenFactory,
		Store:                  store,
		Role:                   role,
		AllowInferredHandshake: true,
	}
}
