package msl

import "context"

// Store is the spec.md §6 "MSL store" collaborator: a process-wide,
// read-mostly cache of session crypto contexts keyed by master token
// serial number. Installing a freshly-verified master token's session
// context must be atomic with respect to concurrent readers (spec.md §5).
type Store interface {
	// GetSessionCryptoContext returns the cached session crypto context
	// for a master token serial number, if one has already been
	// installed.
	GetSessionCryptoContext(ctx context.Context, serialNumber int64) (CryptoContext, bool, error)

	// SetSessionCryptoContext installs (or atomically replaces) the
	// session crypto context for a master token serial number.
	SetSessionCryptoContext(ctx context.Context, serialNumber int64, cc CryptoContext) error
}
