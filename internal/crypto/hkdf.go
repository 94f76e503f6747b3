package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Per-purpose HKDF info strings, so the same seed never yields the same
// derived key material for two different uses.
const (
	hkdfInfoEncrypt = "msl-session-encrypt-key"
	hkdfInfoSign    = "msl-session-sign-key"
)

// deriveSessionKeys expands seed with HKDF-SHA256 into a 32-byte AES-256
// encryption key and a 32-byte HMAC-SHA256 signing key, matching the
// gateway's AES-GCM key sizing in chunked.go.
func deriveSessionKeys(seed []byte) (encKey, signKey [32]byte, err error) {
	if err := deriveInto(seed, hkdfInfoEncrypt, encKey[:]); err != nil {
		return encKey, signKey, err
	}
	if err := deriveInto(seed, hkdfInfoSign, signKey[:]); err != nil {
		return encKey, signKey, err
	}
	return encKey, signKey, nil
}

func deriveInto(seed []byte, info string, out []byte) error {
	r := hkdf.New(sha256.New, seed, nil, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return fmt.Errorf("crypto: hkdf: derive %s: %w", info, err)
	}
	return nil
}
