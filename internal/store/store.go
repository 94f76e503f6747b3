// Package store provides an in-process implementation of msl.Store, a
// Redis-backed implementation of msl.TokenFactory, and an S3 archive tier
// for revocation snapshots.
package store

import (
	"context"
	"sync"

	"github.com/kenneth/msl/internal/msl"
	"github.com/redis/go-redis/v9"
)

// SessionContextStore is the process-local, read-mostly cache of session
// crypto contexts the gateway's KeyManager.Close(ctx)-style single
// collaborator shape generalizes into msl.Store. Session crypto contexts
// hold live key material (the gateway never persists decrypted DEKs either,
// see keymanager.go's doc comment on KMS-only plaintext exposure), so the
// cache itself is in-process (sync.Map), not a Redis value — Redis in this
// package backs the linearizable non-replayable-ID state in
// tokenfactory.go, which is pure bookkeeping with no secret material in it.
type SessionContextStore struct {
	contexts sync.Map // int64 serial number -> msl.CryptoContext
}

// NewSessionContextStore builds an empty SessionContextStore.
func NewSessionContextStore() *SessionContextStore {
	return &SessionContextStore{}
}

// GetSessionCryptoContext implements msl.Store.
func (s *SessionContextStore) GetSessionCryptoContext(_ context.Context, serialNumber int64) (msl.CryptoContext, bool, error) {
	v, ok := s.contexts.Load(serialNumber)
	if !ok {
		return nil, false, nil
	}
	return v.(msl.CryptoContext), true, nil
}

// SetSessionCryptoContext implements msl.Store.
func (s *SessionContextStore) SetSessionCryptoContext(_ context.Context, serialNumber int64, cc msl.CryptoContext) error {
	s.contexts.Store(serialNumber, cc)
	return nil
}

// RedisOptions configures the Redis connection shared by a
// SessionContextStore's companion RedisTokenFactory.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient builds a go-redis client from RedisOptions.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}
