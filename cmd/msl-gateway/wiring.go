package main

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"

	"github.com/kenneth/msl/internal/config"
	"github.com/kenneth/msl/internal/crypto"
	"github.com/kenneth/msl/internal/msl"
	"github.com/kenneth/msl/internal/store"
	"github.com/redis/go-redis/v9"
)

// buildContext assembles an msl.Context from a decoded Config: the PSK and
// KMIP-backed SYMMETRIC_WRAPPED factories register themselves only if their
// config sections are populated, so an operator can run with just one
// scheme configured.
func buildContext(cfg *config.Config, redisClient *redis.Client) (*msl.Context, *crypto.CosmianKMIPManager, error) {
	role, err := parseRole(cfg.MSL.Role)
	if err != nil {
		return nil, nil, err
	}

	masterKey, err := base64.StdEncoding.DecodeString(cfg.MSL.MasterKeyBase64)
	if err != nil {
		return nil, nil, fmt.Errorf("msl-gateway: decode master_key_base64: %w", err)
	}
	mslCC, err := crypto.NewAESGCMContext(masterKey)
	if err != nil {
		return nil, nil, fmt.Errorf("msl-gateway: build master crypto context: %w", err)
	}

	tokenFactory := store.NewRedisTokenFactory(redisClient)
	sessionStore := store.NewSessionContextStore()

	mctx := msl.NewContext(mslCC, tokenFactory, sessionStore, role)
	mctx.AllowInferredHandshake = cfg.MSL.AllowInferredHandshake
	mctx.SessionCryptoContextFactory = crypto.NewAESGCMContext

	if len(cfg.Encryption.PSK.Secrets) > 0 {
		secrets := make(map[string][]byte, len(cfg.Encryption.PSK.Secrets))
		for identity, encoded := range cfg.Encryption.PSK.Secrets {
			secret, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, nil, fmt.Errorf("msl-gateway: decode psk secret for %q: %w", identity, err)
			}
			secrets[identity] = secret
		}
		factory := crypto.NewPSKEntityAuthFactory(secrets)
		mctx.EntityAuthFactories[factory.Scheme()] = factory
	}

	var kmipManager *crypto.CosmianKMIPManager
	if cfg.Encryption.KMIP.Endpoint != "" {
		keys := make([]crypto.KMIPKeyReference, len(cfg.Encryption.KMIP.Keys))
		for i, k := range cfg.Encryption.KMIP.Keys {
			keys[i] = crypto.KMIPKeyReference{ID: k.ID, Version: k.Version}
		}
		kmipManager, err = crypto.NewCosmianKMIPManager(crypto.CosmianKMIPOptions{
			Endpoint:       cfg.Encryption.KMIP.Endpoint,
			Keys:           keys,
			TLSConfig:      &tls.Config{MinVersion: tls.VersionTLS12},
			Timeout:        cfg.Encryption.KMIP.Timeout,
			Provider:       cfg.Encryption.KMIP.Provider,
			DualReadWindow: cfg.Encryption.KMIP.DualReadWindow,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("msl-gateway: build kmip manager: %w", err)
		}
		keyxFactory := crypto.NewSymmetricWrappedKeyExchangeFactory(kmipManager, crypto.NewAESGCMContext)
		mctx.KeyExchangeFactories[keyxFactory.Scheme()] = keyxFactory
	}

	return mctx, kmipManager, nil
}

func parseRole(s string) (msl.Role, error) {
	switch s {
	case "", "trusted-network-client":
		return msl.RoleTrustedNetworkClient, nil
	case "trusted-network-server":
		return msl.RoleTrustedNetworkServer, nil
	case "peer":
		return msl.RolePeer, nil
	default:
		return 0, fmt.Errorf("msl-gateway: unknown msl.role %q", s)
	}
}

func buildRedisClient(cfg *config.Config) *redis.Client {
	return store.NewRedisClient(store.RedisOptions{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	})
}
