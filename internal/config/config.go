// Package config loads and hot-reloads the process-wide configuration tree
// for the MSL receive pipeline and its demo ingress: crypto hardware
// acceleration flags, audit sink wiring, store backend settings, and the
// replay/freshness acceptance window. Shape follows the gateway's
// crypto.NewFromConfig/audit.NewLoggerFromConfig call sites.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level decoded configuration tree.
type Config struct {
	MSL        MSLConfig        `yaml:"msl"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Audit      AuditConfig      `yaml:"audit"`
	Store      StoreConfig      `yaml:"store"`
	Replay     ReplayConfig     `yaml:"replay"`
}

// MSLConfig holds process-role and scheme-allowlist settings: which
// entity-auth and key-exchange schemes a given role will honor, matched with
// glob patterns (e.g. "DIFFIE_HELLMAN*") against the wire scheme name.
type MSLConfig struct {
	Role                      string   `yaml:"role"`
	AllowedEntityAuthSchemes  []string `yaml:"allowed_entity_auth_schemes"`
	AllowedKeyExchangeSchemes []string `yaml:"allowed_key_exchange_schemes"`
	AllowInferredHandshake    bool     `yaml:"allow_inferred_handshake"`
	RevocationAllowlistPath   string   `yaml:"revocation_allowlist_path"`

	// MasterKeyBase64 seeds the process-wide MSL crypto context
	// (msl.Context.MSLCryptoContext) that verifies and decrypts master
	// tokens. Rotating it invalidates every master token issued under the
	// previous key.
	MasterKeyBase64 string `yaml:"master_key_base64"`
}

// EncryptionConfig groups the crypto-backend knobs. Hardware nests
// separately because it is also consumed standalone (crypto.GetHardwareAccelerationInfo
// accepts *HardwareConfig directly).
type EncryptionConfig struct {
	Hardware HardwareConfig `yaml:"hardware"`
	PSK      PSKConfig      `yaml:"psk"`
	KMIP     KMIPConfig     `yaml:"kmip"`
}

// PSKConfig provisions the "PSK" entity-auth scheme's identity -> shared
// secret table. Secrets are base64-encoded in the YAML tree; an empty map
// disables the scheme (no identities can authenticate with it).
type PSKConfig struct {
	Secrets map[string]string `yaml:"secrets"`
}

// KMIPConfig points the "SYMMETRIC_WRAPPED" key exchange scheme's
// CosmianKMIPManager at a KMIP 2.x server. Empty Endpoint disables the
// scheme entirely.
type KMIPConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Provider       string        `yaml:"provider"`
	Timeout        time.Duration `yaml:"timeout"`
	DualReadWindow int           `yaml:"dual_read_window"`
	Keys           []KMIPKey     `yaml:"keys"`
}

// KMIPKey names one wrapping key version by the KMIP server's unique
// identifier; Keys[0] in KMIPConfig is the active key.
type KMIPKey struct {
	ID      string `yaml:"id"`
	Version int    `yaml:"version"`
}

// HardwareConfig holds the AES hardware-acceleration flags behind
// crypto.IsHardwareAccelerationEnabled and the reported acceleration status:
// EnableAESNI decides the status on amd64/386 and EnableARMv8AES on arm64;
// on any other architecture with AES support the status is active whatever
// the flags say. The flags do not change which AES-GCM implementation the
// crypto contexts use.
type HardwareConfig struct {
	EnableAESNI    bool `yaml:"enable_aes_ni"`
	EnableARMv8AES bool `yaml:"enable_armv8_aes"`
}

// AuditConfig controls the audit event logger: whether it's on at all, what
// sink it writes to, how many in-memory events GetEvents retains, and which
// metadata keys get redacted before any event leaves the process.
type AuditConfig struct {
	Enabled            bool       `yaml:"enabled"`
	Sink               SinkConfig `yaml:"sink"`
	MaxEvents          int        `yaml:"max_events"`
	RedactMetadataKeys []string   `yaml:"redact_metadata_keys"`
}

// SinkConfig configures one of the audit EventWriter backends: "http",
// "file", "stdout", or "" (defaults to stdout).
type SinkConfig struct {
	Type          string            `yaml:"type"`
	Endpoint      string            `yaml:"endpoint"`
	Headers       map[string]string `yaml:"headers"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	RetryCount    int               `yaml:"retry_count"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff"`
	FilePath      string            `yaml:"file_path"`
}

// StoreConfig wires the Redis connection behind the TokenFactory
// implementation and its optional S3 archive tier.
type StoreConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	Archive       ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig points the cold-storage revocation snapshotter at an S3
// bucket. Empty Bucket disables archiving.
type ArchiveConfig struct {
	Bucket       string        `yaml:"bucket"`
	Region       string        `yaml:"region"`
	Endpoint     string        `yaml:"endpoint"`
	SnapshotKey  string        `yaml:"snapshot_key"`
	Interval     time.Duration `yaml:"interval"`
}

// ReplayConfig carries an acceptance-window width, defaulted to 65536 when
// zero. The value is loaded but not read anywhere else: the pipeline and
// the Redis token factory both use the constant msl.AcceptanceWindow.
type ReplayConfig struct {
	AcceptanceWindow int64 `yaml:"acceptance_window"`
}

// Load reads and decodes a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Audit.MaxEvents == 0 {
		c.Audit.MaxEvents = 1000
	}
	if c.Store.SessionTTL == 0 {
		c.Store.SessionTTL = 24 * time.Hour
	}
	if c.Replay.AcceptanceWindow == 0 {
		c.Replay.AcceptanceWindow = 65536
	}
}
