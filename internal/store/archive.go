package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kenneth/msl/internal/config"
)

// RevocationSnapshot is the durable backup of revoked identities written to
// S3 by the archive-now subcommand; each write replaces the previous
// snapshot under the same key, and nothing writes one on a schedule. Redis is the hot
// linearizable path (tokenfactory.go), this is disaster-recovery cold
// storage, not a hot-path dependency.
type RevocationSnapshot struct {
	TakenAt             time.Time `json:"taken_at"`
	RevokedEntities     []string  `json:"revoked_entities"`
	RevokedMasterTokens []int64   `json:"revoked_master_tokens"`
	RevokedUserIDTokens []int64   `json:"revoked_user_id_tokens"`
}

// Archiver writes and reads RevocationSnapshot objects against a single
// fixed key in one S3-compatible bucket, adapted from the gateway's
// internal/s3/client.go Put/GetObject pair collapsed from full object CRUD
// down to the one key this system actually needs.
type Archiver struct {
	client *s3.Client
	bucket string
	key    string
}

// NewArchiver builds an Archiver from config.ArchiveConfig. Returns a nil
// *Archiver and nil error if cfg.Bucket is empty, since archiving is
// optional; callers should treat a nil *Archiver as "archiving disabled".
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	endpoint, region, err := ValidateProviderConfig(cfg.Endpoint, providerFromEndpoint(cfg.Endpoint), cfg.Region)
	if err != nil {
		// Fall back to the caller's literal endpoint/region when it names
		// no known provider (e.g. a private on-prem S3-compatible box).
		endpoint, region = cfg.Endpoint, cfg.Region
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("", "", "")),
	)
	if err != nil {
		return nil, fmt.Errorf("store: archive: load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	key := cfg.SnapshotKey
	if key == "" {
		key = "msl-revocation-snapshot.json"
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg, opts...),
		bucket: cfg.Bucket,
		key:    key,
	}, nil
}

func providerFromEndpoint(endpoint string) string {
	if endpoint == "" {
		return "aws"
	}
	return "minio"
}

// Put writes snap as the current revocation snapshot, overwriting any
// previous one.
func (a *Archiver) Put(ctx context.Context, snap RevocationSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: archive: marshal snapshot: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("store: archive: put snapshot: %w", err)
	}
	return nil
}

// Get reads the most recently archived revocation snapshot.
func (a *Archiver) Get(ctx context.Context) (*RevocationSnapshot, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key),
	})
	if err != nil {
		return nil, fmt.Errorf("store: archive: get snapshot: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("store: archive: read snapshot: %w", err)
	}

	var snap RevocationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: archive: parse snapshot: %w", err)
	}
	return &snap, nil
}
