package main

import (
	"context"
	"fmt"

	"github.com/kenneth/msl/internal/audit"
	"github.com/kenneth/msl/internal/config"
	"github.com/spf13/cobra"
)

var rotateKeysCmd = &cobra.Command{
	Use:   "rotate-keys",
	Short: "Verify the active KMIP wrapping key and record a rotation event",
	Long: `rotate-keys reads the active wrapping key version from the config
file (encryption.kmip.keys[0]), runs a health check for that key against
the configured KMIP server, and records the outcome through the audit
logger. The actual key material rotation happens on the KMIP server
(encryption.kmip.keys[0] must already point at the new active key) — this
subcommand confirms the new key is reachable and closes
out the rotation in the audit trail, it does not rotate key material
itself.`,
	RunE: runRotateKeys,
}

func runRotateKeys(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	if cfg.Encryption.KMIP.Endpoint == "" {
		return fmt.Errorf("msl-gateway: rotate-keys: encryption.kmip.endpoint is not configured")
	}

	ctx := context.Background()

	redisClient := buildRedisClient(cfg)
	defer redisClient.Close()

	_, kmipManager, err := buildContext(cfg, redisClient)
	if err != nil {
		return err
	}
	defer kmipManager.Close(ctx)

	auditLogger, err := audit.NewLoggerFromConfig(cfg.Audit)
	if err != nil {
		return fmt.Errorf("msl-gateway: build audit logger: %w", err)
	}
	defer auditLogger.Close()

	version, versionErr := kmipManager.ActiveKeyVersion(ctx)
	healthErr := kmipManager.HealthCheck(ctx)

	success := versionErr == nil && healthErr == nil
	rotationErr := versionErr
	if rotationErr == nil {
		rotationErr = healthErr
	}
	auditLogger.LogKeyRotation(version, success, rotationErr)

	if !success {
		return fmt.Errorf("msl-gateway: rotate-keys: active key version %d unhealthy: %w", version, rotationErr)
	}

	fmt.Printf("active KMIP key version %d is healthy\n", version)
	return nil
}
