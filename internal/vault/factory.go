package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/durability-labs/ultra-data-burning-rom/internal/config"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// DefaultProbeInterval is the time between reachability checks at startup.
const DefaultProbeInterval = 5 * time.Second

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig, clock rom.Clock) (rom.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name, clock), nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemVault(cfg.Name, cfg.FSVaultRoot, clock)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
		}
		return NewS3Vault(ctx, S3Config{
			Name:      cfg.Name,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Timeout:   cfg.Timeout.Duration,
		}, clock)
	case "archivist":
		if cfg.ArchivistURL == "" {
			return nil, fmt.Errorf("archivist vault requires archivist_url to be set")
		}
		return NewArchivistVault(cfg.Name, cfg.ArchivistURL, cfg.Timeout.Duration, clock), nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}

// WaitReachable pings the vault every interval until it answers or ctx is done.
func WaitReachable(ctx context.Context, v rom.Vault, interval time.Duration, logger rom.Logger) error {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	err := backoff.RetryNotify(func() error {
		return v.Ping(ctx)
	}, b, func(err error, next time.Duration) {
		logger.Warn("vault not reachable", "node", v.Name(), "error", err, "retry_in", next)
	})
	if err != nil {
		return fmt.Errorf("vault %s: %w", v.Name(), err)
	}
	logger.Info("vault reachable", "node", v.Name())
	return nil
}
