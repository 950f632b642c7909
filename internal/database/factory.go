package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/durability-labs/ultra-data-burning-rom/internal/config"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// NewStoreFromConfig creates a Store based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, logger rom.Logger) (*Store, error) {
	switch cfg.Type {
	case "filesystem":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for filesystem database")
		}
		return NewFilesystemStore(cfg.DataDir, cfg.CacheCapacity, logger)
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "brom.db"), cfg.CacheCapacity, logger)
	case "memory":
		return NewSQLiteStore(":memory:", cfg.CacheCapacity, logger)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
