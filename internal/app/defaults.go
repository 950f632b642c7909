package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables locating the config file and the data directory.
const (
	EnvConfigPath = "BROM_CONFIG_PATH"
	EnvHome       = "BROM_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - BROM_CONFIG_PATH: config file location (default: ~/.config/brom.toml)
//   - BROM_HOME: base directory for brom data (default: ~/.local/share/brom)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "brom.toml"), nil
}

// getBaseDir falls back to the XDG data directory.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "brom"), nil
}
