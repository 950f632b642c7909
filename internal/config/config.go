package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultVolumeSize is the bucket size cap: one CD-ROM.
const DefaultVolumeSize = 650 * 1024 * 1024

// Config represents the main configuration for brom.
type Config struct {
	BaseDir     string   `toml:"base_dir"`
	LogDir      string   `toml:"log_dir"`
	LogLevel    string   `toml:"log_level"` // "debug", "info", "warn" or "error"
	ListenAddr  string   `toml:"listen_addr"`
	VolumeSize  uint64   `toml:"volume_size"`
	MinBurnSize uint64   `toml:"min_burn_size"`
	Usernames   []string `toml:"usernames"`

	Database   DatabaseConfig     `toml:"database"`
	Mounts     MountsConfig       `toml:"mounts"`
	Worker     WorkerConfig       `toml:"worker"`
	Vaults     []VaultConfig      `toml:"vaults"`
	Encryption EncryptionConfig   `toml:"encryption"`
	Durability []DurabilityConfig `toml:"durability,omitempty"`
	Filesystem FilesystemConfig   `toml:"filesystem"`
}

// Duration is a time.Duration written as a string such as "3h" or "30m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// DatabaseConfig represents configuration for the entity store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type          string `toml:"type"`               // "filesystem", "sqlite" or "memory"
	DataDir       string `toml:"data_dir,omitempty"` // filesystem and sqlite only
	CacheCapacity int    `toml:"cache_capacity,omitempty"`
}

// MountsConfig places mounts and their archives on disk.
type MountsConfig struct {
	Root     string   `toml:"root"`
	ZipDir   string   `toml:"zip_dir"`
	Lifetime Duration `toml:"lifetime"`
	Grace    Duration `toml:"grace"`
}

// WorkerConfig controls the periodic scan.
type WorkerConfig struct {
	Interval Duration `toml:"interval"`
}

// VaultConfig represents configuration for a storage node.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type    string   `toml:"type"` // "memory", "filesystem", "s3" or "archivist"
	Name    string   `toml:"name"`
	Timeout Duration `toml:"timeout,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	// Archivist-specific fields (only used when Type == "archivist")
	ArchivistURL string `toml:"archivist_url,omitempty"`
}

// EncryptionConfig selects how archives are sealed before upload.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DurabilityConfig describes one storage tier offered to users.
type DurabilityConfig struct {
	ID                    uint64   `toml:"id"`
	Name                  string   `toml:"name"`
	Description           string   `toml:"description"`
	SponsorLine           string   `toml:"sponsor_line"`
	Nodes                 int      `toml:"nodes"`
	Tolerance             int      `toml:"tolerance"`
	Duration              Duration `toml:"duration"`
	Expiry                Duration `toml:"expiry"`
	PricePerBytePerSecond uint64   `toml:"price_per_byte_per_second"`
	CollateralPerByte     uint64   `toml:"collateral_per_byte"`
	ProofProbability      int      `toml:"proof_probability"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		LogLevel:   "info",
		ListenAddr: ":8080",
		VolumeSize: DefaultVolumeSize,
		Database: DatabaseConfig{
			Type:    "filesystem",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Mounts: MountsConfig{
			Root:     filepath.Join(baseDir, "mounts"),
			ZipDir:   filepath.Join(baseDir, "zips"),
			Lifetime: Duration{3 * time.Hour},
			Grace:    Duration{3 * time.Hour},
		},
		Worker: WorkerConfig{Interval: Duration{30 * time.Minute}},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "brom.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "brom.key"),
		},
		Filesystem: FilesystemConfig{
			Ignore: []string{".tmp-*", ".DS_Store"},
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. It refuses to overwrite an
// existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
