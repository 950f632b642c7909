package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/database"
	"github.com/durability-labs/ultra-data-burning-rom/internal/fs"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
	"github.com/durability-labs/ultra-data-burning-rom/internal/vault"
)

// EnvConfig customizes NewEnv. Zero fields take test defaults.
type EnvConfig struct {
	Usernames   []string
	VolumeSize  uint64
	MinBurnSize uint64
	Lifetime    time.Duration
	Cipher      rom.Cipher
}

// Env is a fully wired set of ROM services over a temp directory, a
// filesystem store and one in-memory storage node.
type Env struct {
	Root       string
	Clock      *StubClock
	IDs        *StubIDGenerator
	Store      *database.Store
	Vault      *vault.MemoryVault
	Node       *FaultyVault
	Pool       *rom.NodePool
	Durability *rom.Durability
	Downloads  *rom.DownloadService
	Mounts     *rom.MountService
	Users      *rom.UserService
	Burns      *rom.BurnService
	Buckets    *rom.BucketService
}

// NewEnv wires an Env. Background burns and downloads are drained when the
// test completes.
func NewEnv(t *testing.T, cfg EnvConfig) *Env {
	t.Helper()

	if cfg.Usernames == nil {
		cfg.Usernames = []string{"alice", "bob"}
	}
	if cfg.VolumeSize == 0 {
		cfg.VolumeSize = 1024
	}

	e := &Env{
		Root:       t.TempDir(),
		Clock:      FixedClock(),
		IDs:        NewStubIDGenerator(),
		Store:      NewTestStore(t),
		Durability: rom.NewDurability(rom.DefaultDurabilityTiers()),
	}
	e.Vault = NewTestVault(e.Clock)
	e.Node = NewFaultyVault(e.Vault)
	e.Pool = rom.NewNodePool(e.Node)

	logger := rom.NewNopLogger()
	layout := rom.Layout{
		Root:   filepath.Join(e.Root, "mounts"),
		ZipDir: filepath.Join(e.Root, "zips"),
	}
	e.Downloads = rom.NewDownloadService(e.Pool, layout, cfg.VolumeSize, cfg.Cipher, rom.NopMetrics{}, logger)

	mounts, err := rom.NewMountService(e.Store, e.Downloads, fs.NewOSLister(nil), rom.MountConfig{
		Layout:        layout,
		Lifetime:      cfg.Lifetime,
		CacheCapacity: 16,
	}, e.Clock, e.IDs, logger)
	if err != nil {
		t.Fatalf("NewMountService() error = %v", err)
	}
	e.Mounts = mounts
	e.Users = rom.NewUserService(e.Store, e.Mounts, cfg.Usernames, logger)
	e.Burns = rom.NewBurnService(e.Store, e.Mounts, e.Pool, e.Durability, cfg.Cipher, rom.BurnConfig{
		VolumeSize:  cfg.VolumeSize,
		MinBurnSize: cfg.MinBurnSize,
	}, e.Clock, rom.NopMetrics{}, logger)
	e.Buckets = rom.NewBucketService(e.Users, e.Mounts, e.Burns, cfg.VolumeSize, logger)

	t.Cleanup(func() {
		e.Burns.Wait()
		e.Downloads.Wait()
	})
	return e
}

// WriteFile writes content into dir/name.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// ReadFile returns the content of path, failing the test if it is missing.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}
