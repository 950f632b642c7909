package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// FileSystemVault is a filesystem-based storage node. It stores content and
// storage contracts as files in a directory structure:
//
//	<root>/
//	  content/
//	    <cid>          (archives, named by SHA-256)
//	  contracts/
//	    <cid>.json     (active storage contract)
type FileSystemVault struct {
	name         string
	root         string
	contentDir   string
	contractsDir string
	clock        rom.Clock
}

var _ rom.Vault = (*FileSystemVault)(nil)

type contract struct {
	CID       string    `json:"cid"`
	Tier      string    `json:"tier"`
	Nodes     int       `json:"nodes"`
	Tolerance int       `json:"tolerance"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string, clock rom.Clock) (*FileSystemVault, error) {
	if clock == nil {
		clock = rom.RealClock{}
	}
	contentDir := filepath.Join(root, "content")
	contractsDir := filepath.Join(root, "contracts")

	for _, dir := range []string{contentDir, contractsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}

	return &FileSystemVault{
		name:         name,
		root:         root,
		contentDir:   contentDir,
		contractsDir: contractsDir,
		clock:        clock,
	}, nil
}

func (v *FileSystemVault) Name() string { return v.name }

// Upload copies the file into the vault. Uploading the same content twice is
// safe and returns the same cid.
func (v *FileSystemVault) Upload(ctx context.Context, path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(v.contentDir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	cid := hex.EncodeToString(h.Sum(nil))
	if err := os.Rename(tmpPath, filepath.Join(v.contentDir, cid)); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return cid, nil
}

func (v *FileSystemVault) Download(ctx context.Context, cid string, path string) error {
	src, err := os.Open(v.contentPath(cid))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content not found: %s", cid)
		}
		return fmt.Errorf("failed to open content: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to read data: %w", err)
	}
	return dst.Close()
}

func (v *FileSystemVault) PurchaseStorage(ctx context.Context, cid string, tier rom.DurabilityTier) (rom.Purchase, error) {
	if _, err := os.Stat(v.contentPath(cid)); err != nil {
		return rom.Purchase{}, fmt.Errorf("content not found: %s", cid)
	}

	c := contract{
		CID:       cid,
		Tier:      tier.Name,
		Nodes:     tier.Nodes,
		Tolerance: tier.Tolerance,
		ExpiresAt: v.clock.Now().Add(tier.Duration),
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return rom.Purchase{}, err
	}
	if err := os.WriteFile(filepath.Join(v.contractsDir, filepath.Base(cid)+".json"), data, 0644); err != nil {
		return rom.Purchase{}, fmt.Errorf("writing contract: %w", err)
	}
	return rom.Purchase{CID: cid, ExpiresAt: c.ExpiresAt}, nil
}

// Ping verifies that the vault directories are accessible.
func (v *FileSystemVault) Ping(ctx context.Context) error {
	for _, dir := range []string{v.root, v.contentDir, v.contractsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

func (v *FileSystemVault) contentPath(cid string) string {
	return filepath.Join(v.contentDir, filepath.Base(cid))
}
