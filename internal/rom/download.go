package rom

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/durability-labs/ultra-data-burning-rom/internal/archive"
	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

// DownloadService fetches ROM archives from the node pool and unpacks them
// into mounts. Downloads run one at a time.
type DownloadService struct {
	pool     *NodePool
	layout   Layout
	maxBytes uint64
	cipher   Cipher
	metrics  Metrics
	logger   Logger

	slot sync.Mutex

	mu     sync.Mutex
	active map[string]struct{}

	wg sync.WaitGroup
}

var _ Downloader = (*DownloadService)(nil)

// infoFileAllowance covers the manifest a burn adds on top of the volume.
const infoFileAllowance = 64 << 10

// NewDownloadService creates a DownloadService. Archives that unpack to more
// than volumeSize plus the manifest are rejected; zero volumeSize disables
// the check. cipher may be nil.
func NewDownloadService(pool *NodePool, layout Layout, volumeSize uint64, cipher Cipher, metrics Metrics, logger Logger) *DownloadService {
	var maxBytes uint64
	if volumeSize > 0 {
		maxBytes = volumeSize + infoFileAllowance
	}
	return &DownloadService{
		pool:     pool,
		layout:   layout,
		maxBytes: maxBytes,
		cipher:   cipher,
		metrics:  metrics,
		logger:   logger,
		active:   make(map[string]struct{}),
	}
}

// LaunchDownload starts a background download of rom into mount. The mount
// counts as downloading from this call on, including while it waits for the
// download slot. onDone runs only if the content was unpacked.
func (s *DownloadService) LaunchDownload(rom model.Rom, mount model.Mount, onDone func() error) {
	s.mu.Lock()
	s.active[mount.ID] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(mount.ID)

		err := s.run(rom, mount, onDone)
		s.metrics.DownloadFinished(err == nil)
		if err != nil {
			s.logger.Error("download failed", "cid", rom.CID, "mount", mount.ID, "error", err)
			return
		}
		s.logger.Info("download finished", "cid", rom.CID, "mount", mount.ID)
	}()
}

// IsDownloading reports whether a download into the mount is queued or running.
func (s *DownloadService) IsDownloading(mountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[mountID]
	return ok
}

// Wait blocks until every launched download has returned.
func (s *DownloadService) Wait() {
	s.wg.Wait()
}

func (s *DownloadService) finish(mountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, mountID)
}

func (s *DownloadService) run(rom model.Rom, mount model.Mount, onDone func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("download panicked: %v", r)
		}
	}()

	s.slot.Lock()
	defer s.slot.Unlock()

	ctx := context.Background()
	node, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("taking node: %w", err)
	}
	defer s.pool.Release(node)

	zipPath := s.layout.ZipPath(mount.ID)
	sealedPath := s.layout.SealedPath(mount.ID)
	defer os.Remove(zipPath)
	defer os.Remove(sealedPath)

	s.logger.Info("downloading", "cid", rom.CID, "mount", mount.ID, "node", node.Name())
	if s.cipher == nil {
		if err := node.Download(ctx, rom.CID, zipPath); err != nil {
			return fmt.Errorf("downloading %s: %w", rom.CID, err)
		}
	} else {
		if err := node.Download(ctx, rom.CID, sealedPath); err != nil {
			return fmt.Errorf("downloading %s: %w", rom.CID, err)
		}
		if err := decryptFile(s.cipher, sealedPath, zipPath); err != nil {
			return fmt.Errorf("decrypting %s: %w", rom.CID, err)
		}
	}

	if err := archive.ExtractToDirectory(zipPath, mount.Path, s.maxBytes); err != nil {
		return fmt.Errorf("extracting %s: %w", rom.CID, err)
	}
	if err := onDone(); err != nil {
		return fmt.Errorf("completing mount: %w", err)
	}
	return nil
}

func encryptFile(c Cipher, src, dst string) error {
	return transformFile(src, dst, c.Encrypt)
}

func decryptFile(c Cipher, src, dst string) error {
	return transformFile(src, dst, c.Decrypt)
}

func transformFile(src, dst string, fn func(r io.Reader, w io.Writer) error) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := fn(in, out); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
