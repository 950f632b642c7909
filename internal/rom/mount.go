package rom

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

// DefaultMountLifetime is how long a mount stays open after it is opened.
const DefaultMountLifetime = 3 * time.Hour

// Downloader materializes ROM content into mounts in the background.
type Downloader interface {
	// LaunchDownload fetches and unpacks rom into mount, then calls onDone.
	// It returns immediately.
	LaunchDownload(rom model.Rom, mount model.Mount, onDone func() error)

	// IsDownloading reports whether a download into the mount is in progress.
	IsDownloading(mountID string) bool
}

// MountConfig configures a MountService.
type MountConfig struct {
	Layout        Layout
	Lifetime      time.Duration
	CacheCapacity int
}

// MountService owns the mount state machine. Every read-modify-write of a
// mount or of a ROM's mount reference runs under one lock.
type MountService struct {
	db        EntityStore
	downloads Downloader
	lister    FileLister
	layout    Layout
	lifetime  time.Duration
	clock     Clock
	idgen     IDGenerator
	logger    Logger

	mu sync.Mutex

	cacheMu sync.Mutex
	cache   *CapMap[string, []model.FileEntry]
}

// NewMountService creates the mount and archive directories and returns a
// MountService.
func NewMountService(db EntityStore, downloads Downloader, lister FileLister, cfg MountConfig, clock Clock, idgen IDGenerator, logger Logger) (*MountService, error) {
	if err := os.MkdirAll(cfg.Layout.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating mount root: %w", err)
	}
	if err := os.MkdirAll(cfg.Layout.ZipDir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultMountLifetime
	}
	return &MountService{
		db:        db,
		downloads: downloads,
		lister:    lister,
		layout:    cfg.Layout,
		lifetime:  cfg.Lifetime,
		clock:     clock,
		idgen:     idgen,
		logger:    logger,
		cache:     NewCapMap[string, []model.FileEntry](cfg.CacheCapacity),
	}, nil
}

// Layout returns the filesystem layout of mounts.
func (s *MountService) Layout() Layout {
	return s.layout
}

// CreateBucketMount creates a new, empty bucket mount.
func (s *MountService) CreateBucketMount() (model.Mount, error) {
	return s.createMount(model.MountBucket)
}

// Get returns a mount by id.
func (s *MountService) Get(mountID string) (model.Mount, error) {
	m, ok := Get[model.Mount](s.db, mountID)
	if !ok {
		return model.Mount{}, fmt.Errorf("mount %q: %w", mountID, ErrNotFound)
	}
	return m, nil
}

// FileEntries lists the files in a mount. Listings are cached until the
// cache entry is cleared.
func (s *MountService) FileEntries(mountID string) ([]model.FileEntry, error) {
	s.cacheMu.Lock()
	cached, ok := s.cache.Get(mountID)
	s.cacheMu.Unlock()
	if ok {
		return append([]model.FileEntry(nil), cached...), nil
	}

	m, err := s.Get(mountID)
	if err != nil {
		return nil, err
	}
	entries, err := s.lister.ListFiles(m.Path)
	if err != nil {
		return nil, fmt.Errorf("listing mount %s: %w", mountID, err)
	}

	s.cacheMu.Lock()
	s.cache.Set(mountID, entries)
	s.cacheMu.Unlock()
	return append([]model.FileEntry(nil), entries...), nil
}

// ClearCache drops the cached listing of a mount.
func (s *MountService) ClearCache(mountID string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Remove(mountID)
}

// DeleteFile removes a file from a bucket mount. Mounts in any other state
// are read-only.
func (s *MountService) DeleteFile(mountID, filename string) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	m, err := s.Get(mountID)
	if err != nil {
		return err
	}
	if m.State != model.MountBucket {
		return fmt.Errorf("delete from %s mount %s: %w", m.State, mountID, ErrInvalidState)
	}

	defer s.ClearCache(mountID)
	if err := os.Remove(filepath.Join(m.Path, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", filename, err)
	}
	return nil
}

// ConvertBucketMountToOpen turns a former bucket mount into an open ROM
// mount. It is used once, when a burn completes.
func (s *MountService) ConvertBucketMountToOpen(mountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.Get(mountID)
	if err != nil {
		return err
	}
	if m.State != model.MountBucket {
		return fmt.Errorf("convert %s mount %s: %w", m.State, mountID, ErrInvalidState)
	}
	m.State = model.MountOpenInUse
	m.ExpiresAt = s.clock.Now().Add(s.lifetime)
	if err := Save(s.db, m); err != nil {
		return fmt.Errorf("saving mount: %w", err)
	}
	return nil
}

// revertToBucket undoes ConvertBucketMountToOpen for a burn that could not
// be published.
func (s *MountService) revertToBucket(mountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.Get(mountID)
	if err != nil {
		return err
	}
	if m.State != model.MountOpenInUse {
		return fmt.Errorf("revert %s mount %s: %w", m.State, mountID, ErrInvalidState)
	}
	m.State = model.MountBucket
	if err := Save(s.db, m); err != nil {
		return fmt.Errorf("saving mount: %w", err)
	}
	return nil
}

// discardMount deletes a mount nobody refers to yet, record and directory.
func (s *MountService) discardMount(mountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.Get(mountID)
	if err != nil {
		return err
	}
	s.ClearCache(mountID)
	if err := Delete[model.Mount](s.db, mountID); err != nil {
		return fmt.Errorf("deleting mount: %w", err)
	}
	if err := os.RemoveAll(m.Path); err != nil {
		return fmt.Errorf("removing mount directory: %w", err)
	}
	return nil
}

// BeginMount makes a ROM's content available. A ROM without a live mount
// gets a new one that downloads in the background; a closed mount is
// reopened without downloading again.
func (s *MountService) BeginMount(romCID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rom, ok := Get[model.Rom](s.db, romCID)
	if !ok {
		return fmt.Errorf("rom %q: %w", romCID, ErrNotFound)
	}

	m, ok := Get[model.Mount](s.db, rom.CurrentMountID)
	if !ok {
		return s.createMountForRom(rom)
	}

	switch m.State {
	case model.MountBucket, model.MountDownloading, model.MountOpenInUse:
		return nil
	case model.MountClosedNotUsed:
		// Reopening does not count as a new use; otherwise repeated
		// mount/unmount would inflate popularity.
		m.State = model.MountOpenInUse
		m.ExpiresAt = s.clock.Now().Add(s.lifetime)
		if err := Save(s.db, m); err != nil {
			return fmt.Errorf("saving mount: %w", err)
		}
		s.logger.Info("mount reopened", "cid", romCID, "mount", m.ID)
		return nil
	default:
		return fmt.Errorf("mount %s in state %s: %w", m.ID, m.State, ErrInvalidState)
	}
}

// EndMount closes a ROM's open mount. Downloads cannot be cancelled and
// closed mounts stay closed. Bucket mounts can never be closed.
func (s *MountService) EndMount(romCID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rom, ok := Get[model.Rom](s.db, romCID)
	if !ok {
		return fmt.Errorf("rom %q: %w", romCID, ErrNotFound)
	}
	m, ok := Get[model.Mount](s.db, rom.CurrentMountID)
	if !ok {
		return nil
	}

	switch m.State {
	case model.MountDownloading, model.MountClosedNotUsed:
		return nil
	case model.MountOpenInUse:
		m.State = model.MountClosedNotUsed
		if err := Save(s.db, m); err != nil {
			return fmt.Errorf("saving mount: %w", err)
		}
		s.logger.Info("mount closed", "cid", romCID, "mount", m.ID)
		return nil
	default:
		return fmt.Errorf("unmount %s mount %s: %w", m.State, m.ID, ErrInvalidState)
	}
}

// CloseMount moves a mount from the given state to ClosedNotUsed. It reports
// false if the mount is gone, no longer in that state, or, when closing from
// Downloading, still tracked by the downloader.
func (s *MountService) CloseMount(mountID string, from model.MountState) (bool, error) {
	if from != model.MountOpenInUse && from != model.MountDownloading {
		return false, fmt.Errorf("close from %s: %w", from, ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := Get[model.Mount](s.db, mountID)
	if !ok || m.State != from {
		return false, nil
	}
	// BeginMount registers the download under s.mu, so this check cannot
	// miss a download that is about to start.
	if from == model.MountDownloading && s.downloads.IsDownloading(mountID) {
		return false, nil
	}
	m.State = model.MountClosedNotUsed
	if err := Save(s.db, m); err != nil {
		return false, fmt.Errorf("saving mount: %w", err)
	}
	return true, nil
}

// RemoveMount deletes the record of a closed mount that expired before
// cutoff. The mount's files are left for the caller to remove. It reports
// false if the mount is gone, was reopened, or has not expired.
func (s *MountService) RemoveMount(mountID string, cutoff time.Time) (model.Mount, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := Get[model.Mount](s.db, mountID)
	if !ok || m.State != model.MountClosedNotUsed || !m.ExpiresAt.Before(cutoff) {
		return model.Mount{}, false, nil
	}
	if err := Delete[model.Mount](s.db, mountID); err != nil {
		return model.Mount{}, false, fmt.Errorf("deleting mount: %w", err)
	}
	s.ClearCache(mountID)
	return m, true, nil
}

// FilePath returns the path of a file in a ROM's open mount. Files of mounts
// that are not open cannot be read.
func (s *MountService) FilePath(romCID, filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	rom, ok := Get[model.Rom](s.db, romCID)
	if !ok {
		return "", fmt.Errorf("rom %q: %w", romCID, ErrNotFound)
	}
	m, err := s.Get(rom.CurrentMountID)
	if err != nil {
		return "", err
	}
	if m.State != model.MountOpenInUse {
		return "", fmt.Errorf("read from %s mount %s: %w", m.State, m.ID, ErrInvalidState)
	}
	path := filepath.Join(m.Path, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("file %q in rom %s: %w", filename, romCID, ErrNotFound)
	}
	return path, nil
}

// createMountForRom must be called with s.mu held.
func (s *MountService) createMountForRom(rom model.Rom) error {
	m, err := s.createMount(model.MountDownloading)
	if err != nil {
		return err
	}
	rom.CurrentMountID = m.ID
	if err := Save(s.db, rom); err != nil {
		return fmt.Errorf("saving rom: %w", err)
	}

	s.logger.Info("mount downloading", "cid", rom.CID, "mount", m.ID)
	s.downloads.LaunchDownload(rom, m, func() error {
		return s.downloadFinished(rom.CID, m.ID)
	})
	return nil
}

func (s *MountService) downloadFinished(romCID, mountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.Get(mountID)
	if err != nil {
		return err
	}
	if m.State != model.MountDownloading {
		return fmt.Errorf("finish download of %s mount %s: %w", m.State, mountID, ErrInvalidState)
	}
	m.State = model.MountOpenInUse
	m.ExpiresAt = s.clock.Now().Add(s.lifetime)
	if err := Save(s.db, m); err != nil {
		return fmt.Errorf("saving mount: %w", err)
	}
	s.ClearCache(mountID)

	rom, ok := Get[model.Rom](s.db, romCID)
	if !ok || rom.CurrentMountID != mountID {
		return nil
	}
	rom.MountCounter++
	if err := Save(s.db, rom); err != nil {
		return fmt.Errorf("saving rom: %w", err)
	}
	return nil
}

func (s *MountService) createMount(state model.MountState) (model.Mount, error) {
	id := s.idgen.New()
	m := model.Mount{
		ID:        id,
		Path:      s.layout.MountPath(id),
		ExpiresAt: s.clock.Now().Add(s.lifetime),
		State:     state,
	}
	if err := os.MkdirAll(m.Path, 0755); err != nil {
		return model.Mount{}, fmt.Errorf("creating mount directory: %w", err)
	}
	if err := Save(s.db, m); err != nil {
		return model.Mount{}, fmt.Errorf("saving mount: %w", err)
	}
	return m, nil
}

// ValidateFilename rejects names that are empty, contain path separators,
// or collide with files the service writes itself.
func ValidateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%q: %w", name, ErrInvalidFilename)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%q contains a path separator: %w", name, ErrInvalidFilename)
	case strings.EqualFold(name, InfoFileName):
		return fmt.Errorf("%q is reserved: %w", name, ErrInvalidFilename)
	case strings.HasPrefix(name, tempFilePrefix):
		return fmt.Errorf("%q is reserved: %w", name, ErrInvalidFilename)
	}
	return nil
}
