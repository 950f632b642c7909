package rom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/archive"
	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

const (
	infoFileHeader = "Created using DurabilityLabs UltraDataBurningROM"

	// ExtendWindow is how close to storage expiry a ROM must be before its
	// storage can be renewed.
	ExtendWindow = 48 * time.Hour
)

// BurnInfo is the metadata and tier a user submits to start a burn.
type BurnInfo struct {
	Fields             model.RomInfo `json:"fields"`
	DurabilityOptionID uint64        `json:"durabilityOptionId"`
}

// BurnConfig holds the size limits of a burn.
type BurnConfig struct {
	VolumeSize  uint64
	MinBurnSize uint64
}

type infoFile struct {
	Header    string        `json:"header"`
	Timestamp time.Time     `json:"timestamp"`
	Info      model.RomInfo `json:"info"`
}

// BurnService seals user buckets into ROMs and renews ROM storage.
type BurnService struct {
	db         EntityStore
	mounts     *MountService
	pool       *NodePool
	durability *Durability
	cipher     Cipher
	cfg        BurnConfig
	clock      Clock
	metrics    Metrics
	logger     Logger

	// startMu serializes burn starts and every user/ROM update made by the
	// burn pipeline.
	startMu sync.Mutex

	extendMu  sync.Mutex
	extending map[string]struct{}

	wg sync.WaitGroup
}

// NewBurnService creates a BurnService. cipher may be nil.
func NewBurnService(db EntityStore, mounts *MountService, pool *NodePool, durability *Durability, cipher Cipher, cfg BurnConfig, clock Clock, metrics Metrics, logger Logger) *BurnService {
	return &BurnService{
		db:         db,
		mounts:     mounts,
		pool:       pool,
		durability: durability,
		cipher:     cipher,
		cfg:        cfg,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
		extending:  make(map[string]struct{}),
	}
}

// StartBurn begins burning the user's bucket. It returns false without error
// when the request is a no-op: a burn is already in flight, or the bucket is
// empty, too small, or over the volume size.
func (s *BurnService) StartBurn(username string, info BurnInfo) (bool, error) {
	tier, err := s.durability.Tier(info.DurabilityOptionID)
	if err != nil {
		return false, err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	user, ok := Get[model.User](s.db, username)
	if !ok {
		return false, fmt.Errorf("user %q: %w", username, ErrUnknownUser)
	}
	if user.BurnState != model.BurnOpen {
		return false, nil
	}
	bucket, err := s.mounts.Get(user.BucketMountID)
	if err != nil {
		return false, err
	}
	if bucket.State != model.MountBucket {
		return false, fmt.Errorf("burn %s mount %s: %w", bucket.State, bucket.ID, ErrInvalidState)
	}
	entries, err := s.mounts.FileEntries(bucket.ID)
	if err != nil {
		return false, err
	}
	if !s.burnable(entries) {
		s.logger.Info("burn skipped", "user", username, "files", len(entries), "bytes", model.TotalSize(entries))
		return false, nil
	}

	user.BurnState = model.BurnStarting
	user.NewRomCID = ""
	if err := Save(s.db, user); err != nil {
		return false, fmt.Errorf("saving user: %w", err)
	}

	s.metrics.BurnStarted()
	s.logger.Info("burn started", "user", username, "mount", bucket.ID, "tier", tier.Name)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runBurn(username, bucket, info.Fields, tier)
	}()
	return true, nil
}

func (s *BurnService) burnable(entries []model.FileEntry) bool {
	if len(entries) == 0 {
		return false
	}
	total := model.TotalSize(entries)
	return total > s.cfg.MinBurnSize && total <= s.cfg.VolumeSize
}

// AcknowledgeBurn returns a Done user to Open and clears the pending ROM id.
// Other states are left alone.
func (s *BurnService) AcknowledgeBurn(username string) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	user, ok := Get[model.User](s.db, username)
	if !ok {
		return fmt.Errorf("user %q: %w", username, ErrUnknownUser)
	}
	if user.BurnState != model.BurnDone {
		return nil
	}
	user.BurnState = model.BurnOpen
	user.NewRomCID = ""
	if err := Save(s.db, user); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// whileOpen runs fn only if the user is Open and still owns bucketID. No
// burn can start while fn runs.
func (s *BurnService) whileOpen(username, bucketID string, fn func() error) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	user, ok := Get[model.User](s.db, username)
	if !ok {
		return fmt.Errorf("user %q: %w", username, ErrUnknownUser)
	}
	if user.BurnState != model.BurnOpen || user.BucketMountID != bucketID {
		return ErrBucketBusy
	}
	return fn()
}

// Wait blocks until every launched burn and storage renewal has returned.
func (s *BurnService) Wait() {
	s.wg.Wait()
}

func (s *BurnService) runBurn(username string, bucket model.Mount, info model.RomInfo, tier DurabilityTier) {
	cid, err := s.burn(username, bucket, info, tier)
	s.metrics.BurnFinished(err == nil)
	if err != nil {
		s.logger.Error("burn failed", "user", username, "mount", bucket.ID, "error", err)
		s.rollback(username, bucket)
		return
	}
	s.logger.Info("burn finished", "user", username, "mount", bucket.ID, "cid", cid)
}

func (s *BurnService) burn(username string, bucket model.Mount, info model.RomInfo, tier DurabilityTier) (cid string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("burn panicked: %v", r)
		}
	}()

	layout := s.mounts.Layout()
	if err := s.writeInfoFile(layout.InfoFilePath(bucket), info); err != nil {
		return "", fmt.Errorf("writing info file: %w", err)
	}

	if err := s.setBurnState(username, model.BurnCompressing); err != nil {
		return "", err
	}
	zipPath := layout.ZipPath(bucket.ID)
	if err := archive.CreateFromDirectory(bucket.Path, zipPath); err != nil {
		return "", fmt.Errorf("compressing bucket: %w", err)
	}

	if err := s.setBurnState(username, model.BurnUploading); err != nil {
		return "", err
	}
	ctx := context.Background()
	node, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("taking node: %w", err)
	}
	defer s.pool.Release(node)

	uploadPath := zipPath
	if s.cipher != nil {
		uploadPath = layout.SealedPath(bucket.ID)
		if err := encryptFile(s.cipher, zipPath, uploadPath); err != nil {
			return "", fmt.Errorf("encrypting archive: %w", err)
		}
		defer os.Remove(uploadPath)
	}
	uploaded, err := node.Upload(ctx, uploadPath)
	if err != nil {
		return "", fmt.Errorf("uploading to %s: %w", node.Name(), err)
	}
	s.logger.Info("archive uploaded", "user", username, "cid", uploaded, "node", node.Name())

	if err := s.setBurnState(username, model.BurnPurchasing); err != nil {
		return "", err
	}
	purchase, err := node.PurchaseStorage(ctx, uploaded, tier)
	if err != nil {
		return "", fmt.Errorf("purchasing storage for %s: %w", uploaded, err)
	}
	if purchase.CID == "" {
		return "", errors.New("purchase returned an empty content id")
	}

	if err := s.publish(username, bucket, info, purchase); err != nil {
		return "", err
	}
	return purchase.CID, nil
}

func (s *BurnService) writeInfoFile(path string, info model.RomInfo) error {
	data, err := json.MarshalIndent(infoFile{
		Header:    infoFileHeader,
		Timestamp: s.clock.Now(),
		Info:      info,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *BurnService) setBurnState(username string, state model.BurnState) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	user, ok := Get[model.User](s.db, username)
	if !ok {
		return fmt.Errorf("user %q: %w", username, ErrUnknownUser)
	}
	user.BurnState = state
	if err := Save(s.db, user); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// publish records the ROM, turns the bucket into its mount and hands the user
// a fresh bucket. On error every step already taken is undone, so the bucket
// is still a bucket and no ROM refers to it.
func (s *BurnService) publish(username string, bucket model.Mount, info model.RomInfo, purchase Purchase) (err error) {
	s.mounts.ClearCache(bucket.ID)
	entries, err := s.mounts.FileEntries(bucket.ID)
	if err != nil {
		return err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	prev, exists := Get[model.Rom](s.db, purchase.CID)
	rom := prev
	if exists {
		rom.StorageExpiresAt = purchase.ExpiresAt
		rom.MountCounter++
		rom.CurrentMountID = bucket.ID
	} else {
		rom = model.Rom{
			CID:              purchase.CID,
			Info:             info,
			Files:            entries,
			StorageExpiresAt: purchase.ExpiresAt,
			MountCounter:     1,
			CurrentMountID:   bucket.ID,
		}
	}

	var undo []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](); uerr != nil {
				s.logger.Error("undoing publish", "user", username, "cid", purchase.CID, "error", uerr)
			}
		}
	}()

	if err := Save(s.db, rom); err != nil {
		return fmt.Errorf("saving rom: %w", err)
	}
	undo = append(undo, func() error {
		if exists {
			return Save(s.db, prev)
		}
		return Delete[model.Rom](s.db, purchase.CID)
	})

	if err := s.mounts.ConvertBucketMountToOpen(bucket.ID); err != nil {
		return fmt.Errorf("opening rom mount: %w", err)
	}
	undo = append(undo, func() error { return s.mounts.revertToBucket(bucket.ID) })

	next, err := s.mounts.CreateBucketMount()
	if err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	undo = append(undo, func() error { return s.mounts.discardMount(next.ID) })

	user, ok := Get[model.User](s.db, username)
	if !ok {
		return fmt.Errorf("user %q: %w", username, ErrUnknownUser)
	}
	user.BucketMountID = next.ID
	user.BurnState = model.BurnDone
	user.NewRomCID = purchase.CID
	if err := Save(s.db, user); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// rollback discards burn artifacts and returns the user to Open. The
// bucket's own files are left untouched. Artifacts of a mount that has
// already become a ROM mount belong to that ROM and are kept.
func (s *BurnService) rollback(username string, bucket model.Mount) {
	if m, err := s.mounts.Get(bucket.ID); err == nil && m.State == model.MountBucket {
		layout := s.mounts.Layout()
		for _, path := range []string{layout.InfoFilePath(bucket), layout.ZipPath(bucket.ID), layout.SealedPath(bucket.ID)} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("removing burn artifact", "path", path, "error", err)
			}
		}
	} else {
		s.logger.Warn("keeping artifacts of published mount", "mount", bucket.ID)
	}
	s.mounts.ClearCache(bucket.ID)

	s.startMu.Lock()
	defer s.startMu.Unlock()

	user, ok := Get[model.User](s.db, username)
	if !ok {
		s.logger.Error("rollback of unknown user", "user", username)
		return
	}
	if m, err := s.mounts.Get(user.BucketMountID); err != nil || m.State != model.MountBucket {
		next, err := s.mounts.CreateBucketMount()
		if err != nil {
			s.logger.Error("creating bucket during rollback", "user", username, "error", err)
		} else {
			user.BucketMountID = next.ID
		}
	}
	user.BurnState = model.BurnOpen
	user.NewRomCID = ""
	if err := Save(s.db, user); err != nil {
		s.logger.Error("saving user during rollback", "user", username, "error", err)
	}
}

// ExtendRom renews the storage of a ROM whose storage expires within
// ExtendWindow. It returns false when the ROM is outside the window, already
// expired, or already being renewed. The purchase runs in the background.
func (s *BurnService) ExtendRom(cid string, tierID uint64) (bool, error) {
	tier, err := s.durability.Tier(tierID)
	if err != nil {
		return false, err
	}
	rom, ok := Get[model.Rom](s.db, cid)
	if !ok {
		return false, fmt.Errorf("rom %q: %w", cid, ErrNotFound)
	}

	now := s.clock.Now()
	if !now.Before(rom.StorageExpiresAt) || rom.StorageExpiresAt.Sub(now) > ExtendWindow {
		return false, nil
	}

	s.extendMu.Lock()
	if _, busy := s.extending[cid]; busy {
		s.extendMu.Unlock()
		return false, nil
	}
	s.extending[cid] = struct{}{}
	s.extendMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.extendMu.Lock()
			delete(s.extending, cid)
			s.extendMu.Unlock()
		}()
		if err := s.extend(cid, tier); err != nil {
			s.logger.Error("storage renewal failed", "cid", cid, "error", err)
			return
		}
		s.logger.Info("storage renewed", "cid", cid, "tier", tier.Name)
	}()
	return true, nil
}

func (s *BurnService) extend(cid string, tier DurabilityTier) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renewal panicked: %v", r)
		}
	}()

	ctx := context.Background()
	node, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("taking node: %w", err)
	}
	defer s.pool.Release(node)

	purchase, err := node.PurchaseStorage(ctx, cid, tier)
	if err != nil {
		return fmt.Errorf("purchasing storage: %w", err)
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	rom, ok := Get[model.Rom](s.db, cid)
	if !ok {
		return fmt.Errorf("rom %q: %w", cid, ErrNotFound)
	}
	if purchase.ExpiresAt.After(rom.StorageExpiresAt) {
		rom.StorageExpiresAt = purchase.ExpiresAt
	}
	if err := Save(s.db, rom); err != nil {
		return fmt.Errorf("saving rom: %w", err)
	}
	return nil
}
