package rom

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

// tempFilePrefix marks uploads that have not been committed to a bucket yet.
const tempFilePrefix = ".tmp-"

// BucketView is a user's bucket as shown to clients.
type BucketView struct {
	Entries    []model.FileEntry `json:"entries"`
	VolumeSize uint64            `json:"volumeSize"`
	State      model.BurnState   `json:"state"`
	ExpiresAt  int64             `json:"expiresAt"`
	RomCID     string            `json:"romCid"`
}

// BucketService implements the user-facing bucket operations.
type BucketService struct {
	users      *UserService
	mounts     *MountService
	burns      *BurnService
	volumeSize uint64
	logger     Logger
}

// NewBucketService creates a BucketService.
func NewBucketService(users *UserService, mounts *MountService, burns *BurnService, volumeSize uint64, logger Logger) *BucketService {
	return &BucketService{
		users:      users,
		mounts:     mounts,
		burns:      burns,
		volumeSize: volumeSize,
		logger:     logger,
	}
}

// GetBucket returns the user's bucket. Unknown users get an empty view.
func (s *BucketService) GetBucket(username string) (BucketView, error) {
	user, err := s.users.GetUser(username)
	if errors.Is(err, ErrUnknownUser) {
		return BucketView{}, nil
	}
	if err != nil {
		return BucketView{}, err
	}
	bucket, err := s.mounts.Get(user.BucketMountID)
	if err != nil {
		return BucketView{}, err
	}
	entries, err := s.mounts.FileEntries(bucket.ID)
	if err != nil {
		return BucketView{}, err
	}

	view := BucketView{
		Entries:    entries,
		VolumeSize: s.volumeSize,
		State:      user.BurnState,
		RomCID:     user.NewRomCID,
	}
	if len(entries) > 0 {
		view.ExpiresAt = UnixMillis(bucket.ExpiresAt)
	}
	return view, nil
}

// IsBucketOpen reports whether the user's bucket accepts changes.
func (s *BucketService) IsBucketOpen(username string) bool {
	user, err := s.users.GetUser(username)
	return err == nil && user.BurnState == model.BurnOpen
}

// WriteFile stores the content of r as filename in the user's bucket,
// replacing any file of that name. The write fails with ErrVolumeFull if the
// bucket would exceed the volume size.
func (s *BucketService) WriteFile(username, filename string, r io.Reader) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	user, err := s.users.GetUser(username)
	if err != nil {
		return err
	}
	if user.BurnState != model.BurnOpen {
		return ErrBucketBusy
	}
	bucket, err := s.mounts.Get(user.BucketMountID)
	if err != nil {
		return err
	}
	remaining, err := s.remaining(bucket.ID, filename)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.mounts.Layout().ZipDir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, int64(remaining)+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	if uint64(n) > remaining {
		return fmt.Errorf("writing %s: %w", filename, ErrVolumeFull)
	}

	// Concurrent uploads may have committed since remaining was computed;
	// commits are serialized by whileOpen, so recheck against a fresh listing.
	err = s.burns.whileOpen(username, bucket.ID, func() error {
		s.mounts.ClearCache(bucket.ID)
		left, err := s.remaining(bucket.ID, filename)
		if err != nil {
			return err
		}
		if uint64(n) > left {
			return fmt.Errorf("writing %s: %w", filename, ErrVolumeFull)
		}
		return os.Rename(tmpPath, filepath.Join(bucket.Path, filename))
	})
	if err != nil {
		return err
	}
	committed = true
	s.mounts.ClearCache(bucket.ID)
	s.logger.Debug("file stored", "user", username, "mount", bucket.ID, "file", filename, "bytes", n)
	return nil
}

// remaining returns how many bytes filename may hold without the bucket
// exceeding the volume size.
func (s *BucketService) remaining(bucketID, filename string) (uint64, error) {
	entries, err := s.mounts.FileEntries(bucketID)
	if err != nil {
		return 0, err
	}
	used := model.TotalSize(entries)
	for _, e := range entries {
		if e.Filename == filename {
			used -= e.ByteSize
		}
	}
	if used >= s.volumeSize {
		return 0, nil
	}
	return s.volumeSize - used, nil
}

// DeleteFile removes a file from the user's bucket.
func (s *BucketService) DeleteFile(username, filename string) error {
	user, err := s.users.GetUser(username)
	if err != nil {
		return err
	}
	return s.burns.whileOpen(username, user.BucketMountID, func() error {
		return s.mounts.DeleteFile(user.BucketMountID, filename)
	})
}

// Refresh drops the cached listing of the user's bucket.
func (s *BucketService) Refresh(username string) error {
	user, err := s.users.GetUser(username)
	if err != nil {
		return err
	}
	s.mounts.ClearCache(user.BucketMountID)
	return nil
}

// StartBurn starts burning the user's bucket. Unknown users are a no-op.
func (s *BucketService) StartBurn(username string, info BurnInfo) (bool, error) {
	if _, err := s.users.GetUser(username); err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return false, nil
		}
		return false, err
	}
	return s.burns.StartBurn(username, info)
}

// AcknowledgeBurn clears a finished burn so the user can burn again.
func (s *BucketService) AcknowledgeBurn(username string) error {
	if _, err := s.users.GetUser(username); err != nil {
		return err
	}
	return s.burns.AcknowledgeBurn(username)
}
