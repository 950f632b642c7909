package rom

import "errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks a transition requested from a state that does not
	// allow it. It signals a caller or programming error.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnknownUser is returned for usernames that are not allow-listed.
	ErrUnknownUser = errors.New("unknown user")

	// ErrBucketBusy is returned when a bucket is modified while a burn is in flight.
	ErrBucketBusy = errors.New("bucket is busy burning")

	// ErrInvalidFilename is returned for reserved or unsafe bucket file names.
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrVolumeFull is returned when a write would exceed the volume size.
	ErrVolumeFull = errors.New("volume full")

	// ErrUnknownTier is returned for durability tier ids that are not configured.
	ErrUnknownTier = errors.New("unknown durability tier")
)
