package model

import "fmt"

// BurnState tracks a user's bucket through the burn pipeline.
type BurnState int

const (
	BurnUnknown BurnState = iota
	BurnOpen
	BurnStarting
	BurnCompressing
	BurnUploading
	BurnPurchasing
	BurnDone
)

var burnStateNames = []string{"unknown", "open", "starting", "compressing", "uploading", "purchasing", "done"}

func (s BurnState) String() string {
	if int(s) < 0 || int(s) >= len(burnStateNames) {
		return fmt.Sprintf("BurnState(%d)", int(s))
	}
	return burnStateNames[s]
}

func (s BurnState) MarshalText() ([]byte, error) {
	if int(s) < 0 || int(s) >= len(burnStateNames) {
		return nil, fmt.Errorf("invalid burn state %d", int(s))
	}
	return []byte(burnStateNames[s]), nil
}

func (s *BurnState) UnmarshalText(b []byte) error {
	for i, name := range burnStateNames {
		if name == string(b) {
			*s = BurnState(i)
			return nil
		}
	}
	return fmt.Errorf("invalid burn state %q", string(b))
}

// MountState is the lifecycle state of a Mount. Unknown is never persisted.
type MountState int

const (
	MountUnknown MountState = iota
	MountBucket
	MountDownloading
	MountOpenInUse
	MountClosedNotUsed
)

var mountStateNames = []string{"unknown", "bucket", "downloading", "open", "closed"}

func (s MountState) String() string {
	if int(s) < 0 || int(s) >= len(mountStateNames) {
		return fmt.Sprintf("MountState(%d)", int(s))
	}
	return mountStateNames[s]
}

func (s MountState) MarshalText() ([]byte, error) {
	if s == MountUnknown || int(s) < 0 || int(s) >= len(mountStateNames) {
		return nil, fmt.Errorf("invalid mount state %d", int(s))
	}
	return []byte(mountStateNames[s]), nil
}

func (s *MountState) UnmarshalText(b []byte) error {
	for i, name := range mountStateNames {
		if i != int(MountUnknown) && name == string(b) {
			*s = MountState(i)
			return nil
		}
	}
	return fmt.Errorf("invalid mount state %q", string(b))
}
