package model

import "time"

// Entity is implemented by every persisted record. Both methods use value
// receivers so the kind can be read from a zero value.
type Entity interface {
	EntityKind() string
	EntityID() string
}

// Entity kinds. Each kind has its own namespace in the store.
const (
	KindUser           = "user"
	KindMount          = "mount"
	KindRom            = "rom"
	KindPopularContent = "popcontent"
)

// User is an allow-listed account and its staging bucket.
type User struct {
	Username      string    `json:"username"`
	BucketMountID string    `json:"bucket_mount_id"`
	BurnState     BurnState `json:"burn_state"`
	NewRomCID     string    `json:"new_rom_cid"` // set at burn completion, cleared on acknowledge
}

func (User) EntityKind() string { return KindUser }
func (u User) EntityID() string { return u.Username }

// Mount is a directory-backed, time-boxed materialization of a bucket or a ROM.
type Mount struct {
	ID        string     `json:"id"`
	Path      string     `json:"path"`
	ExpiresAt time.Time  `json:"expires_at"`
	State     MountState `json:"state"`
}

func (Mount) EntityKind() string { return KindMount }
func (m Mount) EntityID() string { return m.ID }

// Rom is an immutable published archive. CID is the remote content id.
// Info and Files never change after creation.
type Rom struct {
	CID              string      `json:"cid"`
	Info             RomInfo     `json:"info"`
	Files            []FileEntry `json:"files"`
	StorageExpiresAt time.Time   `json:"storage_expires_at"`
	MountCounter     int         `json:"mount_counter"`
	CurrentMountID   string      `json:"current_mount_id"`
}

func (Rom) EntityKind() string { return KindRom }
func (r Rom) EntityID() string { return r.CID }

// RomInfo is the descriptive metadata submitted with a burn.
type RomInfo struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Tags        string `json:"tags"`
	Description string `json:"description"`
}

// FileEntry is a file name and its size in bytes.
type FileEntry struct {
	Filename string `json:"filename"`
	ByteSize uint64 `json:"byte_size"`
}

// PopularContent is the persisted result of the last popularity pass.
type PopularContent struct {
	ID      string   `json:"id"`
	RomCIDs []string `json:"rom_cids"`
	Tags    []string `json:"tags"`
}

func (PopularContent) EntityKind() string { return KindPopularContent }
func (p PopularContent) EntityID() string { return p.ID }

// TotalSize sums the byte sizes of entries.
func TotalSize(entries []FileEntry) uint64 {
	var total uint64
	for _, e := range entries {
		total += e.ByteSize
	}
	return total
}
