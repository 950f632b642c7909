package rom

import (
	"path/filepath"
	"strings"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

// InfoFileName is the manifest written into a bucket at burn time.
const InfoFileName = "__UltraDataBurningROM__.json"

// Layout maps mounts onto the filesystem. Each mount owns one directory under
// Root. Its archive lives under ZipDir, outside every mount tree, so that
// compressing a mount never includes its own archive.
type Layout struct {
	Root   string
	ZipDir string
}

// MountPath returns the directory of a mount.
func (l Layout) MountPath(mountID string) string {
	return filepath.Join(l.Root, mountID)
}

// ZipPath returns the archive path of a mount.
func (l Layout) ZipPath(mountID string) string {
	return filepath.Join(l.ZipDir, "__"+strings.ToLower(mountID)+".zip")
}

// SealedPath returns the encrypted archive path of a mount.
func (l Layout) SealedPath(mountID string) string {
	return l.ZipPath(mountID) + ".age"
}

// InfoFilePath returns the manifest path inside a mount.
func (l Layout) InfoFilePath(m model.Mount) string {
	return filepath.Join(m.Path, InfoFileName)
}
