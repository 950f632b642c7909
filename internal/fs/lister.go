package fs

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/durability-labs/ultra-data-burning-rom/internal/config"
	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// OSLister lists mount directories on the real filesystem.
type OSLister struct {
	ignore *IgnoreMatcher
}

// NewOSLister creates a lister that skips files matching the given patterns.
func NewOSLister(patterns []string) *OSLister {
	return &OSLister{ignore: NewIgnoreMatcher(patterns)}
}

// NewListerFromConfig creates the mount lister from configuration.
func NewListerFromConfig(cfg config.FilesystemConfig) *OSLister {
	return NewOSLister(cfg.Ignore)
}

// ListFiles returns the regular files directly inside dir, sorted by name.
// Subdirectories, symlinks and ignored files are skipped.
func (l *OSLister) ListFiles(dir string) ([]model.FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	files := make([]model.FileEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if l.ignore.Match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				// deleted between ReadDir and Info
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		files = append(files, model.FileEntry{
			Filename: entry.Name(),
			ByteSize: uint64(info.Size()),
		})
	}

	slices.SortFunc(files, func(a, b model.FileEntry) int {
		return strings.Compare(a.Filename, b.Filename)
	})
	return files, nil
}

var _ rom.FileLister = (*OSLister)(nil)
