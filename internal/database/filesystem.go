package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

const recordExt = ".json"

// filesystemBackend stores one JSON file per record under root/<kind>/<id>.json.
type filesystemBackend struct {
	root string
}

// NewFilesystemStore creates a Store that keeps records as files under dataDir.
func NewFilesystemStore(dataDir string, capacity int, logger rom.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return newStore(&filesystemBackend{root: dataDir}, capacity, logger), nil
}

func (b *filesystemBackend) path(kind, id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid record id %q", id)
	}
	return filepath.Join(b.root, kind, id+recordExt), nil
}

func (b *filesystemBackend) read(kind, id string) ([]byte, error) {
	path, err := b.path(kind, id)
	if err != nil {
		return nil, errMissing
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errMissing
	}
	return data, err
}

// write replaces the record atomically via a temp file and rename.
func (b *filesystemBackend) write(kind, id string, data []byte) error {
	path, err := b.path(kind, id)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (b *filesystemBackend) remove(kind, id string) error {
	path, err := b.path(kind, id)
	if err != nil {
		return errMissing
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return errMissing
	}
	return err
}

func (b *filesystemBackend) list(kind string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.root, kind))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, recordExt))
	}
	return ids, nil
}

func (b *filesystemBackend) close() error { return nil }
