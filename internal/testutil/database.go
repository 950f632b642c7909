package testutil

import (
	"path/filepath"
	"testing"

	"github.com/durability-labs/ultra-data-burning-rom/internal/database"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// NewTestStore creates a filesystem-backed entity store in a temp directory.
// The store is closed when the test completes.
func NewTestStore(t *testing.T) *database.Store {
	t.Helper()

	db, err := database.NewFilesystemStore(filepath.Join(t.TempDir(), "db"), 16, rom.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
