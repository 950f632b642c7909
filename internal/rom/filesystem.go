package rom

import (
	"io"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

// FileLister lists the files of a mount directory.
type FileLister interface {
	// ListFiles returns the regular files directly inside dir.
	ListFiles(dir string) ([]model.FileEntry, error)
}

// Cipher seals archives before upload and opens them after download.
// A nil Cipher means archives are stored as plain zip files.
type Cipher interface {
	Encrypt(r io.Reader, w io.Writer) error
	Decrypt(r io.Reader, w io.Writer) error
}
