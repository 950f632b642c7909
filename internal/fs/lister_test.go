package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/durability-labs/ultra-data-burning-rom/internal/config"
)

func TestOSLister_ListFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	write("b.txt", "hello")
	write("a.bin", "")
	write(".DS_Store", "junk")
	write(".tmp-998877", "partial")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "b.txt"), filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}

	l := NewListerFromConfig(config.NewConfig(t.TempDir()).Filesystem)
	files, err := l.ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListFiles() returned %d files, want 2: %+v", len(files), files)
	}
	if files[0].Filename != "a.bin" || files[0].ByteSize != 0 {
		t.Errorf("files[0] = %+v, want a.bin/0", files[0])
	}
	if files[1].Filename != "b.txt" || files[1].ByteSize != 5 {
		t.Errorf("files[1] = %+v, want b.txt/5", files[1])
	}
}

func TestOSLister_MissingDirectory(t *testing.T) {
	t.Parallel()
	l := NewOSLister(nil)
	if _, err := l.ListFiles(filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Error("ListFiles() of missing directory expected error")
	}
}

func TestOSLister_EmptyDirectory(t *testing.T) {
	t.Parallel()
	files, err := NewOSLister(nil).ListFiles(t.TempDir())
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if files == nil || len(files) != 0 {
		t.Errorf("ListFiles() = %#v, want empty non-nil slice", files)
	}
}
