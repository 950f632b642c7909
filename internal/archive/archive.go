// Package archive packs a mount directory into a zip file and unpacks it again.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrTooLarge is returned when an archive unpacks to more bytes than allowed.
var ErrTooLarge = errors.New("archive exceeds size limit")

// CreateFromDirectory writes every regular file under dir into a new zip file
// at zipPath. zipPath must not be inside dir. An existing file is replaced.
func CreateFromDirectory(dir, zipPath string) (err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving directory: %w", err)
	}
	absZip, err := filepath.Abs(zipPath)
	if err != nil {
		return fmt.Errorf("resolving archive path: %w", err)
	}
	if strings.HasPrefix(absZip, absDir+string(filepath.Separator)) {
		return fmt.Errorf("archive %s is inside source directory %s", zipPath, dir)
	}

	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing archive: %w", cerr)
		}
		if err != nil {
			os.Remove(zipPath)
		}
	}()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(absDir, p)
		if err != nil {
			return err
		}
		return addFile(zw, p, filepath.ToSlash(rel))
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// ExtractToDirectory unpacks the zip file at zipPath into dir, creating dir
// if needed. Entries that would escape dir are rejected, and so is an archive
// holding more than maxBytes of file content. Zero maxBytes means no limit.
func ExtractToDirectory(zipPath, dir string, maxBytes uint64) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	budget := int64(math.MaxInt64)
	if maxBytes > 0 && maxBytes < math.MaxInt64 {
		budget = int64(maxBytes)
	}
	var declared uint64
	for _, zf := range zr.File {
		declared += zf.UncompressedSize64
		if maxBytes > 0 && declared > maxBytes {
			return fmt.Errorf("%w: declares more than %d bytes", ErrTooLarge, maxBytes)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving target directory: %w", err)
	}

	for _, zf := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes target directory", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", zf.Name, err)
			}
			continue
		}
		n, err := extractFile(zf, target, budget)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", zf.Name, err)
		}
		budget -= n
	}
	return nil
}

// extractFile writes one entry to target, reading at most limit bytes.
// Headers can understate the size, so the limit is enforced on the stream.
func extractFile(zf *zip.File, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}
	r, err := zf.Open()
	if err != nil {
		return 0, err
	}
	defer r.Close()

	w, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	src := io.Reader(r)
	if limit < math.MaxInt64 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		w.Close()
		return n, err
	}
	if n > limit {
		w.Close()
		os.Remove(target)
		return n, ErrTooLarge
	}
	return n, w.Close()
}
