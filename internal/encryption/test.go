package encryption

import (
	"bytes"
	"fmt"
	"io"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// testHeader is prepended by TestCipher so sealed output differs from the
// plaintext while staying deterministic.
var testHeader = []byte("BROMENC\x00")

// TestCipher is a reversible, crypto-free cipher for tests.
type TestCipher struct{}

var _ rom.Cipher = TestCipher{}

func (TestCipher) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (TestCipher) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
