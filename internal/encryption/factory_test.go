package encryption

import (
	"testing"

	"github.com/durability-labs/ultra-data-burning-rom/internal/config"
)

func TestNewCipherFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("none", func(t *testing.T) {
		c, err := NewCipherFromConfig(config.EncryptionConfig{Type: "none"}, "")
		if err != nil || c != nil {
			t.Errorf("NewCipherFromConfig(none) = %v, %v, want nil, nil", c, err)
		}
	})

	t.Run("test", func(t *testing.T) {
		c, err := NewCipherFromConfig(config.EncryptionConfig{Type: "test"}, "")
		if err != nil {
			t.Fatalf("NewCipherFromConfig(test) error = %v", err)
		}
		if _, ok := c.(TestCipher); !ok {
			t.Errorf("NewCipherFromConfig(test) = %T, want TestCipher", c)
		}
	})

	t.Run("age without keys", func(t *testing.T) {
		_, cfg := newTestAgeKeys(t)
		if _, err := NewCipherFromConfig(cfg, "p"); err == nil {
			t.Error("expected error when keys are missing")
		}
	})

	t.Run("age with keys", func(t *testing.T) {
		k, cfg := newTestAgeKeys(t)
		if err := k.Setup("p"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if _, err := NewCipherFromConfig(cfg, "wrong"); err == nil {
			t.Error("expected error for wrong passphrase")
		}
		c, err := NewCipherFromConfig(cfg, "p")
		if err != nil {
			t.Fatalf("NewCipherFromConfig(age) error = %v", err)
		}
		if _, ok := c.(*AgeCipher); !ok {
			t.Errorf("NewCipherFromConfig(age) = %T, want *AgeCipher", c)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := NewCipherFromConfig(config.EncryptionConfig{Type: "rot13"}, ""); err == nil {
			t.Error("expected error for unknown type")
		}
	})
}
