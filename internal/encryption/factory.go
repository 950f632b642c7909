package encryption

import (
	"fmt"

	"github.com/durability-labs/ultra-data-burning-rom/internal/config"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// NewCipherFromConfig returns the archive cipher for the configuration type.
// Type "none" returns a nil cipher: archives are stored as plain zip files.
// Type "age" unlocks the private key with passphrase.
func NewCipherFromConfig(cfg config.EncryptionConfig, passphrase string) (rom.Cipher, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		keys := NewAgeKeys(cfg)
		if !keys.IsConfigured() {
			return nil, fmt.Errorf("age keys not found at %s; run `brom keys init`", cfg.PublicKeyPath)
		}
		c, err := keys.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking archive key: %w", err)
		}
		return c, nil
	case "test":
		return TestCipher{}, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
