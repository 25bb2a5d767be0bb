package encryption

import (
	"fmt"

	"launcher-core/internal/config"
	"launcher-core/internal/launcher"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// It returns nil for "none", meaning blobs are stored unsealed.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (launcher.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
