package auth

import (
	"fmt"

	"launcher-core/internal/config"
	"launcher-core/internal/launcher"
)

// NewVerifierFromConfig creates a CredentialVerifier based on the auth config type.
func NewVerifierFromConfig(cfg config.AuthConfig) (launcher.CredentialVerifier, error) {
	switch cfg.Type {
	case "any":
		return AnyVerifier{}, nil
	case "static":
		v, err := NewStaticVerifier(cfg.Users)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("endpoint required for http auth")
		}
		return NewHTTPVerifier(cfg.Endpoint, cfg.Timeout.Duration), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", cfg.Type)
	}
}
