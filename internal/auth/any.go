// Package auth provides launcher.CredentialVerifier implementations.
package auth

import (
	"context"
	"fmt"
	"regexp"

	"launcher-core/internal/launcher"
)

var playerName = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// AnyVerifier accepts every well-formed player name regardless of secret.
// It is meant for offline and development servers.
type AnyVerifier struct{}

var _ launcher.CredentialVerifier = AnyVerifier{}

func (AnyVerifier) Verify(_ context.Context, login, _ string) (*launcher.VerifiedIdentity, error) {
	if !playerName.MatchString(login) {
		return nil, fmt.Errorf("malformed player name: %w", launcher.ErrAuthenticationFailed)
	}
	return &launcher.VerifiedIdentity{Name: login}, nil
}
