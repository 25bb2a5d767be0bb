package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"launcher-core/internal/config"
	"launcher-core/internal/launcher"
)

// dummyHash is compared against when the login is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("lcore-unknown-user"), bcrypt.MinCost)

type staticEntry struct {
	uuid string
	hash []byte
}

// StaticVerifier checks secrets against a fixed table of bcrypt hashes.
type StaticVerifier struct {
	users map[string]staticEntry
}

var _ launcher.CredentialVerifier = (*StaticVerifier)(nil)

// NewStaticVerifier builds a verifier from the configured user table.
func NewStaticVerifier(users []config.StaticUser) (*StaticVerifier, error) {
	v := &StaticVerifier{users: make(map[string]staticEntry, len(users))}
	for _, u := range users {
		if u.Login == "" {
			return nil, fmt.Errorf("static user with empty login")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("static user %s: invalid bcrypt hash: %w", u.Login, err)
		}
		if _, dup := v.users[u.Login]; dup {
			return nil, fmt.Errorf("static user %s listed twice", u.Login)
		}
		v.users[u.Login] = staticEntry{uuid: u.UUID, hash: []byte(u.PasswordHash)}
	}
	return v, nil
}

func (v *StaticVerifier) Verify(_ context.Context, login, secret string) (*launcher.VerifiedIdentity, error) {
	entry, ok := v.users[login]
	hash := entry.hash
	if !ok {
		hash = dummyHash
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil || !ok {
		return nil, launcher.ErrAuthenticationFailed
	}
	return &launcher.VerifiedIdentity{Name: login, UUID: entry.uuid}, nil
}

// HashPassword returns a bcrypt hash suitable for the static user table.
func HashPassword(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}
