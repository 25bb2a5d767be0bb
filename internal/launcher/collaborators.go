package launcher

import (
	"context"
	"io"
	"time"
)

// SettingsStore is a durable mapping from string key to serialized value.
type SettingsStore interface {
	// Get returns the stored value. Returns an error wrapping ErrNotFound if
	// the key is unset.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ManifestSource resolves the file list for a game version and loader from
// the remote version/loader metadata service.
type ManifestSource interface {
	ResolveManifest(ctx context.Context, gameVersion string, loader LoaderKind) (*Manifest, error)
}

// Fetcher retrieves remote bytes. Failures that retrying cannot fix wrap
// ErrPermanentFetch; every other error is treated as transient.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Process is a handle to a spawned game process.
type Process interface {
	PID() int
	Wait() error
	Kill() error
}

// ProcessSpawner starts external processes.
type ProcessSpawner interface {
	Spawn(ctx context.Context, executable string, args []string, workDir string) (Process, error)
}

// Workspace materializes artifacts into a profile's client directory.
type Workspace interface {
	// Installed reports whether rel exists under root with the given size
	// and SHA-256 hex digest.
	Installed(root, rel string, size int64, hash string) (bool, error)

	// Install atomically writes r to rel under root. rel must stay inside
	// root; otherwise the error wraps ErrUnsafePath.
	Install(root, rel string, r io.Reader) error
}

// VerifiedIdentity is returned by a CredentialVerifier. UUID may be empty, in which case
// a stable UUID is derived from the name.
type VerifiedIdentity struct {
	Name string
	UUID string
}

// CredentialVerifier checks a login/secret pair. Rejected credentials return
// an error wrapping ErrAuthenticationFailed; any other error is an
// infrastructure failure.
type CredentialVerifier interface {
	Verify(ctx context.Context, login, secret string) (*VerifiedIdentity, error)
}

// TokenIssuer mints access and refresh tokens.
type TokenIssuer interface {
	// IssueAccessToken returns a signed, unique access token for subject.
	IssueAccessToken(subject string, issuedAt, expiresAt time.Time) (string, error)

	// NewRefreshToken returns an opaque refresh token and the hash to store.
	NewRefreshToken() (token string, hash []byte, err error)

	// HashRefreshToken hashes a presented refresh token for comparison.
	HashRefreshToken(token string) []byte
}
