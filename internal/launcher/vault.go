package launcher

import (
	"context"
	"io"
)

// Vault is the permanent blob store behind the ArtifactStore. Blobs are keyed
// by their SHA-256 content hash.
type Vault interface {
	// Commit moves a staged blob into permanent storage under hash. Backends
	// that can rename (the filesystem vault) consume the staged file; others
	// copy it. Committing a hash that already exists replaces the blob.
	Commit(ctx context.Context, hash string, blob *StagedBlob) error

	// Open returns a reader for the blob. Returns an error wrapping
	// ErrNotFound if no blob is stored under hash.
	Open(ctx context.Context, hash string) (io.ReadCloser, error)

	// Exists reports whether a blob is stored under hash.
	Exists(ctx context.Context, hash string) (bool, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, hash string) error

	// Location returns the backend-specific storage path recorded on the
	// ArtifactRecord.
	Location(hash string) string

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
