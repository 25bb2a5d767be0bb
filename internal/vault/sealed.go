package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"launcher-core/internal/launcher"
)

// SealedVault encrypts blobs before handing them to an inner vault and
// decrypts them on read. Keys stay the plaintext hash, so deduplication and
// integrity checks work on plaintext.
type SealedVault struct {
	inner     launcher.Vault
	encryptor launcher.Encryptor
	dec       launcher.DecryptionContext
}

// NewSealedVault wraps inner. dec may be nil, in which case reads fail; that
// suits processes that only ever write.
func NewSealedVault(inner launcher.Vault, encryptor launcher.Encryptor, dec launcher.DecryptionContext) *SealedVault {
	return &SealedVault{inner: inner, encryptor: encryptor, dec: dec}
}

// Commit writes the ciphertext to a temp file next to the staged blob and
// commits that in its place.
func (v *SealedVault) Commit(ctx context.Context, hash string, blob *launcher.StagedBlob) error {
	src, err := blob.Open()
	if err != nil {
		return fmt.Errorf("opening staged blob: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(blob.Path), ".seal-*")
	if err != nil {
		return fmt.Errorf("creating sealed temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := v.encryptor.Encrypt(src, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encrypting %s: %w", hash, err)
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return fmt.Errorf("stat sealed temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing sealed temp file: %w", err)
	}

	sealed := &launcher.StagedBlob{Path: tmpPath, Hash: hash, Size: info.Size()}
	return v.inner.Commit(ctx, hash, sealed)
}

// Open decrypts the inner blob as it is read.
func (v *SealedVault) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if v.dec == nil {
		return nil, fmt.Errorf("reading sealed content %s: vault is locked", hash)
	}
	rc, err := v.inner.Open(ctx, hash)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		err := v.dec.Decrypt(rc, pw)
		rc.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (v *SealedVault) Exists(ctx context.Context, hash string) (bool, error) {
	return v.inner.Exists(ctx, hash)
}

func (v *SealedVault) Delete(ctx context.Context, hash string) error {
	return v.inner.Delete(ctx, hash)
}

func (v *SealedVault) Location(hash string) string {
	return v.inner.Location(hash)
}

func (v *SealedVault) ValidateSetup(ctx context.Context) error {
	if !v.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys are not configured")
	}
	return v.inner.ValidateSetup(ctx)
}

// Compile-time check that SealedVault implements launcher.Vault interface
var _ launcher.Vault = (*SealedVault)(nil)
