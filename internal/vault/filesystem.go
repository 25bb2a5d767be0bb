package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"launcher-core/internal/launcher"
)

// FileSystemVault stores artifact blobs as files sharded by hash prefix:
//
//	<root>/
//	  content/
//	    <hh>/
//	      <sha256>     (blob named by its full hash)
type FileSystemVault struct {
	root       string
	contentDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &FileSystemVault{root: root, contentDir: contentDir}, nil
}

// Location returns the file path a blob is stored at.
func (v *FileSystemVault) Location(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(v.contentDir, "_", hash)
	}
	return filepath.Join(v.contentDir, hash[:2], hash)
}

// Commit renames the staged file into place. When the staging area lives on
// another filesystem the rename fails and the blob is copied instead.
func (v *FileSystemVault) Commit(ctx context.Context, hash string, blob *launcher.StagedBlob) error {
	destPath := v.Location(hash)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}

	if err := os.Rename(blob.Path, destPath); err == nil {
		return nil
	}

	f, err := blob.Open()
	if err != nil {
		return fmt.Errorf("opening staged blob: %w", err)
	}
	defer f.Close()
	return v.writeFile(destPath, f, blob.Size)
}

// Open returns a reader for the blob.
func (v *FileSystemVault) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	f, err := os.Open(v.Location(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("content %s: %w", hash, launcher.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Exists reports whether the blob file is present.
func (v *FileSystemVault) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := os.Stat(v.Location(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat content %s: %w", hash, err)
}

// Delete removes the blob file.
func (v *FileSystemVault) Delete(ctx context.Context, hash string) error {
	if err := os.Remove(v.Location(hash)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing content %s: %w", hash, err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.contentDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements launcher.Vault interface
var _ launcher.Vault = (*FileSystemVault)(nil)
