// Package fs materializes artifacts into profile client directories.
package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"launcher-core/internal/launcher"
)

// OSWorkspace is the real filesystem implementation of launcher.Workspace.
type OSWorkspace struct{}

// NewOSWorkspace creates a workspace that writes to the real filesystem.
func NewOSWorkspace() *OSWorkspace {
	return &OSWorkspace{}
}

// resolve joins rel onto root, rejecting paths that escape root either
// lexically or through a symlinked parent directory.
func resolve(root, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q: %w", rel, launcher.ErrUnsafePath)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q: %w", rel, launcher.ErrUnsafePath)
	}
	full := filepath.Join(root, clean)

	// Walk existing parents; none may be a symlink.
	dir := root
	for _, part := range strings.Split(filepath.Dir(clean), string(filepath.Separator)) {
		if part == "." {
			break
		}
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", dir, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("symlinked directory %s: %w", dir, launcher.ErrUnsafePath)
		}
	}
	return full, nil
}

// Installed reports whether rel is a regular file under root with the given
// size and SHA-256 digest. Special files never count as installed. The size
// is checked first so a mismatch costs no read.
func (w *OSWorkspace) Installed(root, rel string, size int64, hash string) (bool, error) {
	full, err := resolve(root, rel)
	if err != nil {
		return false, err
	}
	info, err := os.Lstat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", full, err)
	}
	if !info.Mode().IsRegular() || info.Size() != size {
		return false, nil
	}

	f, err := os.Open(full)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", full, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, fmt.Errorf("hashing %s: %w", full, err)
	}
	return hex.EncodeToString(h.Sum(nil)) == hash, nil
}

// Install writes r to a temp file next to the target and renames it into
// place, replacing whatever was there.
func (w *OSWorkspace) Install(root, rel string, r io.Reader) error {
	full, err := resolve(root, rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".install-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if info, err := os.Lstat(full); err == nil && info.IsDir() {
		return fmt.Errorf("install %s: target is a directory", rel)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		return fmt.Errorf("installing %s: %w", rel, err)
	}
	return nil
}

// Compile-time check that OSWorkspace implements launcher.Workspace
var _ launcher.Workspace = (*OSWorkspace)(nil)
