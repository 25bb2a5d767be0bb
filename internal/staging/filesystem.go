package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"launcher-core/internal/launcher"
)

// FileSystemStagingArea writes incoming artifact bytes to temp files under a
// single directory, hashing them on the way in.
//
// The directory should be on the same filesystem as a filesystem vault so a
// commit is a rename rather than a copy.
type FileSystemStagingArea struct {
	stagingDir string
	maxSize    int64
}

// Compile-time check that FileSystemStagingArea implements launcher.StagingArea
var _ launcher.StagingArea = (*FileSystemStagingArea)(nil)

// NewFileSystemStagingArea creates the staging directory if needed.
// maxSize limits a single staged blob; 0 means unlimited.
func NewFileSystemStagingArea(stagingDir string, maxSize int64) (*FileSystemStagingArea, error) {
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &FileSystemStagingArea{
		stagingDir: stagingDir,
		maxSize:    maxSize,
	}, nil
}

// Dir returns the staging directory.
func (s *FileSystemStagingArea) Dir() string {
	return s.stagingDir
}

// Stage copies r into a new temp file while computing SHA-256 and size.
// The file is synced before Stage returns.
func (s *FileSystemStagingArea) Stage(r io.Reader) (*launcher.StagedBlob, error) {
	tmp, err := os.CreateTemp(s.stagingDir, ".stage-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	src := r
	if s.maxSize > 0 {
		// One byte past the limit tells "exactly max" apart from "too big".
		src = io.LimitReader(r, s.maxSize+1)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if err != nil {
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		return nil, fmt.Errorf("blob exceeds %d bytes: %w", s.maxSize, launcher.ErrStagingFull)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	success = true
	return &launcher.StagedBlob{
		Path: tmpPath,
		Hash: hex.EncodeToString(h.Sum(nil)),
		Size: n,
	}, nil
}

// Discard removes the blob's temp file if it is still there.
func (s *FileSystemStagingArea) Discard(blob *launcher.StagedBlob) {
	if blob == nil || blob.Path == "" {
		return
	}
	if filepath.Dir(blob.Path) != filepath.Clean(s.stagingDir) {
		return
	}
	os.Remove(blob.Path)
}
