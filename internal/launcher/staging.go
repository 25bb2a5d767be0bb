package launcher

import (
	"io"
	"os"
)

// StagedBlob is a fully written temporary file whose hash and size are known.
type StagedBlob struct {
	Path string
	Hash string
	Size int64
}

// Open opens the staged file for reading.
func (b *StagedBlob) Open() (io.ReadCloser, error) {
	return os.Open(b.Path)
}

// StagingArea is the temporary write location for incoming bytes. It hashes
// while it writes, so a put never reads the bytes twice.
type StagingArea interface {
	// Stage streams r into a temp file, computing its SHA-256 and size.
	// Returns an error wrapping ErrStagingFull if the configured limit is hit.
	Stage(r io.Reader) (*StagedBlob, error)

	// Discard removes the temp file. It is safe to call after the blob has
	// been committed (renamed away) or discarded already.
	Discard(blob *StagedBlob)
}
