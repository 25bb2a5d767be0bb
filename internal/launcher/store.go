package launcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ArtifactStore is content-addressed blob storage shared by every profile and
// launcher build. Blobs are keyed by SHA-256, stored once, and reference
// counted; the Sweeper reclaims unreferenced blobs after a grace period.
type ArtifactStore struct {
	index   ArtifactIndex
	vault   Vault
	staging StagingArea
	logger  Logger
	clock   Clock

	locks keyedMutex

	readersMu sync.Mutex
	readers   map[string]int
}

// NewArtifactStore creates an ArtifactStore with the provided dependencies.
func NewArtifactStore(index ArtifactIndex, vault Vault, staging StagingArea, logger Logger, clock Clock) *ArtifactStore {
	return &ArtifactStore{
		index:   index,
		vault:   vault,
		staging: staging,
		logger:  logger,
		clock:   clock,
		readers: make(map[string]int),
	}
}

// Put stores the bytes read from r and returns their content hash.
// If the content is already stored, the staged copy is discarded and the
// existing record gains one reference. Otherwise the blob is committed and a
// record is created with a reference count of 1.
func (s *ArtifactStore) Put(ctx context.Context, r io.Reader) (string, error) {
	blob, err := s.staging.Stage(r)
	if err != nil {
		return "", fmt.Errorf("staging artifact: %w", err)
	}
	defer s.staging.Discard(blob)

	unlock := s.locks.Lock(blob.Hash)
	defer unlock()

	present, err := s.present(ctx, blob.Hash)
	if err != nil {
		return "", err
	}

	result := "deduplicated"
	if !present {
		if err := s.vault.Commit(ctx, blob.Hash, blob); err != nil {
			return "", fmt.Errorf("committing artifact %s: %w", blob.Hash, err)
		}
		result = "stored"
	}

	count, err := s.index.AddArtifactReference(ctx, ArtifactRecord{
		Hash:        blob.Hash,
		Size:        blob.Size,
		StoragePath: s.vault.Location(blob.Hash),
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("recording artifact %s: %w", blob.Hash, err)
	}

	artifactPutsTotal.WithLabelValues(result).Inc()
	s.logger.Debug("artifact put", "hash", blob.Hash, "size", blob.Size, "result", result, "refs", count)
	return blob.Hash, nil
}

// present reports whether both the record and the blob exist. A record whose
// blob was invalidated counts as absent so the next put re-commits it.
func (s *ArtifactStore) present(ctx context.Context, hash string) (bool, error) {
	rec, err := s.index.FindArtifact(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("looking up artifact %s: %w", hash, err)
	}
	if rec == nil {
		return false, nil
	}
	exists, err := s.vault.Exists(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("checking vault for %s: %w", hash, err)
	}
	return exists, nil
}

// Get returns a reader over the artifact's bytes after verifying they still
// hash to hash. A mismatch returns *IntegrityError and the bytes are never
// served. The caller must close the reader; until then the sweeper will not
// reclaim the artifact.
func (s *ArtifactStore) Get(ctx context.Context, hash string) (io.ReadCloser, error) {
	rec, err := s.index.FindArtifact(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("looking up artifact %s: %w", hash, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("artifact %s: %w", hash, ErrNotFound)
	}

	s.acquireReader(hash)
	ok, actual, err := s.hashStored(ctx, hash)
	if err != nil {
		s.releaseReader(hash)
		return nil, err
	}
	if !ok {
		s.releaseReader(hash)
		artifactIntegrityFailuresTotal.Inc()
		s.logger.Warn("artifact failed integrity check", "hash", hash, "actual", actual)
		return nil, &IntegrityError{Hash: hash, Actual: actual}
	}

	rc, err := s.vault.Open(ctx, hash)
	if err != nil {
		s.releaseReader(hash)
		return nil, fmt.Errorf("opening artifact %s: %w", hash, err)
	}
	return &trackedReader{ReadCloser: rc, release: func() { s.releaseReader(hash) }}, nil
}

// Verify reports whether the stored bytes still hash to hash.
func (s *ArtifactStore) Verify(ctx context.Context, hash string) (bool, error) {
	rec, err := s.index.FindArtifact(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("looking up artifact %s: %w", hash, err)
	}
	if rec == nil {
		return false, fmt.Errorf("artifact %s: %w", hash, ErrNotFound)
	}
	ok, _, err := s.hashStored(ctx, hash)
	return ok, err
}

// hashStored streams the stored blob through SHA-256.
func (s *ArtifactStore) hashStored(ctx context.Context, hash string) (bool, string, error) {
	rc, err := s.vault.Open(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, "", fmt.Errorf("artifact %s blob: %w", hash, ErrNotFound)
		}
		return false, "", fmt.Errorf("opening artifact %s: %w", hash, err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return false, "", fmt.Errorf("reading artifact %s: %w", hash, err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	return actual == hash, actual, nil
}

// Retain adds one reference to an existing artifact.
func (s *ArtifactStore) Retain(ctx context.Context, hash string) error {
	if _, err := s.index.AdjustArtifactRefs(ctx, hash, 1, s.clock.Now()); err != nil {
		return fmt.Errorf("retaining artifact %s: %w", hash, err)
	}
	return nil
}

// Release drops one reference. At zero the artifact becomes eligible for
// sweeping once the grace period has passed.
func (s *ArtifactStore) Release(ctx context.Context, hash string) error {
	count, err := s.index.AdjustArtifactRefs(ctx, hash, -1, s.clock.Now())
	if err != nil {
		return fmt.Errorf("releasing artifact %s: %w", hash, err)
	}
	if count == 0 {
		s.logger.Debug("artifact unreferenced", "hash", hash)
	}
	return nil
}

// Has reports whether the artifact has a record and a stored blob.
func (s *ArtifactStore) Has(ctx context.Context, hash string) (bool, error) {
	return s.present(ctx, hash)
}

// Stat returns the artifact's record.
func (s *ArtifactStore) Stat(ctx context.Context, hash string) (*ArtifactRecord, error) {
	rec, err := s.index.FindArtifact(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("looking up artifact %s: %w", hash, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("artifact %s: %w", hash, ErrNotFound)
	}
	return rec, nil
}

// Invalidate deletes a corrupt blob but keeps its record and references, so
// the next put of the same content restores it in place.
func (s *ArtifactStore) Invalidate(ctx context.Context, hash string) error {
	unlock := s.locks.Lock(hash)
	defer unlock()

	if err := s.vault.Delete(ctx, hash); err != nil {
		return fmt.Errorf("invalidating artifact %s: %w", hash, err)
	}
	s.logger.Warn("artifact invalidated", "hash", hash)
	return nil
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Candidates int
	Deleted    int
	Skipped    int
	Errors     int
	Duration   time.Duration
}

// Sweep deletes artifacts whose reference count is zero and that were
// released more than grace ago. Artifacts with open readers are skipped.
func (s *ArtifactStore) Sweep(ctx context.Context, grace time.Duration) (*SweepResult, error) {
	start := s.clock.Now()
	cutoff := start.Add(-grace)

	records, err := s.index.ListUnreferencedArtifacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing unreferenced artifacts: %w", err)
	}

	result := &SweepResult{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if rec.ReleasedAt != nil && rec.ReleasedAt.After(cutoff) {
			continue
		}
		result.Candidates++

		deleted, err := s.sweepOne(ctx, rec.Hash)
		switch {
		case err != nil:
			result.Errors++
			s.logger.Error("sweeping artifact", "hash", rec.Hash, "error", err)
		case deleted:
			result.Deleted++
		default:
			result.Skipped++
		}
	}
	result.Duration = s.clock.Now().Sub(start)
	return result, nil
}

func (s *ArtifactStore) sweepOne(ctx context.Context, hash string) (bool, error) {
	unlock := s.locks.Lock(hash)
	defer unlock()

	if s.readerCount(hash) > 0 {
		return false, nil
	}
	deleted, err := s.index.DeleteArtifact(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("deleting record: %w", err)
	}
	if !deleted {
		// Retained again since it was listed.
		return false, nil
	}
	if err := s.vault.Delete(ctx, hash); err != nil {
		return true, fmt.Errorf("deleting blob: %w", err)
	}
	s.logger.Debug("artifact swept", "hash", hash)
	return true, nil
}

func (s *ArtifactStore) acquireReader(hash string) {
	s.readersMu.Lock()
	s.readers[hash]++
	s.readersMu.Unlock()
	artifactReadersOpen.Inc()
}

func (s *ArtifactStore) releaseReader(hash string) {
	s.readersMu.Lock()
	s.readers[hash]--
	if s.readers[hash] <= 0 {
		delete(s.readers, hash)
	}
	s.readersMu.Unlock()
	artifactReadersOpen.Dec()
}

func (s *ArtifactStore) readerCount(hash string) int {
	s.readersMu.Lock()
	defer s.readersMu.Unlock()
	return s.readers[hash]
}

// trackedReader releases its reader slot exactly once on Close.
type trackedReader struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (r *trackedReader) Close() error {
	err := r.ReadCloser.Close()
	r.once.Do(r.release)
	return err
}
