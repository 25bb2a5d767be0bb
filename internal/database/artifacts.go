package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"launcher-core/internal/launcher"
)

const (
	selectArtifact = `
		SELECT hash, size, storage_path, ref_count, created_at, released_at
		FROM artifacts WHERE hash = ?`

	upsertArtifactReference = `
		INSERT INTO artifacts (hash, size, storage_path, ref_count, created_at, released_at)
		VALUES (?, ?, ?, 1, ?, NULL)
		ON CONFLICT (hash) DO UPDATE SET
			ref_count    = ref_count + 1,
			storage_path = excluded.storage_path,
			released_at  = NULL
		RETURNING ref_count`

	selectRefCount = `SELECT ref_count FROM artifacts WHERE hash = ?`

	updateRefCount = `
		UPDATE artifacts SET ref_count = ?, released_at = ?
		WHERE hash = ?`

	selectUnreferencedArtifacts = `
		SELECT hash, size, storage_path, ref_count, created_at, released_at
		FROM artifacts WHERE ref_count = 0
		ORDER BY released_at`

	deleteUnreferencedArtifact = `DELETE FROM artifacts WHERE hash = ? AND ref_count = 0`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*launcher.ArtifactRecord, error) {
	var (
		rec      launcher.ArtifactRecord
		released sql.NullTime
	)
	if err := row.Scan(&rec.Hash, &rec.Size, &rec.StoragePath, &rec.RefCount, &rec.CreatedAt, &released); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ReleasedAt = timePtr(released)
	return &rec, nil
}

func (s *SQLiteDatabase) FindArtifact(ctx context.Context, hash string) (*launcher.ArtifactRecord, error) {
	rec, err := scanArtifact(s.db.QueryRowContext(ctx, selectArtifact, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding artifact: %w", err)
	}
	return rec, nil
}

func (s *SQLiteDatabase) AddArtifactReference(ctx context.Context, rec launcher.ArtifactRecord) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, upsertArtifactReference,
		rec.Hash, rec.Size, rec.StoragePath, rec.CreatedAt.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("adding artifact reference: %w", err)
	}
	return count, nil
}

func (s *SQLiteDatabase) AdjustArtifactRefs(ctx context.Context, hash string, delta int64, now time.Time) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current int64
		if err := tx.QueryRowContext(ctx, selectRefCount, hash).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("artifact %s: %w", hash, launcher.ErrNotFound)
			}
			return fmt.Errorf("reading ref count: %w", err)
		}

		count = current + delta
		if count < 0 {
			return fmt.Errorf("artifact %s has %d references, adjusting by %d: %w",
				hash, current, delta, launcher.ErrRefUnderflow)
		}
		var released *time.Time
		if count == 0 {
			released = &now
		}
		if _, err := tx.ExecContext(ctx, updateRefCount, count, nullTime(released), hash); err != nil {
			return fmt.Errorf("updating ref count: %w", err)
		}
		return nil
	})
	return count, err
}

func (s *SQLiteDatabase) ListUnreferencedArtifacts(ctx context.Context) ([]*launcher.ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectUnreferencedArtifacts)
	if err != nil {
		return nil, fmt.Errorf("listing unreferenced artifacts: %w", err)
	}
	defer rows.Close()

	var out []*launcher.ArtifactRecord
	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) DeleteArtifact(ctx context.Context, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, deleteUnreferencedArtifact, hash)
	if err != nil {
		return false, fmt.Errorf("deleting artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting artifact: %w", err)
	}
	return n > 0, nil
}
