package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"launcher-core/internal/launcher"
)

const (
	insertLauncherVersion = `
		INSERT INTO launcher_versions (id, os_type, artifact_hash, size, created_at)
		VALUES (?, ?, ?, ?, ?)`

	selectLauncherVersion = `
		SELECT id, os_type, artifact_hash, size, created_at
		FROM launcher_versions WHERE id = ?`

	selectLauncherVersions = `
		SELECT id, os_type, artifact_hash, size, created_at
		FROM launcher_versions WHERE os_type = ?
		ORDER BY created_at DESC, rowid DESC`
)

func (s *SQLiteDatabase) CreateLauncherVersion(ctx context.Context, v *launcher.LauncherVersion) error {
	if !v.OS.Valid() {
		return fmt.Errorf("launcher version %s: %w", v.ID, launcher.ErrPlatformNotSupported)
	}
	_, err := s.db.ExecContext(ctx, insertLauncherVersion,
		v.ID, v.OS.String(), v.ArtifactHash, v.Size, v.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating launcher version: %w", err)
	}
	return nil
}

func scanLauncherVersion(row rowScanner) (*launcher.LauncherVersion, error) {
	var (
		v  launcher.LauncherVersion
		os string
	)
	if err := row.Scan(&v.ID, &os, &v.ArtifactHash, &v.Size, &v.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := launcher.ParseOSType(os)
	if err != nil {
		return nil, err
	}
	v.OS = parsed
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (s *SQLiteDatabase) FindLauncherVersion(ctx context.Context, id string) (*launcher.LauncherVersion, error) {
	v, err := scanLauncherVersion(s.db.QueryRowContext(ctx, selectLauncherVersion, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding launcher version: %w", err)
	}
	return v, nil
}

func (s *SQLiteDatabase) ListLauncherVersions(ctx context.Context, os launcher.OSType) ([]*launcher.LauncherVersion, error) {
	rows, err := s.db.QueryContext(ctx, selectLauncherVersions, os.String())
	if err != nil {
		return nil, fmt.Errorf("listing launcher versions: %w", err)
	}
	defer rows.Close()

	var out []*launcher.LauncherVersion
	for rows.Next() {
		v, err := scanLauncherVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning launcher version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
