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
	insertProfile = `
		INSERT INTO profiles (name, game_version, launch_version, loader, client_path, state, main_class, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectProfile = `
		SELECT name, game_version, launch_version, loader, client_path, state, main_class, created_at, updated_at
		FROM profiles WHERE name = ?`

	selectProfiles = `
		SELECT name, game_version, launch_version, loader, client_path, state, main_class, created_at, updated_at
		FROM profiles ORDER BY name`

	selectManifestEntries = `
		SELECT path, hash, size, kind, url
		FROM manifest_entries WHERE profile_name = ?
		ORDER BY position`

	updateProfileState = `UPDATE profiles SET state = ?, updated_at = ? WHERE name = ?`

	updateProfileManifest = `
		UPDATE profiles SET launch_version = ?, main_class = ?, state = ?, updated_at = ?
		WHERE name = ?`

	deleteManifestEntries = `DELETE FROM manifest_entries WHERE profile_name = ?`

	insertManifestEntry = `
		INSERT INTO manifest_entries (profile_name, position, path, hash, size, kind, url)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	deleteProfile = `DELETE FROM profiles WHERE name = ?`

	insertProfileRef  = `INSERT OR IGNORE INTO profile_refs (profile_name, hash) VALUES (?, ?)`
	deleteProfileRef  = `DELETE FROM profile_refs WHERE profile_name = ? AND hash = ?`
	selectProfileRefs = `SELECT hash FROM profile_refs WHERE profile_name = ? ORDER BY hash`
)

func (s *SQLiteDatabase) CreateProfile(ctx context.Context, p *launcher.Profile) error {
	loader, err := p.Loader.Identifier()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertProfile,
		p.Name, p.GameVersion, p.LaunchVersion, loader, p.ClientPath,
		string(p.State), p.Manifest.MainClass, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return &launcher.ProfileExistsError{Name: p.Name}
		}
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

func scanProfile(row rowScanner) (*launcher.Profile, error) {
	var (
		p         launcher.Profile
		loader    string
		state     string
		mainClass string
	)
	if err := row.Scan(&p.Name, &p.GameVersion, &p.LaunchVersion, &loader, &p.ClientPath,
		&state, &mainClass, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	kind, err := launcher.ParseLoaderKind(loader)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	p.Loader = kind
	p.State = launcher.ProfileState(state)
	p.Manifest.LaunchVersion = p.LaunchVersion
	p.Manifest.MainClass = mainClass
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// loadEntries must not be called while a transaction holds the connection.
func (s *SQLiteDatabase) loadEntries(ctx context.Context, p *launcher.Profile) error {
	rows, err := s.db.QueryContext(ctx, selectManifestEntries, p.Name)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	defer rows.Close()

	var entries []launcher.ManifestEntry
	for rows.Next() {
		var (
			e    launcher.ManifestEntry
			kind string
		)
		if err := rows.Scan(&e.Path, &e.Hash, &e.Size, &kind, &e.URL); err != nil {
			return fmt.Errorf("scanning manifest entry: %w", err)
		}
		e.Kind = launcher.EntryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	p.Manifest.Entries = entries
	return nil
}

func (s *SQLiteDatabase) FindProfile(ctx context.Context, name string) (*launcher.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, selectProfile, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding profile: %w", err)
	}
	if err := s.loadEntries(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteDatabase) ListProfiles(ctx context.Context) ([]*launcher.Profile, error) {
	rows, err := s.db.QueryContext(ctx, selectProfiles)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	var profiles []*launcher.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Entries are loaded after the cursor is closed; the pool has a single
	// connection.
	for _, p := range profiles {
		if err := s.loadEntries(ctx, p); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

func (s *SQLiteDatabase) UpdateProfileState(ctx context.Context, name string, state launcher.ProfileState, now time.Time) error {
	res, err := s.db.ExecContext(ctx, updateProfileState, string(state), now.UTC(), name)
	if err != nil {
		return fmt.Errorf("updating profile state: %w", err)
	}
	return requireRow(res, "profile "+name)
}

func (s *SQLiteDatabase) SaveManifest(ctx context.Context, name string, m launcher.Manifest, state launcher.ProfileState, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updateProfileManifest, m.LaunchVersion, m.MainClass, string(state), now.UTC(), name)
		if err != nil {
			return fmt.Errorf("updating profile: %w", err)
		}
		if err := requireRow(res, "profile "+name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, deleteManifestEntries, name); err != nil {
			return fmt.Errorf("clearing manifest: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, insertManifestEntry)
		if err != nil {
			return fmt.Errorf("preparing manifest insert: %w", err)
		}
		defer stmt.Close()
		for i, e := range m.Entries {
			if _, err := stmt.ExecContext(ctx, name, i, e.Path, e.Hash, e.Size, string(e.Kind), e.URL); err != nil {
				return fmt.Errorf("inserting manifest entry %s: %w", e.Path, err)
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) DeleteProfile(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, deleteProfile, name); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) AddProfileRef(ctx context.Context, name, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertProfileRef, name, hash)
	if err != nil {
		return false, fmt.Errorf("adding profile ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("adding profile ref: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) RemoveProfileRef(ctx context.Context, name, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, deleteProfileRef, name, hash)
	if err != nil {
		return false, fmt.Errorf("removing profile ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing profile ref: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) ListProfileRefs(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, selectProfileRefs, name)
	if err != nil {
		return nil, fmt.Errorf("listing profile refs: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning profile ref: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// requireRow returns ErrNotFound when an update matched nothing.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, launcher.ErrNotFound)
	}
	return nil
}
