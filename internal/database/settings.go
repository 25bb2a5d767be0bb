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
	selectSetting = `SELECT value FROM settings WHERE key = ?`
	upsertSetting = `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteSetting = `DELETE FROM settings WHERE key = ?`
)

// GetSetting returns the stored value, or an error wrapping
// launcher.ErrNotFound if key is unset.
func (s *SQLiteDatabase) GetSetting(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.db.QueryRowContext(ctx, selectSetting, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("setting %s: %w", key, launcher.ErrNotFound)
		}
		return nil, fmt.Errorf("reading setting: %w", err)
	}
	return value, nil
}

func (s *SQLiteDatabase) PutSetting(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, upsertSetting, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("writing setting: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteSetting, key); err != nil {
		return fmt.Errorf("deleting setting: %w", err)
	}
	return nil
}
