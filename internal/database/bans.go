package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"launcher-core/internal/launcher"
)

const (
	selectHardwareBans = `SELECT kind, value FROM hardware_bans ORDER BY kind, value`
	insertHardwareBan  = `INSERT OR IGNORE INTO hardware_bans (kind, value, created_at) VALUES (?, ?, ?)`
	deleteHardwareBan  = `DELETE FROM hardware_bans WHERE kind = ? AND value = ?`
)

func (s *SQLiteDatabase) ListHardwareBans(ctx context.Context) ([]launcher.HardwareBan, error) {
	rows, err := s.db.QueryContext(ctx, selectHardwareBans)
	if err != nil {
		return nil, fmt.Errorf("listing hardware bans: %w", err)
	}
	defer rows.Close()

	var out []launcher.HardwareBan
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("scanning hardware ban: %w", err)
		}
		out = append(out, launcher.HardwareBan{Kind: launcher.BanKind(kind), Value: value})
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) AddHardwareBans(ctx context.Context, bans []launcher.HardwareBan, now time.Time) error {
	return s.execBans(ctx, insertHardwareBan, bans, now.UTC())
}

func (s *SQLiteDatabase) RemoveHardwareBans(ctx context.Context, bans []launcher.HardwareBan) error {
	return s.execBans(ctx, deleteHardwareBan, bans)
}

// execBans runs query once per ban inside a single transaction. extra is
// appended to each ban's (kind, value) arguments.
func (s *SQLiteDatabase) execBans(ctx context.Context, query string, bans []launcher.HardwareBan, extra ...any) error {
	if len(bans) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing ban statement: %w", err)
		}
		defer stmt.Close()

		for _, b := range bans {
			args := append([]any{string(b.Kind), b.Value}, extra...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("hardware ban %s=%s: %w", b.Kind, b.Value, err)
			}
		}
		return nil
	})
}
