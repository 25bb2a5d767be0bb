package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"launcher-core/internal/launcher"
)

const userColumns = `uuid, name, access_token, refresh_token_hash, server_uuid, expired_date,
		server_expired_date, device_id, source_address, protocol, slim_skin,
		hw_cpu, hw_motherboard, hw_disks, created_at, updated_at`

const (
	selectUserByUUID = `SELECT ` + userColumns + ` FROM users WHERE uuid = ?`
	selectUserByName = `SELECT ` + userColumns + ` FROM users WHERE name = ?`

	upsertUser = `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uuid) DO UPDATE SET
			name                = excluded.name,
			access_token        = excluded.access_token,
			refresh_token_hash  = excluded.refresh_token_hash,
			server_uuid         = excluded.server_uuid,
			expired_date        = excluded.expired_date,
			server_expired_date = excluded.server_expired_date,
			device_id           = excluded.device_id,
			source_address      = excluded.source_address,
			protocol            = excluded.protocol,
			slim_skin           = excluded.slim_skin,
			hw_cpu              = excluded.hw_cpu,
			hw_motherboard      = excluded.hw_motherboard,
			hw_disks            = excluded.hw_disks,
			updated_at          = excluded.updated_at`

	selectUsersWithOpenSessions = `
		SELECT ` + userColumns + ` FROM users
		WHERE uuid IN (SELECT user_uuid FROM sessions WHERE ended_at IS NULL)
		ORDER BY name`

	insertSession = `INSERT INTO sessions (id, user_uuid, started_at, ended_at) VALUES (?, ?, ?, ?)`

	closeOpenSessions = `UPDATE sessions SET ended_at = ? WHERE user_uuid = ? AND ended_at IS NULL`

	selectSessions = `
		SELECT id, user_uuid, started_at, ended_at
		FROM sessions WHERE user_uuid = ?
		ORDER BY started_at, rowid`
)

// Disk serials never contain newlines, so the list is stored newline-joined.
const diskSeparator = "\n"

func scanUser(row rowScanner) (*launcher.User, error) {
	var (
		u     launcher.User
		token sql.NullString
		disks string
	)
	err := row.Scan(&u.UUID, &u.Name, &token, &u.RefreshTokenHash, &u.ServerUUID,
		&u.ExpiredDate, &u.ServerExpiredDate, &u.DeviceID, &u.SourceAddress, &u.Protocol,
		&u.SlimSkin, &u.Fingerprint.CPU, &u.Fingerprint.Motherboard, &disks,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.AccessToken = token.String
	if disks != "" {
		u.Fingerprint.Disks = strings.Split(disks, diskSeparator)
	}
	u.ExpiredDate = u.ExpiredDate.UTC()
	u.ServerExpiredDate = u.ServerExpiredDate.UTC()
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (s *SQLiteDatabase) findUser(ctx context.Context, query, arg string) (*launcher.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return u, nil
}

func (s *SQLiteDatabase) FindUserByUUID(ctx context.Context, uuid string) (*launcher.User, error) {
	return s.findUser(ctx, selectUserByUUID, uuid)
}

func (s *SQLiteDatabase) FindUserByName(ctx context.Context, name string) (*launcher.User, error) {
	return s.findUser(ctx, selectUserByName, name)
}

func (s *SQLiteDatabase) SaveUser(ctx context.Context, u *launcher.User) error {
	// Empty tokens are stored as NULL so the UNIQUE index ignores them.
	var token sql.NullString
	if u.AccessToken != "" {
		token = sql.NullString{String: u.AccessToken, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, upsertUser,
		u.UUID, u.Name, token, u.RefreshTokenHash, u.ServerUUID,
		u.ExpiredDate.UTC(), u.ServerExpiredDate.UTC(), u.DeviceID, u.SourceAddress, u.Protocol,
		u.SlimSkin, u.Fingerprint.CPU, u.Fingerprint.Motherboard,
		strings.Join(u.Fingerprint.Disks, diskSeparator),
		u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CreateSession(ctx context.Context, session *launcher.Session) error {
	_, err := s.db.ExecContext(ctx, insertSession,
		session.ID, session.UserUUID, session.Start.UTC(), nullTime(session.End))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CloseOpenSessions(ctx context.Context, userUUID string, end time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, closeOpenSessions, end.UTC(), userUUID)
	if err != nil {
		return 0, fmt.Errorf("closing sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteDatabase) ListSessions(ctx context.Context, userUUID string) ([]launcher.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectSessions, userUUID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []launcher.Session
	for rows.Next() {
		var (
			sess  launcher.Session
			ended sql.NullTime
		)
		if err := rows.Scan(&sess.ID, &sess.UserUUID, &sess.Start, &ended); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.Start = sess.Start.UTC()
		sess.End = timePtr(ended)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) ListUsersWithOpenSessions(ctx context.Context) ([]*launcher.User, error) {
	rows, err := s.db.QueryContext(ctx, selectUsersWithOpenSessions)
	if err != nil {
		return nil, fmt.Errorf("listing users with open sessions: %w", err)
	}
	defer rows.Close()

	var out []*launcher.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
