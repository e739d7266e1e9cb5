package store

import (
	"context"
	"database/sql"
	"time"
)

// UpsertIdentity inserts an identity or updates its display name. Presence
// columns are left untouched on conflict.
func (db *DB) UpsertIdentity(ctx context.Context, id *Identity) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO identities (id, display_name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE identities.display_name END`,
		id.ID, id.DisplayName, now)
	return err
}

// GetIdentity returns an identity by id, or nil if it does not exist.
func (db *DB) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	var i Identity
	err := db.QueryRowContext(ctx, `
		SELECT id, display_name, is_online, last_seen FROM identities WHERE id = ?`, id).
		Scan(&i.ID, &i.DisplayName, &i.Online, &i.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// SetPresence records an online/offline transition.
func (db *DB) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE identities SET is_online = ?, last_seen = ? WHERE id = ?`,
		online, lastSeen.UnixMilli(), id)
	return err
}

// ResetPresence marks every identity offline, stamping last_seen with now on
// the rows it flips. The daemon calls it on startup, since no connection
// survives a restart.
func (db *DB) ResetPresence(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE identities SET is_online = 0, last_seen = ? WHERE is_online = 1`,
		time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListOnline returns identities currently flagged online, by id.
func (db *DB) ListOnline(ctx context.Context) ([]Identity, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, display_name, is_online, last_seen FROM identities
		WHERE is_online = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Identity
	for rows.Next() {
		var i Identity
		if err := rows.Scan(&i.ID, &i.DisplayName, &i.Online, &i.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// IdentityCount returns the total number of identities.
func (db *DB) IdentityCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}
