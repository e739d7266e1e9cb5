package store

import (
	"context"
	"database/sql"
	"time"
)

// CreateRoom inserts a room and sets its ID.
func (db *DB) CreateRoom(ctx context.Context, r *Room) error {
	r.CreatedAt = time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		INSERT INTO rooms (name, description, created_by, is_group, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.Description, r.CreatedBy, r.IsGroup, r.Active, r.CreatedAt)
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

// GetRoom returns a room by id, or nil if it does not exist.
func (db *DB) GetRoom(ctx context.Context, id int64) (*Room, error) {
	var r Room
	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, created_by, is_group, is_active, created_at
		FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Description, &r.CreatedBy, &r.IsGroup, &r.Active, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// AddRoomMember makes identityID an active member of roomID. The
// (identity, room) pair is unique, so re-adding reactivates the existing row.
func (db *DB) AddRoomMember(ctx context.Context, identityID string, roomID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO room_members (identity_id, room_id, is_active, joined_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(identity_id, room_id) DO UPDATE SET is_active = 1`,
		identityID, roomID, time.Now().UnixMilli())
	return err
}

// SetMembershipActive flips the active flag of an existing membership.
func (db *DB) SetMembershipActive(ctx context.Context, identityID string, roomID int64, active bool) error {
	_, err := db.ExecContext(ctx, `
		UPDATE room_members SET is_active = ? WHERE identity_id = ? AND room_id = ?`,
		active, identityID, roomID)
	return err
}

// IsActiveRoomMember reports whether identityID holds an active membership in
// an active room.
func (db *DB) IsActiveRoomMember(ctx context.Context, identityID string, roomID int64) (bool, error) {
	var ok bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM room_members rm
			JOIN rooms r ON r.id = rm.room_id
			WHERE rm.identity_id = ? AND rm.room_id = ? AND rm.is_active = 1 AND r.is_active = 1
		)`, identityID, roomID).Scan(&ok)
	return ok, err
}
