package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrMessageTarget is returned when a message has both or neither of a
// receiver and a room.
var ErrMessageTarget = errors.New("message must have exactly one of receiver or room")

const messageColumns = `id, body, sender_id, receiver_id, room_id, timestamp,
	attachment_path, attachment_type, is_read, is_deleted`

// InsertMessage persists m and fills in its store-assigned ID and Timestamp.
// Read and Deleted always start false.
func (db *DB) InsertMessage(ctx context.Context, m *Message) error {
	if (m.ReceiverID == "") == (m.RoomID == 0) {
		return ErrMessageTarget
	}
	ts := time.Now().UnixMilli()

	var attPath, attType sql.NullString
	if m.Attachment != nil {
		attPath = sql.NullString{String: m.Attachment.Path, Valid: true}
		attType = sql.NullString{String: m.Attachment.ContentType, Valid: true}
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (body, sender_id, receiver_id, room_id, timestamp, attachment_path, attachment_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Body, m.SenderID, nullString(m.ReceiverID), nullInt(m.RoomID), ts, attPath, attType)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	m.Timestamp = ts
	m.Read = false
	m.Deleted = false
	return nil
}

// GetMessage returns a message by id, or nil if it does not exist.
// Soft-deleted messages are returned with Deleted set.
func (db *DB) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMessageReadFlag marks a message read. Marking it again is a no-op.
func (db *DB) UpdateMessageReadFlag(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`, id)
	return err
}

// SoftDeleteMessage sets the deleted flag on a message.
func (db *DB) SoftDeleteMessage(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE id = ?`, id)
	return err
}

// ListDirectMessages returns the conversation between a and b, newest first,
// using keyset pagination on id. beforeID <= 0 starts from the newest message.
func (db *DB) ListDirectMessages(ctx context.Context, a, b string, beforeID int64, limit int) ([]Message, error) {
	limit, beforeID = page(limit, beforeID)
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE is_deleted = 0 AND id < ?
		  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		ORDER BY id DESC
		LIMIT ?`, beforeID, a, b, b, a, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// ListRoomMessages returns a room's messages, newest first, using keyset
// pagination on id.
func (db *DB) ListRoomMessages(ctx context.Context, roomID, beforeID int64, limit int) ([]Message, error) {
	limit, beforeID = page(limit, beforeID)
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE is_deleted = 0 AND room_id = ? AND id < ?
		ORDER BY id DESC
		LIMIT ?`, roomID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// MessageCount returns the total number of messages, including deleted ones.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*Message, error) {
	var (
		msg              Message
		receiver         sql.NullString
		room             sql.NullInt64
		attPath, attType sql.NullString
	)
	if err := s.Scan(&msg.ID, &msg.Body, &msg.SenderID, &receiver, &room, &msg.Timestamp,
		&attPath, &attType, &msg.Read, &msg.Deleted); err != nil {
		return nil, err
	}
	msg.ReceiverID = receiver.String
	msg.RoomID = room.Int64
	if attPath.Valid {
		msg.Attachment = &Attachment{Path: attPath.String, ContentType: attType.String}
	}
	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()
	var msgs []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

// Page sizes for history listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// PageSize normalizes a requested page size.
func PageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

func page(limit int, beforeID int64) (int, int64) {
	if beforeID <= 0 {
		beforeID = 1<<63 - 1
	}
	return PageSize(limit), beforeID
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
