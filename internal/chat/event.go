package chat

import (
	"strconv"
	"strings"

	"github.com/matheus3301/parley/internal/store"
)

// Group names a logical fan-out target.
type Group string

const (
	mailboxPrefix = "mailbox:"
	roomPrefix    = "room:"
)

// Mailbox is the private delivery group of an identity.
func Mailbox(identityID string) Group {
	return Group(mailboxPrefix + identityID)
}

// Room is the delivery group of a room.
func Room(roomID int64) Group {
	return Group(roomPrefix + strconv.FormatInt(roomID, 10))
}

// RoomID returns the room id of a room group.
func (g Group) RoomID() (int64, bool) {
	s, ok := strings.CutPrefix(string(g), roomPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

// EventKind identifies an outbound event.
type EventKind string

const (
	PresenceChanged  EventKind = "presence_changed"
	MessageDelivered EventKind = "message_delivered"
	SendConfirmed    EventKind = "send_confirmed"
	UserJoinedRoom   EventKind = "user_joined_room"
	UserLeftRoom     EventKind = "user_left_room"
	MessageDeleted   EventKind = "message_deleted"
	OperationFailed  EventKind = "error"
)

// Record is a persisted message as delivered to clients.
type Record struct {
	store.Message
	SenderName string
}

// Event is one outbound notification queued on a connection. Which fields
// are set depends on Kind.
type Event struct {
	Kind       EventKind
	IdentityID string
	Online     bool
	LastSeen   int64
	RoomID     int64
	MessageID  int64
	Record     *Record

	// Set on OperationFailed.
	Ref  string
	Op   Op
	Code string
	Err  string
}
