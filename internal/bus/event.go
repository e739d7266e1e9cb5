package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix, so
// "conn." matches both connection kinds.
const (
	KindStatusChanged   = "server.status_changed"
	KindConnAdmitted    = "conn.admitted"
	KindConnRemoved     = "conn.removed"
	KindPresenceChanged = "presence.changed"
	KindMessageStored   = "message.stored"
	KindMessageRead     = "message.read"
	KindMessageDeleted  = "message.deleted"
	KindRoomJoined      = "room.joined"
	KindRoomLeft        = "room.left"
)

// Event is an operator-facing record of something the daemon did.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
