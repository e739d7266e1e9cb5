package chat

import (
	"errors"

	"github.com/matheus3301/parley/internal/store"
)

// Op is an inbound client operation.
type Op string

const (
	OpSendDirect    Op = "send_direct"
	OpSendRoom      Op = "send_room"
	OpJoinRoom      Op = "join_room"
	OpLeaveRoom     Op = "leave_room"
	OpMarkRead      Op = "mark_read"
	OpDeleteMessage Op = "delete_message"
)

// Request is one inbound operation from a connection. Ref is an opaque
// client correlation id echoed back on failure.
type Request struct {
	Op         Op
	Ref        string
	ReceiverID string
	RoomID     int64
	MessageID  int64
	Body       string
	Attachment *store.Attachment
}

// Outcome is the typed result of handling a Request. The transport decides
// what to do with it; only Fatal outcomes end the connection.
type Outcome struct {
	Op  Op
	Ref string
	Err error
}

// OK reports whether the operation succeeded, including silent no-ops.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Fatal reports whether the session must be closed.
func (o Outcome) Fatal() bool {
	return errors.Is(o.Err, ErrNotAuthenticated)
}

// Failure converts a failed outcome into the event relayed to the caller.
func (o Outcome) Failure() Event {
	return Event{
		Kind: OperationFailed,
		Ref:  o.Ref,
		Op:   o.Op,
		Code: Code(o.Err),
		Err:  o.Err.Error(),
	}
}
