package wire

import (
	"encoding/json"

	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/store"
)

// KindConnected is the first frame on every Connect stream.
const KindConnected = "connected"

// AttachmentFrame references a file stored outside the daemon.
type AttachmentFrame struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
}

// ClientFrame is one inbound operation on the Connect stream.
type ClientFrame struct {
	Op         string           `json:"op"`
	Ref        string           `json:"ref,omitempty"`
	ReceiverID string           `json:"receiver_id,omitempty"`
	RoomID     int64            `json:"room_id,omitempty"`
	MessageID  int64            `json:"message_id,omitempty"`
	Body       string           `json:"body,omitempty"`
	Attachment *AttachmentFrame `json:"attachment,omitempty"`
}

// Request converts f into a core request.
func (f *ClientFrame) Request() chat.Request {
	req := chat.Request{
		Op:         chat.Op(f.Op),
		Ref:        f.Ref,
		ReceiverID: f.ReceiverID,
		RoomID:     f.RoomID,
		MessageID:  f.MessageID,
		Body:       f.Body,
	}
	if f.Attachment != nil {
		req.Attachment = &store.Attachment{Path: f.Attachment.Path, ContentType: f.Attachment.ContentType}
	}
	return req
}

// MessageFrame is a persisted message as sent to clients.
type MessageFrame struct {
	ID         int64            `json:"id"`
	Body       string           `json:"body,omitempty"`
	SenderID   string           `json:"sender_id"`
	SenderName string           `json:"sender_name,omitempty"`
	ReceiverID string           `json:"receiver_id,omitempty"`
	RoomID     int64            `json:"room_id,omitempty"`
	Timestamp  int64            `json:"timestamp"`
	Attachment *AttachmentFrame `json:"attachment,omitempty"`
	Read       bool             `json:"read,omitempty"`
}

// MessageFromStore converts a stored message.
func MessageFromStore(m *store.Message, senderName string) *MessageFrame {
	f := &MessageFrame{
		ID:         m.ID,
		Body:       m.Body,
		SenderID:   m.SenderID,
		SenderName: senderName,
		ReceiverID: m.ReceiverID,
		RoomID:     m.RoomID,
		Timestamp:  m.Timestamp,
		Read:       m.Read,
	}
	if m.Attachment != nil {
		f.Attachment = &AttachmentFrame{Path: m.Attachment.Path, ContentType: m.Attachment.ContentType}
	}
	return f
}

// ErrorFrame reports a failed operation.
type ErrorFrame struct {
	Ref     string `json:"ref,omitempty"`
	Op      string `json:"op,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerFrame is one outbound event on the Connect stream.
type ServerFrame struct {
	Kind       string        `json:"kind"`
	ConnID     string        `json:"conn_id,omitempty"`
	IdentityID string        `json:"identity_id,omitempty"`
	Online     *bool         `json:"online,omitempty"`
	LastSeen   int64         `json:"last_seen,omitempty"`
	RoomID     int64         `json:"room_id,omitempty"`
	MessageID  int64         `json:"message_id,omitempty"`
	Message    *MessageFrame `json:"message,omitempty"`
	Error      *ErrorFrame   `json:"error,omitempty"`
}

// FromEvent converts a core event into its wire form.
func FromEvent(evt chat.Event) *ServerFrame {
	f := &ServerFrame{
		Kind:       string(evt.Kind),
		IdentityID: evt.IdentityID,
		RoomID:     evt.RoomID,
		MessageID:  evt.MessageID,
	}
	switch evt.Kind {
	case chat.PresenceChanged:
		online := evt.Online
		f.Online = &online
		f.LastSeen = evt.LastSeen
	case chat.OperationFailed:
		f.Error = &ErrorFrame{Ref: evt.Ref, Op: string(evt.Op), Code: evt.Code, Message: evt.Err}
	}
	if evt.Record != nil {
		f.Message = MessageFromStore(&evt.Record.Message, evt.Record.SenderName)
		f.MessageID = evt.Record.ID
	}
	return f
}

// StatusRequest asks for daemon status.
type StatusRequest struct{}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Instance    string `json:"instance"`
	Status      string `json:"status"`
	SinceUnixMs int64  `json:"since_unix_ms"`
	UptimeMs    int64  `json:"uptime_ms"`
	Connections int    `json:"connections"`
	Online      int    `json:"online"`
	Identities  int64  `json:"identities"`
	Messages    int64  `json:"messages"`
	Subscribers int    `json:"subscribers"`
}

// HistoryRequest pages through a conversation, newest first. Exactly one of
// With and RoomID selects the conversation; BeforeID is an exclusive upper
// bound on message ids, zero meaning "from the newest".
type HistoryRequest struct {
	With     string `json:"with,omitempty"`
	RoomID   int64  `json:"room_id,omitempty"`
	BeforeID int64  `json:"before_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// HistoryResponse is one page of history. NextBeforeID is zero on the last
// page.
type HistoryResponse struct {
	Messages     []*MessageFrame `json:"messages"`
	NextBeforeID int64           `json:"next_before_id,omitempty"`
}

// PresenceRequest asks for the presence of the listed identities. An empty
// list asks for every identity currently online.
type PresenceRequest struct {
	Identities []string `json:"identities,omitempty"`
}

// PresenceEntry is the stored presence of one identity.
type PresenceEntry struct {
	IdentityID     string `json:"identity_id"`
	DisplayName    string `json:"display_name,omitempty"`
	Online         bool   `json:"online"`
	LastSeenUnixMs int64  `json:"last_seen_unix_ms,omitempty"`
}

// PresenceResponse lists online identities first, then by id. Unknown
// identities are left out.
type PresenceResponse struct {
	Entries []*PresenceEntry `json:"entries"`
}

// WatchRequest subscribes to daemon events whose kind starts with
// Namespace. An empty namespace receives everything.
type WatchRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// EventEnvelope is one daemon event on the WatchEvents stream.
type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	Instance         string          `json:"instance"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Kind             string          `json:"kind"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}
