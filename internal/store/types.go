package store

// Identity is a user as seen by the messaging core. Online and LastSeen are
// written only through SetPresence.
type Identity struct {
	ID          string
	DisplayName string
	Online      bool
	LastSeen    int64 // unix millis
}

// Room is a named delivery target with members.
type Room struct {
	ID          int64
	Name        string
	Description string
	CreatedBy   string
	IsGroup     bool
	Active      bool
	CreatedAt   int64
}

// Attachment references a file stored outside the core.
type Attachment struct {
	Path        string
	ContentType string
}

// Message is a persisted direct or room message. Exactly one of ReceiverID
// and RoomID is set.
type Message struct {
	ID         int64
	Body       string
	SenderID   string
	ReceiverID string
	RoomID     int64
	Timestamp  int64 // unix millis, assigned on insert
	Attachment *Attachment
	Read       bool
	Deleted    bool
}

// IsDirect reports whether m is addressed to an identity rather than a room.
func (m *Message) IsDirect() bool {
	return m.ReceiverID != ""
}
