package pipeline

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/registry"
	"github.com/matheus3301/parley/internal/store"
	"go.uber.org/zap"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetIdentity(ctx context.Context, id string) (*store.Identity, error)
	IsActiveRoomMember(ctx context.Context, identityID string, roomID int64) (bool, error)
	InsertMessage(ctx context.Context, m *store.Message) error
	GetMessage(ctx context.Context, id int64) (*store.Message, error)
	UpdateMessageReadFlag(ctx context.Context, id int64) error
	SoftDeleteMessage(ctx context.Context, id int64) error
}

// Broadcaster fans an event out to a delivery group.
type Broadcaster interface {
	Broadcast(g chat.Group, evt chat.Event) int
}

// Options tune pipeline behavior.
type Options struct {
	// ConfirmAllSessions sends SendConfirmed to every connection of the
	// sender instead of only the one that issued the send.
	ConfirmAllSessions bool
	// MaxBodyLen bounds message bodies in runes. Zero means unbounded.
	MaxBodyLen int
}

// Pipeline validates, persists and fans out messages. Fan-out only happens
// after the store has accepted the write.
type Pipeline struct {
	store  Store
	groups Broadcaster
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options
}

// New creates a message pipeline.
func New(s Store, groups Broadcaster, b *bus.Bus, logger *zap.Logger, opts Options) *Pipeline {
	return &Pipeline{store: s, groups: groups, bus: b, logger: logger, opts: opts}
}

// SendDirect stores a message from sender to receiver, delivers it to the
// receiver's mailbox and confirms it to origin.
func (p *Pipeline) SendDirect(ctx context.Context, origin *registry.Conn, senderID, receiverID, body string, att *store.Attachment) (*chat.Record, error) {
	if senderID == "" {
		return nil, chat.ErrNotAuthenticated
	}
	if err := p.validate(body, att); err != nil {
		return nil, err
	}
	sender, err := p.resolve(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := p.resolve(ctx, receiverID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		Body:       body,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Attachment: att,
	}
	if err := p.store.InsertMessage(ctx, msg); err != nil {
		p.logger.Error("persist direct message failed",
			zap.String("sender", senderID),
			zap.String("receiver", receiverID),
			zap.Error(err))
		return nil, fmt.Errorf("insert message: %w: %v", chat.ErrPersistence, err)
	}
	rec := &chat.Record{Message: *msg, SenderName: sender.DisplayName}

	delivered := p.groups.Broadcast(chat.Mailbox(receiverID), chat.Event{Kind: chat.MessageDelivered, Record: rec})
	confirm := chat.Event{Kind: chat.SendConfirmed, Record: rec}
	switch {
	case p.opts.ConfirmAllSessions:
		p.groups.Broadcast(chat.Mailbox(senderID), confirm)
	case origin != nil:
		if !origin.Deliver(confirm) {
			p.logger.Warn("confirmation dropped", zap.String("conn_id", origin.ID), zap.Int64("message_id", msg.ID))
		}
	}

	p.logger.Info("direct message stored",
		zap.Int64("message_id", msg.ID),
		zap.String("sender", senderID),
		zap.String("receiver", receiverID),
		zap.Int("delivered", delivered))
	p.publish(bus.KindMessageStored, rec)
	return rec, nil
}

// SendRoom stores a message to a room the sender actively belongs to and
// delivers it to the room group. A non-member send is dropped silently: the
// returned record and error are both nil.
func (p *Pipeline) SendRoom(ctx context.Context, senderID string, roomID int64, body string, att *store.Attachment) (*chat.Record, error) {
	if senderID == "" {
		return nil, chat.ErrNotAuthenticated
	}
	if err := p.validate(body, att); err != nil {
		return nil, err
	}
	sender, err := p.resolve(ctx, senderID)
	if err != nil {
		return nil, err
	}
	ok, err := p.store.IsActiveRoomMember(ctx, senderID, roomID)
	if err != nil {
		return nil, fmt.Errorf("membership check room %d: %w: %v", roomID, chat.ErrPersistence, err)
	}
	if !ok {
		p.logger.Debug("room send dropped, not a member",
			zap.String("sender", senderID), zap.Int64("room", roomID))
		return nil, nil
	}

	msg := &store.Message{
		Body:       body,
		SenderID:   senderID,
		RoomID:     roomID,
		Attachment: att,
	}
	if err := p.store.InsertMessage(ctx, msg); err != nil {
		p.logger.Error("persist room message failed",
			zap.String("sender", senderID),
			zap.Int64("room", roomID),
			zap.Error(err))
		return nil, fmt.Errorf("insert message: %w: %v", chat.ErrPersistence, err)
	}
	rec := &chat.Record{Message: *msg, SenderName: sender.DisplayName}

	delivered := p.groups.Broadcast(chat.Room(roomID), chat.Event{Kind: chat.MessageDelivered, Record: rec, RoomID: roomID})
	p.logger.Info("room message stored",
		zap.Int64("message_id", msg.ID),
		zap.String("sender", senderID),
		zap.Int64("room", roomID),
		zap.Int("delivered", delivered))
	p.publish(bus.KindMessageStored, rec)
	return rec, nil
}

// MarkRead flags a direct message addressed to requester as read. Messages
// that do not exist, are deleted or belong to someone else are NotFound.
func (p *Pipeline) MarkRead(ctx context.Context, requesterID string, messageID int64) error {
	if requesterID == "" {
		return chat.ErrNotAuthenticated
	}
	msg, err := p.load(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != requesterID {
		return fmt.Errorf("message %d: %w", messageID, chat.ErrNotFound)
	}
	if msg.Read {
		return nil
	}
	if err := p.store.UpdateMessageReadFlag(ctx, messageID); err != nil {
		return fmt.Errorf("mark read %d: %w: %v", messageID, chat.ErrPersistence, err)
	}
	p.publish(bus.KindMessageRead, messageID)
	return nil
}

// DeleteMessage soft-deletes a message sent by requester and tells every
// group that received it. Only the sender may delete; anyone else gets
// NotFound. Repeating a delete is a no-op.
func (p *Pipeline) DeleteMessage(ctx context.Context, requesterID string, messageID int64) error {
	if requesterID == "" {
		return chat.ErrNotAuthenticated
	}
	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message %d: %w: %v", messageID, chat.ErrPersistence, err)
	}
	if msg == nil || msg.SenderID != requesterID {
		return fmt.Errorf("message %d: %w", messageID, chat.ErrNotFound)
	}
	if msg.Deleted {
		return nil
	}
	if err := p.store.SoftDeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("delete message %d: %w: %v", messageID, chat.ErrPersistence, err)
	}

	evt := chat.Event{Kind: chat.MessageDeleted, MessageID: messageID, RoomID: msg.RoomID}
	if msg.IsDirect() {
		p.groups.Broadcast(chat.Mailbox(msg.ReceiverID), evt)
		if msg.SenderID != msg.ReceiverID {
			p.groups.Broadcast(chat.Mailbox(msg.SenderID), evt)
		}
	} else {
		p.groups.Broadcast(chat.Room(msg.RoomID), evt)
	}
	p.publish(bus.KindMessageDeleted, messageID)
	return nil
}

func (p *Pipeline) validate(body string, att *store.Attachment) error {
	if body == "" && (att == nil || att.Path == "") {
		return fmt.Errorf("empty body: %w", chat.ErrInvalidMessage)
	}
	if p.opts.MaxBodyLen > 0 && utf8.RuneCountInString(body) > p.opts.MaxBodyLen {
		return fmt.Errorf("body exceeds %d characters: %w", p.opts.MaxBodyLen, chat.ErrInvalidMessage)
	}
	return nil
}

func (p *Pipeline) resolve(ctx context.Context, id string) (*store.Identity, error) {
	if id == "" {
		return nil, fmt.Errorf("empty identity: %w", chat.ErrUnknownParticipant)
	}
	ident, err := p.store.GetIdentity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get identity %s: %w: %v", id, chat.ErrPersistence, err)
	}
	if ident == nil {
		return nil, fmt.Errorf("identity %s: %w", id, chat.ErrUnknownParticipant)
	}
	return ident, nil
}

func (p *Pipeline) load(ctx context.Context, id int64) (*store.Message, error) {
	msg, err := p.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w: %v", id, chat.ErrPersistence, err)
	}
	if msg == nil || msg.Deleted {
		return nil, fmt.Errorf("message %d: %w", id, chat.ErrNotFound)
	}
	return msg, nil
}

func (p *Pipeline) publish(kind string, payload any) {
	if p.bus != nil {
		p.bus.Publish(bus.Event{Kind: kind, Payload: payload})
	}
}
