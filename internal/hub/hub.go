package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/group"
	"github.com/matheus3301/parley/internal/pipeline"
	"github.com/matheus3301/parley/internal/presence"
	"github.com/matheus3301/parley/internal/registry"
	"go.uber.org/zap"
)

// ConnInfo is the bus payload for connection lifecycle events.
type ConnInfo struct {
	ConnID     string
	IdentityID string
	Reason     string
	Lifetime   time.Duration
}

// Stats is a point-in-time view of live connections.
type Stats struct {
	Connections int
	Online      int
}

// Hub is the transport-facing entry point of the messaging core. Every
// connection goes through Connected once and Disconnected once; everything
// in between is a Request handled in arrival order by the caller.
type Hub struct {
	registry   *registry.Registry
	presence   *presence.Tracker
	groups     *group.Manager
	pipeline   *pipeline.Pipeline
	bus        *bus.Bus
	logger     *zap.Logger
	sendBuffer int

	live sync.WaitGroup
}

// New creates a hub.
func New(
	r *registry.Registry,
	tr *presence.Tracker,
	g *group.Manager,
	p *pipeline.Pipeline,
	b *bus.Bus,
	logger *zap.Logger,
	sendBuffer int,
) *Hub {
	return &Hub{
		registry:   r,
		presence:   tr,
		groups:     g,
		pipeline:   p,
		bus:        b,
		logger:     logger,
		sendBuffer: sendBuffer,
	}
}

// Connected admits a new connection for an authenticated identity and
// subscribes it to the identity's mailbox.
func (h *Hub) Connected(ctx context.Context, identityID string) (*registry.Conn, error) {
	if identityID == "" {
		return nil, chat.ErrNotAuthenticated
	}
	ctx = context.WithoutCancel(ctx)
	c := registry.NewConn(identityID, h.sendBuffer)

	// The mailbox subscription exists before the connection is visible.
	h.groups.JoinMailbox(c.ID, identityID)
	h.live.Add(1)
	if err := h.presence.Admit(ctx, c); err != nil {
		h.live.Done()
		h.groups.DropConnection(c.ID)
		return nil, fmt.Errorf("admit connection: %w", err)
	}

	h.logger.Info("connection admitted",
		zap.String("conn_id", c.ID),
		zap.String("identity", identityID))
	h.publish(bus.KindConnAdmitted, ConnInfo{ConnID: c.ID, IdentityID: identityID})
	return c, nil
}

// Disconnected tears down a connection: it leaves the registry (possibly
// flipping presence offline), drops its subscriptions and closes its queue.
// Calling it for an unknown or already removed connection does nothing.
func (h *Hub) Disconnected(ctx context.Context, connID, reason string) {
	ctx = context.WithoutCancel(ctx)
	c, offline := h.presence.Remove(ctx, connID)
	if c == nil {
		return
	}
	h.groups.DropConnection(connID)
	c.Close()
	defer h.live.Done()

	lifetime := time.Since(c.CreatedAt)
	h.logger.Info("connection removed",
		zap.String("conn_id", connID),
		zap.String("identity", c.IdentityID),
		zap.String("reason", reason),
		zap.Bool("went_offline", offline),
		zap.Uint64("dropped_events", c.Dropped()),
		zap.Duration("lifetime", lifetime))
	h.publish(bus.KindConnRemoved, ConnInfo{
		ConnID:     connID,
		IdentityID: c.IdentityID,
		Reason:     reason,
		Lifetime:   lifetime,
	})
}

// Handle executes one inbound operation for c. Once accepted, the operation
// runs to completion even if ctx is canceled by a disconnect.
func (h *Hub) Handle(ctx context.Context, c *registry.Conn, req chat.Request) chat.Outcome {
	out := chat.Outcome{Op: req.Op, Ref: req.Ref}
	if c == nil || h.registry.Lookup(c.ID) != c {
		out.Err = chat.ErrNotAuthenticated
		return out
	}
	ctx = context.WithoutCancel(ctx)
	out.Err = h.dispatch(ctx, c, req)
	if out.Err != nil {
		h.logFailure(c, req, out.Err)
	}
	return out
}

func (h *Hub) dispatch(ctx context.Context, c *registry.Conn, req chat.Request) error {
	switch req.Op {
	case chat.OpSendDirect:
		_, err := h.pipeline.SendDirect(ctx, c, c.IdentityID, req.ReceiverID, req.Body, req.Attachment)
		return err
	case chat.OpSendRoom:
		if req.RoomID <= 0 {
			return fmt.Errorf("send_room without room id: %w", chat.ErrInvalidOperation)
		}
		_, err := h.pipeline.SendRoom(ctx, c.IdentityID, req.RoomID, req.Body, req.Attachment)
		return err
	case chat.OpJoinRoom:
		if req.RoomID <= 0 {
			return fmt.Errorf("join_room without room id: %w", chat.ErrInvalidOperation)
		}
		_, err := h.groups.JoinRoom(ctx, c.ID, c.IdentityID, req.RoomID)
		return err
	case chat.OpLeaveRoom:
		if req.RoomID <= 0 {
			return fmt.Errorf("leave_room without room id: %w", chat.ErrInvalidOperation)
		}
		h.groups.LeaveRoom(c.ID, c.IdentityID, req.RoomID)
		return nil
	case chat.OpMarkRead:
		return h.pipeline.MarkRead(ctx, c.IdentityID, req.MessageID)
	case chat.OpDeleteMessage:
		return h.pipeline.DeleteMessage(ctx, c.IdentityID, req.MessageID)
	default:
		return fmt.Errorf("unknown op %q: %w", req.Op, chat.ErrInvalidOperation)
	}
}

func (h *Hub) logFailure(c *registry.Conn, req chat.Request, err error) {
	fields := []zap.Field{
		zap.String("conn_id", c.ID),
		zap.String("identity", c.IdentityID),
		zap.String("op", string(req.Op)),
		zap.Error(err),
	}
	if errors.Is(err, chat.ErrPersistence) {
		h.logger.Error("operation failed", fields...)
		return
	}
	h.logger.Debug("operation rejected", fields...)
}

// CloseAll closes every live connection's queue. Transports observe this
// through Conn.Done and call Disconnected.
func (h *Hub) CloseAll() {
	h.registry.Each(func(c *registry.Conn) {
		c.Close()
	})
}

// Wait blocks until every admitted connection has been disconnected or ctx
// is done.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports the number of live connections and online identities.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.registry.Count(),
		Online:      h.registry.OnlineCount(),
	}
}

func (h *Hub) publish(kind string, payload any) {
	if h.bus != nil {
		h.bus.Publish(bus.Event{Kind: kind, Payload: payload})
	}
}
