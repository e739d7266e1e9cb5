package presence

import (
	"context"
	"time"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/registry"
	"go.uber.org/zap"
)

// Store persists presence transitions.
type Store interface {
	SetPresence(ctx context.Context, identityID string, online bool, lastSeen time.Time) error
}

// Change is the bus payload for a presence transition.
type Change struct {
	IdentityID string
	Online     bool
	LastSeen   time.Time
	Notified   int
}

// Tracker derives online/offline from registry occupancy. It is the only
// writer of the presence columns: transitions happen inside the registry's
// first/last hooks, so they cannot be triggered without a matching change in
// live connections.
type Tracker struct {
	registry *registry.Registry
	store    Store
	bus      *bus.Bus
	logger   *zap.Logger
	now      func() time.Time
}

// NewTracker creates a presence tracker over r.
func NewTracker(r *registry.Registry, s Store, b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{
		registry: r,
		store:    s,
		bus:      b,
		logger:   logger,
		now:      time.Now,
	}
}

// Admit registers c and, if it is the identity's first connection, marks the
// identity online.
func (t *Tracker) Admit(ctx context.Context, c *registry.Conn) error {
	return t.registry.Admit(c, func(identityID string) {
		t.onFirstConnection(ctx, identityID)
	})
}

// Remove unregisters a connection and, if it was the identity's last, marks
// the identity offline. c is nil if connID was not registered.
func (t *Tracker) Remove(ctx context.Context, connID string) (c *registry.Conn, offline bool) {
	c, offline, _ = t.registry.Remove(connID, func(identityID string) {
		t.onLastConnectionClosed(ctx, identityID)
	})
	return c, offline
}

func (t *Tracker) onFirstConnection(ctx context.Context, identityID string) {
	t.transition(ctx, identityID, true)
}

func (t *Tracker) onLastConnectionClosed(ctx context.Context, identityID string) {
	t.transition(ctx, identityID, false)
}

// transition persists and broadcasts. A store failure only costs last-seen
// durability; the live event still goes out.
func (t *Tracker) transition(ctx context.Context, identityID string, online bool) {
	now := t.now()
	if err := t.store.SetPresence(ctx, identityID, online, now); err != nil {
		t.logger.Warn("persist presence failed",
			zap.String("identity", identityID),
			zap.Bool("online", online),
			zap.Error(err))
	}

	evt := chat.Event{
		Kind:       chat.PresenceChanged,
		IdentityID: identityID,
		Online:     online,
		LastSeen:   now.UnixMilli(),
	}
	notified := 0
	t.registry.Each(func(c *registry.Conn) {
		if c.Deliver(evt) {
			notified++
		}
	})

	t.logger.Info("presence changed",
		zap.String("identity", identityID),
		zap.Bool("online", online),
		zap.Int("notified", notified))
	if t.bus != nil {
		t.bus.Publish(bus.Event{
			Kind:      bus.KindPresenceChanged,
			Timestamp: now,
			Payload:   Change{IdentityID: identityID, Online: online, LastSeen: now, Notified: notified},
		})
	}
}
