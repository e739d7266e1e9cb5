package group

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/registry"
	"go.uber.org/zap"
)

const shardCount = 32

// MembershipChecker answers whether an identity may watch a room.
type MembershipChecker interface {
	IsActiveRoomMember(ctx context.Context, identityID string, roomID int64) (bool, error)
}

// Directory resolves connection ids to live connections.
type Directory interface {
	Lookup(connID string) *registry.Conn
}

// RoomChange is the bus payload for room joins and leaves.
type RoomChange struct {
	ConnID     string
	IdentityID string
	RoomID     int64
}

// Manager owns delivery-group subscriptions. It keeps two lookup tables,
// connection -> groups and group -> connections, and is the only component
// that mutates either, so they stay mirror images of each other.
type Manager struct {
	byConn  [shardCount]table[string, chat.Group]
	byGroup [shardCount]table[chat.Group, string]

	dir     Directory
	members MembershipChecker
	bus     *bus.Bus
	logger  *zap.Logger
}

type table[K ~string, V comparable] struct {
	mu sync.RWMutex
	m  map[K]map[V]struct{}
}

func (t *table[K, V]) add(k K, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.m[k]
	if !ok {
		set = make(map[V]struct{})
		t.m[k] = set
	}
	set[v] = struct{}{}
}

func (t *table[K, V]) remove(k K, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.m[k]
	delete(set, v)
	if len(set) == 0 {
		delete(t.m, k)
	}
}

func (t *table[K, V]) take(k K) []V {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := keys(t.m[k])
	delete(t.m, k)
	return out
}

func (t *table[K, V]) list(k K) []V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return keys(t.m[k])
}

func keys[V comparable](set map[V]struct{}) []V {
	out := make([]V, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}

func shard[K ~string](k K) uint64 {
	return xxhash.Sum64String(string(k)) % shardCount
}

// NewManager creates a group manager.
func NewManager(dir Directory, members MembershipChecker, b *bus.Bus, logger *zap.Logger) *Manager {
	m := &Manager{dir: dir, members: members, bus: b, logger: logger}
	for i := range m.byConn {
		m.byConn[i].m = make(map[string]map[chat.Group]struct{})
		m.byGroup[i].m = make(map[chat.Group]map[string]struct{})
	}
	return m
}

func (m *Manager) subscribe(connID string, g chat.Group) {
	m.byConn[shard(connID)].add(connID, g)
	m.byGroup[shard(g)].add(g, connID)
}

func (m *Manager) unsubscribe(connID string, g chat.Group) {
	m.byConn[shard(connID)].remove(connID, g)
	m.byGroup[shard(g)].remove(g, connID)
}

// JoinMailbox subscribes a freshly admitted connection to its identity's
// private mailbox.
func (m *Manager) JoinMailbox(connID, identityID string) {
	m.subscribe(connID, chat.Mailbox(identityID))
}

// JoinRoom subscribes connID to a room group if identityID is an active
// member. Non-members get a silent no-op: joined is false and err is nil.
// Members are announced to the room, the joining connection included.
func (m *Manager) JoinRoom(ctx context.Context, connID, identityID string, roomID int64) (joined bool, err error) {
	ok, err := m.members.IsActiveRoomMember(ctx, identityID, roomID)
	if err != nil {
		return false, fmt.Errorf("membership check room %d: %w: %v", roomID, chat.ErrPersistence, err)
	}
	if !ok {
		m.logger.Debug("join ignored, not a member",
			zap.String("identity", identityID), zap.Int64("room", roomID))
		return false, nil
	}
	c := m.dir.Lookup(connID)
	if c == nil {
		return false, nil
	}

	g := chat.Room(roomID)
	m.subscribe(connID, g)
	// A removal that raced the subscribe already ran DropConnection, so the
	// entry would be orphaned.
	if m.dir.Lookup(connID) != c {
		m.unsubscribe(connID, g)
		return false, nil
	}
	m.Broadcast(g, chat.Event{Kind: chat.UserJoinedRoom, IdentityID: identityID, RoomID: roomID})
	m.publish(bus.KindRoomJoined, RoomChange{ConnID: connID, IdentityID: identityID, RoomID: roomID})
	return true, nil
}

// LeaveRoom unsubscribes connID from a room group and tells the remaining
// subscribers. Leaving is always allowed, even without a subscription.
func (m *Manager) LeaveRoom(connID, identityID string, roomID int64) {
	g := chat.Room(roomID)
	m.unsubscribe(connID, g)
	m.Broadcast(g, chat.Event{Kind: chat.UserLeftRoom, IdentityID: identityID, RoomID: roomID})
	m.publish(bus.KindRoomLeft, RoomChange{ConnID: connID, IdentityID: identityID, RoomID: roomID})
}

// DropConnection removes every subscription held by a closed connection.
func (m *Manager) DropConnection(connID string) {
	for _, g := range m.byConn[shard(connID)].take(connID) {
		m.byGroup[shard(g)].remove(g, connID)
	}
}

// Broadcast queues evt on every connection subscribed to g and returns how
// many accepted it. Delivery happens on a snapshot, outside table locks.
func (m *Manager) Broadcast(g chat.Group, evt chat.Event) int {
	delivered := 0
	for _, connID := range m.Members(g) {
		c := m.dir.Lookup(connID)
		if c == nil {
			continue
		}
		if c.Deliver(evt) {
			delivered++
			continue
		}
		select {
		case <-c.Done():
			m.logger.Debug("event skipped, connection closing",
				zap.String("conn_id", connID),
				zap.String("kind", string(evt.Kind)))
			continue
		default:
		}
		m.logger.Warn("event dropped, queue full",
			zap.String("conn_id", connID),
			zap.String("group", string(g)),
			zap.String("kind", string(evt.Kind)))
	}
	return delivered
}

// Members returns the connection ids subscribed to g.
func (m *Manager) Members(g chat.Group) []string {
	return m.byGroup[shard(g)].list(g)
}

// GroupsOf returns the groups connID is subscribed to.
func (m *Manager) GroupsOf(connID string) []chat.Group {
	return m.byConn[shard(connID)].list(connID)
}

func (m *Manager) publish(kind string, payload any) {
	if m.bus != nil {
		m.bus.Publish(bus.Event{Kind: kind, Payload: payload})
	}
}
