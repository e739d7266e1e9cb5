package group

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/registry"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeMembers struct {
	rooms map[string]map[int64]bool
	err   error
}

func (f *fakeMembers) IsActiveRoomMember(_ context.Context, id string, room int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.rooms[id][room], nil
}

func setup(t *testing.T, members *fakeMembers) (*Manager, *registry.Registry) {
	t.Helper()
	r := registry.New()
	return NewManager(r, members, bus.New(), zap.NewNop()), r
}

func admit(t *testing.T, r *registry.Registry, identityID string) *registry.Conn {
	t.Helper()
	c := registry.NewConn(identityID, 16)
	if err := r.Admit(c, nil); err != nil {
		t.Fatal(err)
	}
	return c
}

func drain(c *registry.Conn) []chat.Event {
	var out []chat.Event
	for {
		select {
		case evt := <-c.Events():
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestMailboxDelivery(t *testing.T) {
	m, r := setup(t, &fakeMembers{})
	tab1 := admit(t, r, "alice")
	tab2 := admit(t, r, "alice")
	other := admit(t, r, "bob")
	m.JoinMailbox(tab1.ID, "alice")
	m.JoinMailbox(tab2.ID, "alice")
	m.JoinMailbox(other.ID, "bob")

	n := m.Broadcast(chat.Mailbox("alice"), chat.Event{Kind: chat.MessageDelivered, MessageID: 1})
	if n != 2 {
		t.Errorf("delivered = %d, want 2", n)
	}
	if got := len(drain(tab1)); got != 1 {
		t.Errorf("tab1 got %d events, want 1", got)
	}
	if got := len(drain(tab2)); got != 1 {
		t.Errorf("tab2 got %d events, want 1", got)
	}
	if got := len(drain(other)); got != 0 {
		t.Errorf("bob got %d events, want 0", got)
	}
}

func TestJoinRoomNonMemberIsSilent(t *testing.T) {
	m, r := setup(t, &fakeMembers{})
	c := admit(t, r, "mallory")

	joined, err := m.JoinRoom(context.Background(), c.ID, "mallory", 7)
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if joined {
		t.Error("non-member joined")
	}
	if got := m.Members(chat.Room(7)); len(got) != 0 {
		t.Errorf("members = %v, want none", got)
	}
	if got := drain(c); len(got) != 0 {
		t.Errorf("got %d events, want 0", len(got))
	}
}

func TestJoinRoomAnnouncesToMembersAndJoiner(t *testing.T) {
	members := &fakeMembers{rooms: map[string]map[int64]bool{
		"alice": {7: true},
		"bob":   {7: true},
	}}
	m, r := setup(t, members)
	ctx := context.Background()
	a := admit(t, r, "alice")
	b := admit(t, r, "bob")

	if _, err := m.JoinRoom(ctx, a.ID, "alice", 7); err != nil {
		t.Fatal(err)
	}
	drain(a)

	joined, err := m.JoinRoom(ctx, b.ID, "bob", 7)
	if err != nil || !joined {
		t.Fatalf("JoinRoom = %v, %v", joined, err)
	}
	for name, c := range map[string]*registry.Conn{"alice": a, "bob": b} {
		evts := drain(c)
		if len(evts) != 1 {
			t.Fatalf("%s got %d events, want 1", name, len(evts))
		}
		if evts[0].Kind != chat.UserJoinedRoom || evts[0].IdentityID != "bob" || evts[0].RoomID != 7 {
			t.Errorf("%s got %+v", name, evts[0])
		}
	}
	if got := len(m.Members(chat.Room(7))); got != 2 {
		t.Errorf("members = %d, want 2", got)
	}
}

func TestJoinRoomStoreFailure(t *testing.T) {
	m, r := setup(t, &fakeMembers{err: errors.New("disk gone")})
	c := admit(t, r, "alice")

	_, err := m.JoinRoom(context.Background(), c.ID, "alice", 7)
	if !errors.Is(err, chat.ErrPersistence) {
		t.Errorf("err = %v, want ErrPersistence", err)
	}
	if got := m.GroupsOf(c.ID); len(got) != 0 {
		t.Errorf("groups = %v, want none", got)
	}
}

func TestJoinRoomAfterRemovalSkipsSubscribe(t *testing.T) {
	members := &fakeMembers{rooms: map[string]map[int64]bool{"alice": {7: true}}}
	m, r := setup(t, members)
	c := admit(t, r, "alice")
	r.Remove(c.ID, nil)

	joined, err := m.JoinRoom(context.Background(), c.ID, "alice", 7)
	if err != nil || joined {
		t.Errorf("JoinRoom = %v, %v; want false, nil", joined, err)
	}
	if got := m.Members(chat.Room(7)); len(got) != 0 {
		t.Errorf("members = %v, want none", got)
	}
}

func TestLeaveRoomNotifiesRemaining(t *testing.T) {
	members := &fakeMembers{rooms: map[string]map[int64]bool{
		"alice": {7: true},
		"bob":   {7: true},
	}}
	m, r := setup(t, members)
	ctx := context.Background()
	a := admit(t, r, "alice")
	b := admit(t, r, "bob")
	m.JoinRoom(ctx, a.ID, "alice", 7)
	m.JoinRoom(ctx, b.ID, "bob", 7)
	drain(a)
	drain(b)

	m.LeaveRoom(b.ID, "bob", 7)

	if got := drain(b); len(got) != 0 {
		t.Errorf("leaver got %d events, want 0", len(got))
	}
	evts := drain(a)
	if len(evts) != 1 || evts[0].Kind != chat.UserLeftRoom || evts[0].IdentityID != "bob" {
		t.Errorf("alice got %+v", evts)
	}

	// Leaving a room twice is harmless.
	m.LeaveRoom(b.ID, "bob", 7)
	if got := len(m.Members(chat.Room(7))); got != 1 {
		t.Errorf("members = %d, want 1", got)
	}
}

func TestDropConnectionClearsBothTables(t *testing.T) {
	members := &fakeMembers{rooms: map[string]map[int64]bool{"alice": {1: true, 2: true}}}
	m, r := setup(t, members)
	ctx := context.Background()
	c := admit(t, r, "alice")
	m.JoinMailbox(c.ID, "alice")
	m.JoinRoom(ctx, c.ID, "alice", 1)
	m.JoinRoom(ctx, c.ID, "alice", 2)

	if got := len(m.GroupsOf(c.ID)); got != 3 {
		t.Fatalf("groups = %d, want 3", got)
	}

	m.DropConnection(c.ID)

	if got := m.GroupsOf(c.ID); len(got) != 0 {
		t.Errorf("groups after drop = %v", got)
	}
	for _, g := range []chat.Group{chat.Mailbox("alice"), chat.Room(1), chat.Room(2)} {
		if got := m.Members(g); len(got) != 0 {
			t.Errorf("%s members = %v, want none", g, got)
		}
	}
}

func TestBroadcastSkipsVanishedConnections(t *testing.T) {
	m, r := setup(t, &fakeMembers{})
	c := admit(t, r, "alice")
	m.JoinMailbox(c.ID, "alice")
	r.Remove(c.ID, nil)

	if n := m.Broadcast(chat.Mailbox("alice"), chat.Event{Kind: chat.MessageDelivered}); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
}

// racingDirectory tears the connection down on its first lookup, the way a
// concurrent Disconnected would between JoinRoom's lookup and subscribe.
type racingDirectory struct {
	r    *registry.Registry
	m    *Manager
	once bool
}

func (d *racingDirectory) Lookup(connID string) *registry.Conn {
	c := d.r.Lookup(connID)
	if !d.once {
		d.once = true
		d.r.Remove(connID, nil)
		d.m.DropConnection(connID)
	}
	return c
}

func TestJoinRoomRacingRemovalLeavesNoSubscription(t *testing.T) {
	r := registry.New()
	dir := &racingDirectory{r: r}
	m := NewManager(dir, &fakeMembers{rooms: map[string]map[int64]bool{"alice": {7: true}}}, bus.New(), zap.NewNop())
	dir.m = m
	c := admit(t, r, "alice")

	joined, err := m.JoinRoom(context.Background(), c.ID, "alice", 7)
	if err != nil {
		t.Fatal(err)
	}
	if joined {
		t.Error("join by a removed connection should not succeed")
	}
	if got := m.GroupsOf(c.ID); len(got) != 0 {
		t.Errorf("GroupsOf = %v, want none", got)
	}
	if got := m.Members(chat.Room(7)); len(got) != 0 {
		t.Errorf("Members = %v, want none", got)
	}
}

func TestBroadcastWarnsOnlyForFullQueues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := registry.New()
	m := NewManager(r, &fakeMembers{}, bus.New(), zap.New(core))

	full := registry.NewConn("alice", 1)
	closing := registry.NewConn("bob", 1)
	for _, c := range []*registry.Conn{full, closing} {
		if err := r.Admit(c, nil); err != nil {
			t.Fatal(err)
		}
		m.JoinMailbox(c.ID, c.IdentityID)
	}
	full.Deliver(chat.Event{Kind: chat.MessageDelivered})
	closing.Close()

	m.Broadcast(chat.Mailbox("alice"), chat.Event{Kind: chat.MessageDelivered})
	m.Broadcast(chat.Mailbox("bob"), chat.Event{Kind: chat.MessageDelivered})

	warns := logs.FilterLevelExact(zap.WarnLevel).All()
	if len(warns) != 1 || warns[0].ContextMap()["conn_id"] != full.ID {
		t.Errorf("warnings = %v, want one for the full queue", warns)
	}
	if n := logs.FilterMessage("event skipped, connection closing").Len(); n != 1 {
		t.Errorf("closing skips logged = %d, want 1", n)
	}
}
