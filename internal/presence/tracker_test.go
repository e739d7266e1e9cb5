package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/registry"
	"go.uber.org/zap"
)

type call struct {
	id       string
	online   bool
	lastSeen time.Time
}

type fakeStore struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeStore) SetPresence(_ context.Context, id string, online bool, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{id, online, lastSeen})
	return f.err
}

func newTracker(s Store, b *bus.Bus) (*Tracker, *registry.Registry) {
	r := registry.New()
	tr := NewTracker(r, s, b, zap.NewNop())
	return tr, r
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

func TestFirstConnectionGoesOnline(t *testing.T) {
	store := &fakeStore{}
	tr, _ := newTracker(store, nil)
	ctx := context.Background()

	observer := registry.NewConn("bob", 8)
	if err := tr.Admit(ctx, observer); err != nil {
		t.Fatal(err)
	}
	drain(observer)

	tab1 := registry.NewConn("alice", 8)
	tab2 := registry.NewConn("alice", 8)
	if err := tr.Admit(ctx, tab1); err != nil {
		t.Fatal(err)
	}
	if err := tr.Admit(ctx, tab2); err != nil {
		t.Fatal(err)
	}

	store.mu.Lock()
	calls := store.calls
	store.mu.Unlock()
	if len(calls) != 2 || calls[1].id != "alice" || !calls[1].online {
		t.Fatalf("SetPresence calls = %+v, want bob then alice online", calls)
	}

	// Presence is global: bob hears about alice.
	evts := drain(observer)
	if len(evts) != 1 || evts[0].Kind != chat.PresenceChanged || evts[0].IdentityID != "alice" || !evts[0].Online {
		t.Errorf("observer events = %+v, want one alice online", evts)
	}
	// The second tab joined an identity that was already online.
	if evts := drain(tab2); len(evts) != 0 {
		t.Errorf("tab2 got %+v, want nothing", evts)
	}
}

func TestLastDisconnectGoesOfflineOnce(t *testing.T) {
	store := &fakeStore{}
	b := bus.New()
	sub, unsub := b.Subscribe("presence.", 8)
	defer unsub()
	tr, _ := newTracker(store, b)
	ctx := context.Background()

	observer := registry.NewConn("bob", 8)
	alice := registry.NewConn("alice", 8)
	_ = tr.Admit(ctx, observer)
	_ = tr.Admit(ctx, alice)
	drain(observer)

	disconnectAt := time.UnixMilli(1_800_000_000_000)
	tr.now = func() time.Time { return disconnectAt }

	if _, offline := tr.Remove(ctx, alice.ID); !offline {
		t.Fatal("Remove(alice) should report offline")
	}
	if c, offline := tr.Remove(ctx, alice.ID); c != nil || offline {
		t.Error("second Remove(alice) reported another offline transition")
	}

	evts := drain(observer)
	if len(evts) != 1 {
		t.Fatalf("observer got %d events, want exactly 1", len(evts))
	}
	if evts[0].Online || evts[0].IdentityID != "alice" || evts[0].LastSeen != disconnectAt.UnixMilli() {
		t.Errorf("offline event = %+v", evts[0])
	}

	store.mu.Lock()
	last := store.calls[len(store.calls)-1]
	store.mu.Unlock()
	if last.online || !last.lastSeen.Equal(disconnectAt) {
		t.Errorf("persisted %+v, want offline at %v", last, disconnectAt)
	}

	got := 0
	for {
		select {
		case evt := <-sub:
			if c, ok := evt.Payload.(Change); ok && c.IdentityID == "alice" && !c.Online {
				got++
			}
			continue
		default:
		}
		break
	}
	if got != 1 {
		t.Errorf("bus offline events for alice = %d, want 1", got)
	}
}

func TestStoreFailureStillBroadcasts(t *testing.T) {
	store := &fakeStore{err: errors.New("database is locked")}
	tr, _ := newTracker(store, nil)
	ctx := context.Background()

	observer := registry.NewConn("bob", 8)
	_ = tr.Admit(ctx, observer)
	drain(observer)

	if err := tr.Admit(ctx, registry.NewConn("alice", 8)); err != nil {
		t.Fatalf("Admit() error = %v, presence failure must not block admission", err)
	}
	evts := drain(observer)
	if len(evts) != 1 || !evts[0].Online {
		t.Errorf("observer events = %+v, want alice online despite store failure", evts)
	}
}

func TestAdmitAnonymousDoesNotTouchPresence(t *testing.T) {
	store := &fakeStore{}
	tr, _ := newTracker(store, nil)
	if err := tr.Admit(context.Background(), registry.NewConn("", 1)); !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("Admit(anonymous) error = %v", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("SetPresence called %d times for anonymous admit", len(store.calls))
	}
}
