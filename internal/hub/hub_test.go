package hub

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/group"
	"github.com/matheus3301/parley/internal/pipeline"
	"github.com/matheus3301/parley/internal/presence"
	"github.com/matheus3301/parley/internal/registry"
	"github.com/matheus3301/parley/internal/store"
	"go.uber.org/zap"
)

func newHub(t *testing.T) (*Hub, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		if err := db.UpsertIdentity(ctx, &store.Identity{ID: id, DisplayName: id}); err != nil {
			t.Fatal(err)
		}
	}

	logger := zap.NewNop()
	b := bus.New()
	r := registry.New()
	g := group.NewManager(r, db, b, logger)
	tr := presence.NewTracker(r, db, b, logger)
	p := pipeline.New(db, g, b, logger, pipeline.Options{MaxBodyLen: 100})
	return New(r, tr, g, p, b, logger, 32), db, b
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

func TestConnectedRejectsAnonymous(t *testing.T) {
	h, _, _ := newHub(t)
	if _, err := h.Connected(context.Background(), ""); !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
	if s := h.Stats(); s.Connections != 0 {
		t.Errorf("connections = %d, want 0", s.Connections)
	}
}

func TestConnectLifecycle(t *testing.T) {
	h, db, b := newHub(t)
	ctx := context.Background()
	events, unsub := b.Subscribe("conn.", 8)
	defer unsub()

	c, err := h.Connected(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	ident, err := db.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !ident.Online {
		t.Error("alice should be online after connecting")
	}
	if got := h.groups.GroupsOf(c.ID); len(got) != 1 || got[0] != chat.Mailbox("alice") {
		t.Errorf("groups = %v, want [mailbox:alice]", got)
	}
	if s := h.Stats(); s.Connections != 1 || s.Online != 1 {
		t.Errorf("stats = %+v", s)
	}

	h.Disconnected(ctx, c.ID, "client closed")
	h.Disconnected(ctx, c.ID, "client closed")

	select {
	case <-c.Done():
	default:
		t.Error("connection not closed")
	}
	ident, _ = db.GetIdentity(ctx, "alice")
	if ident.Online {
		t.Error("alice should be offline after disconnecting")
	}
	if got := h.groups.GroupsOf(c.ID); len(got) != 0 {
		t.Errorf("groups after disconnect = %v", got)
	}

	var kinds []string
	for len(kinds) < 2 {
		select {
		case evt := <-events:
			kinds = append(kinds, evt.Kind)
		case <-time.After(time.Second):
			t.Fatalf("got bus events %v, want admitted and removed", kinds)
		}
	}
	if kinds[0] != bus.KindConnAdmitted || kinds[1] != bus.KindConnRemoved {
		t.Errorf("bus events = %v", kinds)
	}
	select {
	case evt := <-events:
		t.Errorf("unexpected extra event %s", evt.Kind)
	default:
	}
}

func TestHandleDispatch(t *testing.T) {
	h, db, _ := newHub(t)
	ctx := context.Background()
	a, _ := h.Connected(ctx, "alice")
	bc, _ := h.Connected(ctx, "bob")
	drain(a)
	drain(bc)

	out := h.Handle(ctx, a, chat.Request{Op: chat.OpSendDirect, Ref: "r1", ReceiverID: "bob", Body: "hey"})
	if !out.OK() {
		t.Fatalf("send_direct: %v", out.Err)
	}
	evts := drain(bc)
	if len(evts) != 1 || evts[0].Kind != chat.MessageDelivered {
		t.Fatalf("bob got %+v", evts)
	}
	msgID := evts[0].Record.ID

	out = h.Handle(ctx, bc, chat.Request{Op: chat.OpMarkRead, MessageID: msgID})
	if !out.OK() {
		t.Errorf("mark_read: %v", out.Err)
	}
	msg, _ := db.GetMessage(ctx, msgID)
	if !msg.Read {
		t.Error("message not read")
	}

	tests := []struct {
		req  chat.Request
		want error
	}{
		{chat.Request{Op: "shout", Ref: "x"}, chat.ErrInvalidOperation},
		{chat.Request{Op: chat.OpJoinRoom}, chat.ErrInvalidOperation},
		{chat.Request{Op: chat.OpSendDirect, ReceiverID: "zed", Body: "hi"}, chat.ErrUnknownParticipant},
		{chat.Request{Op: chat.OpMarkRead, MessageID: 424242}, chat.ErrNotFound},
	}
	for _, tt := range tests {
		out := h.Handle(ctx, a, tt.req)
		if !errors.Is(out.Err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.req.Op, out.Err, tt.want)
		}
		if out.Fatal() {
			t.Errorf("%s: outcome should not be fatal", tt.req.Op)
		}
		if f := out.Failure(); f.Ref != tt.req.Ref || f.Code != chat.Code(tt.want) {
			t.Errorf("%s: failure event = %+v", tt.req.Op, f)
		}
	}
}

func TestHandleSurvivesCanceledContext(t *testing.T) {
	h, db, _ := newHub(t)
	a, _ := h.Connected(context.Background(), "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := h.Handle(ctx, a, chat.Request{Op: chat.OpSendDirect, ReceiverID: "bob", Body: "late"})
	if !out.OK() {
		t.Fatalf("send_direct: %v", out.Err)
	}
	n, err := db.MessageCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}
}

func TestHandleAfterDisconnectIsFatal(t *testing.T) {
	h, _, _ := newHub(t)
	ctx := context.Background()
	a, _ := h.Connected(ctx, "alice")
	h.Disconnected(ctx, a.ID, "gone")

	out := h.Handle(ctx, a, chat.Request{Op: chat.OpSendDirect, ReceiverID: "bob", Body: "hi"})
	if !out.Fatal() {
		t.Errorf("outcome = %v, want fatal", out.Err)
	}
}

func TestCloseAllAndWait(t *testing.T) {
	h, _, _ := newHub(t)
	ctx := context.Background()
	a, _ := h.Connected(ctx, "alice")
	bc, _ := h.Connected(ctx, "bob")

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := h.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait with live connections = %v, want deadline exceeded", err)
	}

	h.CloseAll()
	for _, c := range []*registry.Conn{a, bc} {
		select {
		case <-c.Done():
			h.Disconnected(ctx, c.ID, "shutdown")
		case <-time.After(time.Second):
			t.Fatal("CloseAll did not close connection")
		}
	}

	wctx, wcancel := context.WithTimeout(ctx, time.Second)
	defer wcancel()
	if err := h.Wait(wctx); err != nil {
		t.Errorf("Wait: %v", err)
	}
}
