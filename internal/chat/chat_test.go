package chat

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeUnwraps(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNotAuthenticated, CodeNotAuthenticated},
		{fmt.Errorf("lookup bob: %w", ErrUnknownParticipant), CodeUnknownParticipant},
		{fmt.Errorf("message 4: %w", ErrNotFound), CodeNotFound},
		{fmt.Errorf("insert: %w: disk full", ErrPersistence), CodePersistence},
		{ErrInvalidMessage, CodeInvalidMessage},
		{ErrInvalidOperation, CodeInvalidOperation},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestGroups(t *testing.T) {
	if got := Mailbox("alice"); got != "mailbox:alice" {
		t.Errorf("Mailbox(alice) = %q", got)
	}
	g := Room(42)
	if g != "room:42" {
		t.Errorf("Room(42) = %q", g)
	}
	if id, ok := g.RoomID(); !ok || id != 42 {
		t.Errorf("RoomID() = (%d, %v), want (42, true)", id, ok)
	}
	if _, ok := Mailbox("alice").RoomID(); ok {
		t.Error("mailbox group reported a room id")
	}
}

func TestOutcome(t *testing.T) {
	ok := Outcome{Op: OpJoinRoom}
	if !ok.OK() || ok.Fatal() {
		t.Errorf("nil error outcome: OK=%v Fatal=%v", ok.OK(), ok.Fatal())
	}

	fatal := Outcome{Op: OpSendDirect, Ref: "r1", Err: fmt.Errorf("send: %w", ErrNotAuthenticated)}
	if !fatal.Fatal() {
		t.Error("NotAuthenticated outcome should be fatal")
	}

	nf := Outcome{Op: OpMarkRead, Ref: "r2", Err: ErrNotFound}
	if nf.Fatal() {
		t.Error("NotFound outcome should not be fatal")
	}
	evt := nf.Failure()
	if evt.Kind != OperationFailed || evt.Ref != "r2" || evt.Code != CodeNotFound || evt.Op != OpMarkRead {
		t.Errorf("Failure() = %+v", evt)
	}
}
