package registry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"github.com/matheus3301/parley/internal/chat"
	"golang.org/x/sync/errgroup"
)

func TestAdmitRejectsAnonymous(t *testing.T) {
	r := New()
	err := r.Admit(NewConn("", 1), nil)
	if !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("Admit(anonymous) error = %v, want ErrNotAuthenticated", err)
	}
	if err := r.Admit(nil, nil); !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("Admit(nil) error = %v, want ErrNotAuthenticated", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestAdmitTwiceFails(t *testing.T) {
	r := New()
	c := NewConn("alice", 1)
	if err := r.Admit(c, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Admit(c, nil); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Admit error = %v, want ErrDuplicate", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestTransitionsFireOnlyAtEdges(t *testing.T) {
	r := New()
	var firsts, lasts []string
	onFirst := func(id string) { firsts = append(firsts, id) }
	onLast := func(id string) { lasts = append(lasts, id) }

	tab1 := NewConn("alice", 1)
	tab2 := NewConn("alice", 1)
	if err := r.Admit(tab1, onFirst); err != nil {
		t.Fatal(err)
	}
	if err := r.Admit(tab2, onFirst); err != nil {
		t.Fatal(err)
	}
	if len(firsts) != 1 {
		t.Fatalf("onFirst calls = %v, want exactly one", firsts)
	}
	if r.OnlineCount() != 1 || r.Count() != 2 {
		t.Errorf("OnlineCount=%d Count=%d, want 1 and 2", r.OnlineCount(), r.Count())
	}

	_, last, ok := r.Remove(tab1.ID, onLast)
	if !ok || last {
		t.Errorf("Remove(tab1) = (last=%v, ok=%v), want (false, true)", last, ok)
	}
	if len(lasts) != 0 {
		t.Errorf("onLast fired with a connection still live: %v", lasts)
	}

	got, last, ok := r.Remove(tab2.ID, onLast)
	if !ok || !last || got != tab2 {
		t.Errorf("Remove(tab2) = (%v, last=%v, ok=%v), want (tab2, true, true)", got, last, ok)
	}
	if len(lasts) != 1 || lasts[0] != "alice" {
		t.Errorf("onLast calls = %v, want [alice]", lasts)
	}
	if r.OnlineCount() != 0 || r.Count() != 0 {
		t.Errorf("OnlineCount=%d Count=%d, want 0 and 0", r.OnlineCount(), r.Count())
	}

	if _, _, ok := r.Remove(tab2.ID, onLast); ok {
		t.Error("removing an unknown connection reported ok")
	}

	// The identity can come back online afterwards.
	if err := r.Admit(NewConn("alice", 1), onFirst); err != nil {
		t.Fatal(err)
	}
	if len(firsts) != 2 {
		t.Errorf("onFirst calls after reconnect = %d, want 2", len(firsts))
	}
}

func TestLookups(t *testing.T) {
	r := New()
	a1, a2, b := NewConn("alice", 1), NewConn("alice", 1), NewConn("bob", 1)
	for _, c := range []*Conn{a1, a2, b} {
		if err := r.Admit(c, nil); err != nil {
			t.Fatal(err)
		}
	}

	got := r.ConnectionsOf("alice")
	sort.Strings(got)
	want := []string{a1.ID, a2.ID}
	sort.Strings(want)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ConnectionsOf(alice) = %v, want %v", got, want)
	}
	if ids := r.ConnectionsOf("carol"); len(ids) != 0 {
		t.Errorf("ConnectionsOf(carol) = %v, want empty", ids)
	}

	if id, ok := r.IdentityOf(b.ID); !ok || id != "bob" {
		t.Errorf("IdentityOf(b) = (%q, %v), want (bob, true)", id, ok)
	}
	if _, ok := r.IdentityOf("nope"); ok {
		t.Error("IdentityOf(unknown) reported ok")
	}
	if r.Lookup(a2.ID) != a2 {
		t.Error("Lookup(a2) did not return a2")
	}

	seen := 0
	r.Each(func(*Conn) { seen++ })
	if seen != 3 {
		t.Errorf("Each visited %d connections, want 3", seen)
	}
}

// TestOnlineMatchesLiveCount hammers a few identities with concurrent admits
// and removes and checks that the hook-derived online flag agrees with the
// registry's live connections at every quiescent point.
func TestOnlineMatchesLiveCount(t *testing.T) {
	r := New()
	identities := []string{"alice", "bob", "carol", "dave"}

	var mu sync.Mutex
	online := map[string]bool{}
	onFirst := func(id string) {
		mu.Lock()
		defer mu.Unlock()
		if online[id] {
			t.Errorf("%s went online twice", id)
		}
		online[id] = true
	}
	onLast := func(id string) {
		mu.Lock()
		defer mu.Unlock()
		if !online[id] {
			t.Errorf("%s went offline while offline", id)
		}
		online[id] = false
	}

	for round := 0; round < 5; round++ {
		var g errgroup.Group
		for w := 0; w < 8; w++ {
			seed := uint64(round*100 + w)
			g.Go(func() error {
				rng := rand.New(rand.NewPCG(seed, seed))
				var mine []*Conn
				for i := 0; i < 200; i++ {
					if len(mine) > 0 && rng.IntN(2) == 0 {
						j := rng.IntN(len(mine))
						r.Remove(mine[j].ID, onLast)
						mine = append(mine[:j], mine[j+1:]...)
						continue
					}
					c := NewConn(identities[rng.IntN(len(identities))], 1)
					if err := r.Admit(c, onFirst); err != nil {
						return err
					}
					mine = append(mine, c)
				}
				// Leave some connections behind on odd workers.
				if seed%2 == 0 {
					for _, c := range mine {
						r.Remove(c.ID, onLast)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}

		onlineCount := 0
		for _, id := range identities {
			live := len(r.ConnectionsOf(id)) > 0
			mu.Lock()
			flag := online[id]
			mu.Unlock()
			if flag != live {
				t.Errorf("round %d: %s online=%v but live connections=%v", round, id, flag, live)
			}
			if live {
				onlineCount++
			}
		}
		if r.OnlineCount() != onlineCount {
			t.Errorf("round %d: OnlineCount() = %d, want %d", round, r.OnlineCount(), onlineCount)
		}
	}
}
