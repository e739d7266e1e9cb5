package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/matheus3301/parley/internal/chat"
)

const shardCount = 32

// ErrDuplicate is returned when a connection id is admitted twice.
var ErrDuplicate = errors.New("connection already admitted")

// Registry tracks live connections and the identity owning each. Both
// indexes are sharded by key so unrelated identities never contend on one
// mutex.
type Registry struct {
	conns      [shardCount]connShard
	identities [shardCount]identityShard
	total      atomic.Int64
	online     atomic.Int64
}

type connShard struct {
	mu sync.RWMutex
	m  map[string]*Conn
}

type identityShard struct {
	mu sync.Mutex
	m  map[string]*identityEntry
}

// identityEntry holds the live connections of one identity. Its mutex
// serializes admissions and removals for that identity, including the
// transition hooks. A dead entry has been unlinked from its shard and must
// not be reused.
type identityEntry struct {
	mu    sync.Mutex
	conns map[string]*Conn
	dead  bool
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.conns {
		r.conns[i].m = make(map[string]*Conn)
		r.identities[i].m = make(map[string]*identityEntry)
	}
	return r
}

func shardOf(key string) uint64 {
	return xxhash.Sum64String(key) % shardCount
}

func (r *Registry) connShard(id string) *connShard {
	return &r.conns[shardOf(id)]
}

func (r *Registry) identityShard(id string) *identityShard {
	return &r.identities[shardOf(id)]
}

// Admit registers c under its identity. If c is the identity's first live
// connection, onFirst runs before Admit returns while other admissions and
// removals for the same identity wait.
func (r *Registry) Admit(c *Conn, onFirst func(identityID string)) error {
	if c == nil || c.IdentityID == "" {
		return chat.ErrNotAuthenticated
	}
	for {
		e := r.entryFor(c.IdentityID)
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		if _, dup := e.conns[c.ID]; dup {
			e.mu.Unlock()
			return ErrDuplicate
		}
		first := len(e.conns) == 0
		e.conns[c.ID] = c

		cs := r.connShard(c.ID)
		cs.mu.Lock()
		cs.m[c.ID] = c
		cs.mu.Unlock()

		r.total.Add(1)
		if first {
			r.online.Add(1)
			if onFirst != nil {
				onFirst(c.IdentityID)
			}
		}
		e.mu.Unlock()
		return nil
	}
}

// Remove unregisters a connection. last reports whether it was the
// identity's final live connection; in that case onLast runs before Remove
// returns. ok is false if the connection was not registered.
func (r *Registry) Remove(connID string, onLast func(identityID string)) (c *Conn, last, ok bool) {
	cs := r.connShard(connID)
	cs.mu.Lock()
	c, ok = cs.m[connID]
	delete(cs.m, connID)
	cs.mu.Unlock()
	if !ok {
		return nil, false, false
	}
	r.total.Add(-1)

	is := r.identityShard(c.IdentityID)
	is.mu.Lock()
	e := is.m[c.IdentityID]
	is.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, connID)
	if len(e.conns) > 0 {
		return c, false, true
	}
	r.online.Add(-1)
	if onLast != nil {
		onLast(c.IdentityID)
	}
	is.mu.Lock()
	if is.m[c.IdentityID] == e {
		delete(is.m, c.IdentityID)
	}
	is.mu.Unlock()
	e.dead = true
	return c, true, true
}

func (r *Registry) entryFor(identityID string) *identityEntry {
	is := r.identityShard(identityID)
	is.mu.Lock()
	defer is.mu.Unlock()
	e, ok := is.m[identityID]
	if !ok {
		e = &identityEntry{conns: make(map[string]*Conn)}
		is.m[identityID] = e
	}
	return e
}

// Lookup returns a live connection by id, or nil.
func (r *Registry) Lookup(connID string) *Conn {
	cs := r.connShard(connID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.m[connID]
}

// IdentityOf returns the identity owning connID.
func (r *Registry) IdentityOf(connID string) (string, bool) {
	c := r.Lookup(connID)
	if c == nil {
		return "", false
	}
	return c.IdentityID, true
}

// ConnectionsOf returns the ids of identityID's live connections.
func (r *Registry) ConnectionsOf(identityID string) []string {
	is := r.identityShard(identityID)
	is.mu.Lock()
	e := is.m[identityID]
	is.mu.Unlock()
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.conns))
	for id := range e.conns {
		ids = append(ids, id)
	}
	return ids
}

// Each calls fn for every live connection. fn runs outside registry locks on
// a snapshot, so it may call back into the registry.
func (r *Registry) Each(fn func(*Conn)) {
	var snapshot []*Conn
	for i := range r.conns {
		cs := &r.conns[i]
		cs.mu.RLock()
		for _, c := range cs.m {
			snapshot = append(snapshot, c)
		}
		cs.mu.RUnlock()
	}
	for _, c := range snapshot {
		fn(c)
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	return int(r.total.Load())
}

// OnlineCount returns the number of identities with at least one live connection.
func (r *Registry) OnlineCount() int {
	return int(r.online.Load())
}
