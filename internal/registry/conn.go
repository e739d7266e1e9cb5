package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/parley/internal/chat"
)

// Conn is one live transport session. Events queued with Deliver are
// drained in order by the transport's writer.
type Conn struct {
	ID         string
	IdentityID string
	CreatedAt  time.Time

	out       chan chat.Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewConn creates a connection handle for identityID with an outbound queue
// of bufSize events.
func NewConn(identityID string, bufSize int) *Conn {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &Conn{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		CreatedAt:  time.Now(),
		out:        make(chan chat.Event, bufSize),
		done:       make(chan struct{}),
	}
}

// Deliver queues evt without blocking. It returns false when the connection
// is closed or its queue is full.
func (c *Conn) Deliver(evt chat.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- evt:
		return true
	case <-c.done:
		return false
	default:
		c.dropped.Add(1)
		return false
	}
}

// Events returns the outbound queue.
func (c *Conn) Events() <-chan chat.Event {
	return c.out
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close stops further deliveries. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Dropped returns the number of events discarded because the queue was full.
func (c *Conn) Dropped() uint64 {
	return c.dropped.Load()
}
