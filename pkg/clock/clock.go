// Package clock provides the Lamport logical clock each sensor node uses to
// order its local events.
package clock

import "sync"

// DefaultHistorySize is the number of events kept by a clock's history ring.
const DefaultHistorySize = 1024

// EventKind distinguishes a local tick from a merge with a peer timestamp.
type EventKind string

const (
	// EventLocal is recorded by Tick.
	EventLocal EventKind = "local"
	// EventReceived is recorded by Merge.
	EventReceived EventKind = "received"
)

// Event is one entry of the clock history.
type Event struct {
	Kind     EventKind `json:"kind"`
	Time     uint64    `json:"time"`
	Received uint64    `json:"received,omitempty"` // peer time, only for EventReceived
}

// LamportClock is a monotonically advancing causal counter.
//
// Concurrent Safety:
// All methods are safe for concurrent use. Tick and Merge are serialized by
// a mutex so the value never goes backwards.
type LamportClock struct {
	mu      sync.Mutex
	time    uint64
	history []Event
	next    int // write position in history once it is full
	limit   int
}

// New creates a clock starting at zero with the default history size.
func New() *LamportClock {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory creates a clock keeping at most limit events.
// A limit <= 0 disables the history.
func NewWithHistory(limit int) *LamportClock {
	if limit < 0 {
		limit = 0
	}
	return &LamportClock{
		history: make([]Event, 0, min(limit, 64)),
		limit:   limit,
	}
}

// Tick increments the counter by one and returns the new value.
func (c *LamportClock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.time++
	c.record(Event{Kind: EventLocal, Time: c.time})
	return c.time
}

// Merge applies Lamport's receive rule: time = max(time, received) + 1.
func (c *LamportClock) Merge(received uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.time = max(c.time, received) + 1
	c.record(Event{Kind: EventReceived, Time: c.time, Received: received})
	return c.time
}

// Time returns the current value without advancing it.
func (c *LamportClock) Time() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// Events returns a copy of the retained history, oldest first.
func (c *LamportClock) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, 0, len(c.history))
	if len(c.history) < c.limit {
		return append(out, c.history...)
	}
	out = append(out, c.history[c.next:]...)
	return append(out, c.history[:c.next]...)
}

// ClearEvents drops the history. The counter itself is never reset.
func (c *LamportClock) ClearEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = c.history[:0]
	c.next = 0
}

// record must be called with c.mu held.
func (c *LamportClock) record(ev Event) {
	if c.limit == 0 {
		return
	}
	if len(c.history) < c.limit {
		c.history = append(c.history, ev)
		return
	}
	c.history[c.next] = ev
	c.next = (c.next + 1) % c.limit
}
