package live

import (
	"sync"
	"time"
)

// EventType names a change to a session.
type EventType string

const (
	EventItemDetected      EventType = "item.detected"
	EventItemEnhanced      EventType = "item.enhanced"
	EventItemEnhanceFailed EventType = "item.enhance_failed"
	EventItemUpdated       EventType = "item.updated"
	EventItemRemoved       EventType = "item.removed"
	EventItemRestored      EventType = "item.restored"
	EventSessionReset      EventType = "session.reset"
)

// Event describes one change. Item is a snapshot taken when the change was made.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Item      *Item     `json:"item,omitempty"`

	// Previous is the item before an update. Set for updated and enhanced events.
	Previous *Item `json:"-"`

	// Index is the item's position before removal, or its restored position.
	Index int `json:"index,omitempty"`

	// Rollback marks changes made to undo a failed persistence write.
	Rollback bool `json:"rollback,omitempty"`

	At time.Time `json:"at"`
}

// Listener receives session events in mutation order, outside the session lock.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// HandleEvent calls f(ev).
func (f ListenerFunc) HandleEvent(ev Event) {
	f(ev)
}

// outbox is an unbounded FIFO drained by a single consumer goroutine.
// push never blocks, so producers may hold their own locks while pushing.
type outbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
	closed bool
	done   chan struct{}
}

func newOutbox[T any]() *outbox[T] {
	return &outbox[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (o *outbox[T]) push(v T) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.items = append(o.items, v)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// run delivers items to fn until close is called and the queue is empty.
func (o *outbox[T]) run(fn func(T)) {
	defer close(o.done)
	for {
		o.mu.Lock()
		batch := o.items
		o.items = nil
		closed := o.closed
		o.mu.Unlock()

		for _, v := range batch {
			fn(v)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-o.notify
	}
}

// close stops accepting items; run returns once the backlog is delivered.
func (o *outbox[T]) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// wait blocks until run has returned.
func (o *outbox[T]) wait() {
	<-o.done
}
