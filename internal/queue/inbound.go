package queue

import (
	"fmt"
	"sync"
)

// Inbound is the bounded FIFO of submitted Messages (§3, §4.5). It evicts
// the oldest entry on overflow rather than rejecting the newest. Eviction
// only ends the queue's retention of a message: the Lifecycle Scheduler
// keeps its own reference, so an evicted message still reaches its terminal
// state and its receipt is still sent.
type Inbound struct {
	mu       sync.Mutex
	items    []*Message
	byID     map[string]*Message
	capacity int

	submittedTotal uint64
	evictedTotal   uint64
}

// NewInbound creates a queue bounded at capacity (default 10000 per §4.5
// if capacity <= 0).
func NewInbound(capacity int) *Inbound {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Inbound{
		items:    make([]*Message, 0, capacity),
		byID:     make(map[string]*Message, capacity),
		capacity: capacity,
	}
}

// Push enqueues msg, evicting the oldest entry if the queue is already at
// capacity. Returns the evicted message, if any.
func (q *Inbound) Push(msg *Message) (evicted *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.submittedTotal++
	if len(q.items) >= q.capacity {
		evicted = q.items[0]
		q.items = q.items[1:]
		delete(q.byID, evicted.MessageID)
		q.evictedTotal++
	}
	q.items = append(q.items, msg)
	q.byID[msg.MessageID] = msg
	return evicted
}

// Get looks up a retained message by id.
func (q *Inbound) Get(id string) (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.byID[id]
	return m, ok
}

// Snapshot returns a shallow copy of the currently retained messages,
// oldest first.
func (q *Inbound) Snapshot() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, len(q.items))
	copy(out, q.items)
	return out
}

// Len reports how many messages are currently retained.
func (q *Inbound) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Counts returns the lifetime submitted and evicted totals (§8 invariant 7).
func (q *Inbound) Counts() (submitted, evicted uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submittedTotal, q.evictedTotal
}

// UpdateCapacity changes the queue's retention bound at runtime, as
// addressed by the observability API's `queue.capacity` tunable (§4.9).
// If the queue is already holding more than n messages, the oldest are
// evicted immediately to bring it back under the new bound.
func (q *Inbound) UpdateCapacity(n int) error {
	if n <= 0 {
		return fmt.Errorf("queue.capacity must be positive, got %d", n)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capacity = n
	for len(q.items) > q.capacity {
		evicted := q.items[0]
		q.items = q.items[1:]
		delete(q.byID, evicted.MessageID)
		q.evictedTotal++
	}
	return nil
}
