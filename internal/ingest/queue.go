// Package ingest implements the synchronous-to-asynchronous bridge between
// the protocol library's callbacks and the storage pipeline: the ingress
// handlers, the FIFO hand-off queue, and the single-consumer dispatcher with
// drain-on-shutdown semantics.
package ingest

import (
	"errors"
	"sync"
	"time"

	"meshbase/pkg/meshrecord"
)

// Kind labels which ingress callback a queued packet arrived through.
type Kind string

const (
	KindText      Kind = "text"
	KindNode      Kind = "node"
	KindTelemetry Kind = "telemetry"
)

// Item is one enqueued packet awaiting dispatch. ID is a per-packet trace id
// correlating ingress and dispatch log lines; it is never persisted.
type Item struct {
	ID         string
	Kind       Kind
	Packet     meshrecord.RawPacket
	EnqueuedAt time.Time
}

// ErrQueueFull is returned by Enqueue when a bounded queue is at capacity.
var ErrQueueFull = errors.New("ingest queue full")

// Queue is the FIFO hand-off between the ingress callbacks and the
// dispatcher. Enqueue never blocks, making it safe to call from whatever
// thread the protocol library dispatches on. With limit 0 the queue is
// unbounded; with a positive limit, enqueueing at capacity fails with
// ErrQueueFull.
type Queue struct {
	mu    sync.Mutex
	items []Item
	limit int

	// ready is signalled (capacity 1, coalescing) whenever an item is
	// enqueued, waking a consumer selecting on Ready.
	ready chan struct{}
}

// NewQueue creates a queue. limit 0 means unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends an item without blocking.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	if q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// TryDequeue removes and returns the oldest item without blocking.
func (q *Queue) TryDequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Ready returns the channel signalled on enqueue. Consumers that multiplex
// over several wake-up sources select on it and then call TryDequeue.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
