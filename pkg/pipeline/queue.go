package pipeline

import (
	"sync"

	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Queue is an ordered in-memory event buffer. When a bound is set and the
// queue is full, the oldest events are dropped to make room.
type Queue struct {
	mu      sync.Mutex
	items   []violation.Event
	limit   int
	dropped uint64
}

// NewQueue creates a queue holding at most limit events. limit <= 0 means
// unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

// Push appends events and returns how many older events were dropped
func (q *Queue) Push(events ...violation.Event) int {
	if len(events) == 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, events...)
	if q.limit <= 0 || len(q.items) <= q.limit {
		return 0
	}
	over := len(q.items) - q.limit
	q.items = append(q.items[:0:0], q.items[over:]...)
	q.dropped += uint64(over)
	return over
}

// Drain removes and returns every queued event
func (q *Queue) Drain() []violation.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued events
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of events lost to overflow
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
