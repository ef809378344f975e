// Package rxqueue implements the node's bounded RX queue per spec.md §4.12:
// a 15-deep queue fed by the UDP receive task and drained by the play task.
// Overflow drops the *oldest* queued frame and counts it, rather than
// rejecting the new one — a satellite node favors freshness over
// completeness, the same bias the teacher's client/internal/jitter ring
// buffer takes (old, stale entries are the ones discarded).
package rxqueue

import "sync"

const Depth = 15

// Queue is a fixed-capacity FIFO of opaque payloads (already-parsed frames
// from the node's RX task). Safe for concurrent Push/Pop.
type Queue struct {
	mu    sync.Mutex
	items []any
	drops uint64
}

// New constructs an empty queue.
func New() *Queue {
	return &Queue{items: make([]any, 0, Depth)}
}

// Push enqueues v. If the queue is already at capacity, the oldest entry is
// dropped (not v) and the drop counter increments, per spec.md §4.12.
func (q *Queue) Push(v any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= Depth {
		q.items = q.items[1:]
		q.drops++
	}
	q.items = append(q.items, v)
}

// Pop removes and returns the oldest entry, or ok=false if empty.
func (q *Queue) Pop() (v any, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	v = q.items[0]
	q.items = q.items[1:]
	return v, true
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drops reports the cumulative number of oldest-frame drops due to overflow.
func (q *Queue) Drops() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}
