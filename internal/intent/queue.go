// Package intent buffers trading intents produced before market open so
// they can be drained atomically in one batch at the bell.
package intent

import (
	"sync"

	"main/internal/model"
)

// PreopenQueue is a lock-protected FIFO buffer. Enqueue, Drain and Count
// share one mutex: no intent can land in two Drain batches, and an
// intent enqueued during a drain lands in either the current batch or the
// next one, never both, never neither.
type PreopenQueue struct {
	mu      sync.Mutex
	pending []model.Intent
}

// NewPreopenQueue allocates an empty queue.
func NewPreopenQueue() *PreopenQueue {
	return &PreopenQueue{}
}

// Enqueue appends one intent.
func (q *PreopenQueue) Enqueue(it model.Intent) {
	q.mu.Lock()
	q.pending = append(q.pending, it)
	q.mu.Unlock()
}

// Drain returns the entire current contents and empties the queue in one
// locked step.
func (q *PreopenQueue) Drain() []model.Intent {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	return batch
}

// Count returns the current depth.
func (q *PreopenQueue) Count() int {
	q.mu.Lock()
	n := len(q.pending)
	q.mu.Unlock()
	return n
}
