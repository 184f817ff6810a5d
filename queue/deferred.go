package queue

import (
	"sync"

	"github.com/rs/zerolog"

	"courier/internal/attempt"
	"courier/internal/metrics"
)

// Deferred holds attempts rejected by admission control until they are
// replayed. It is a strict FIFO with no capacity bound and no duplicate
// detection. While queued the attempt is owned by the queue.
type Deferred struct {
	mu    sync.Mutex
	items []*attempt.Attempt
	log   zerolog.Logger
}

// NewDeferred creates an empty queue.
func NewDeferred(log zerolog.Logger) *Deferred {
	return &Deferred{
		items: make([]*attempt.Attempt, 0),
		log:   log,
	}
}

// Enqueue appends a to the tail.
func (q *Deferred) Enqueue(a *attempt.Attempt) {
	q.mu.Lock()
	q.items = append(q.items, a)
	depth := len(q.items)
	q.mu.Unlock()

	metrics.SetQueueDepth(depth)
	q.log.Info().Str("attempt", a.ID()).Str("to", a.Message().To).Int("depth", depth).Msg("queued attempt")
}

// Dequeue removes and returns the oldest attempt.
func (q *Deferred) Dequeue() (*attempt.Attempt, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	a := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = make([]*attempt.Attempt, 0)
	}
	depth := len(q.items)
	q.mu.Unlock()

	metrics.SetQueueDepth(depth)
	return a, true
}

// IsEmpty reports whether nothing is queued.
func (q *Deferred) IsEmpty() bool {
	return q.Depth() == 0
}

// Depth returns the number of queued attempts.
func (q *Deferred) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
