package delivery

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"courier/internal/email"
)

// ErrSimulated is the cause of every simulated failure.
var ErrSimulated = errors.New("simulated delivery failure")

// Simulated stands in for a network provider: each send waits for the
// configured latency and then fails with probability failureRate.
type Simulated struct {
	name        string
	latency     time.Duration
	failureRate float64

	mu    sync.Mutex
	sent  int
	calls int
}

// NewSimulated returns a provider failing with probability failureRate
// (0 never fails, 1 always fails).
func NewSimulated(name string, failureRate float64, latency time.Duration) *Simulated {
	return &Simulated{name: name, failureRate: failureRate, latency: latency}
}

func (s *Simulated) Name() string { return s.name }

// stats returns how many sends were attempted and how many succeeded.
func (s *Simulated) stats() (calls, sent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.sent
}

// Send waits out the latency and then succeeds or fails at random.
func (s *Simulated) Send(ctx context.Context, msg email.Message) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return &Error{Provider: s.name, Err: ctx.Err()}
		}
	}

	if rand.Float64() < s.failureRate {
		return &Error{Provider: s.name, Err: ErrSimulated}
	}
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}
