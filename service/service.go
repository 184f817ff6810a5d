// Package service is the delivery facade: admission, deferral, retry
// orchestration and status lookup composed behind Submit, Status and Drain.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"courier/internal/attempt"
	"courier/internal/audit"
	"courier/internal/breaker"
	"courier/internal/config"
	"courier/internal/email"
	"courier/internal/logging"
	"courier/internal/metrics"
	"courier/internal/ratelimit"
	"courier/internal/retry"
	"courier/queue"
	"courier/storage"
)

// QueuedMessage is returned when admission control defers a submission.
const QueuedMessage = "Rate limit exceeded. Email queued."

const sharedBreakerName = "shared"

// Result is the outcome of Submit.
type Result struct {
	Admitted bool   `json:"-"`
	Success  bool   `json:"success"`
	ID       string `json:"id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Options wires a Service.
type Options struct {
	Admitter ratelimit.Admitter
	Primary  retry.Sender
	Fallback retry.Sender
	Breaker  config.BreakerConfig
	Retry    config.RetryConfig
	// Journal receives every terminal attempt; nil disables it.
	Journal *storage.Journal
	Clock   clock.Clock
	Log     zerolog.Logger
}

// Service is built once at startup and shared by all transports.
type Service struct {
	admitter ratelimit.Admitter
	queue    *queue.Deferred
	registry *attempt.Registry
	orch     *retry.Orchestrator
	breakers []*breaker.Breaker
	journal  *storage.Journal
	clock    clock.Clock
	log      zerolog.Logger

	drainMu sync.Mutex
}

// New validates opts and assembles the service.
func New(opts Options) (*Service, error) {
	if opts.Admitter == nil {
		return nil, errors.New("service: admitter is required")
	}
	if opts.Primary == nil || opts.Fallback == nil {
		return nil, errors.New("service: primary and fallback senders are required")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := logging.Component(opts.Log, "service")

	var primary, fallback *retry.Guarded
	var breakers []*breaker.Breaker
	if opts.Breaker.Shared {
		b := breaker.New(sharedBreakerName, opts.Breaker, log)
		primary = retry.Guard(opts.Primary, b)
		fallback = retry.Guard(opts.Fallback, b)
		breakers = []*breaker.Breaker{b}
	} else {
		pb := breaker.New(opts.Primary.Name(), opts.Breaker, log)
		fb := breaker.New(opts.Fallback.Name(), opts.Breaker, log)
		primary = retry.Guard(opts.Primary, pb)
		fallback = retry.Guard(opts.Fallback, fb)
		breakers = []*breaker.Breaker{pb, fb}
	}

	policy := retry.Policy{MaxRetries: opts.Retry.MaxRetries, InitialBackoff: opts.Retry.InitialBackoff}
	return &Service{
		admitter: opts.Admitter,
		queue:    queue.NewDeferred(logging.Component(opts.Log, "queue")),
		registry: attempt.NewRegistry(),
		orch:     retry.New(primary, fallback, policy, clk, logging.Component(opts.Log, "retry")),
		breakers: breakers,
		journal:  opts.Journal,
		clock:    clk,
		log:      log,
	}, nil
}

// Submit admits and delivers a message, or defers it when the rate budget is
// spent. Delivery runs to completion even if ctx is cancelled; the returned
// id is always queryable through Status.
func (s *Service) Submit(ctx context.Context, to, subject, body string) Result {
	metrics.Submitted.Add(1)
	a := attempt.New(email.Message{To: to, Subject: subject, Body: body}, s.clock.Now())
	s.registry.Put(a)

	if !s.admitter.Allow() {
		metrics.RateLimited.Add(1)
		a.RecordError(ratelimit.ErrRateLimited)
		s.queue.Enqueue(a)
		audit.Log("queued", a.ID(), map[string]any{"to": to})
		return Result{ID: a.ID(), Message: QueuedMessage}
	}

	metrics.Admitted.Add(1)
	audit.Log("admitted", a.ID(), map[string]any{"to": to})
	ok := s.orch.Deliver(context.WithoutCancel(ctx), a)
	s.finish(a)
	return Result{Admitted: true, Success: ok, ID: a.ID()}
}

// Status returns a snapshot of the attempt with the given id.
func (s *Service) Status(id string) (attempt.Snapshot, bool) {
	return s.registry.Get(id)
}

// Drain replays queued attempts in FIFO order without admission control and
// returns how many were processed. Only one drain runs at a time. A cancelled
// ctx stops the drain between attempts; the attempt in progress completes.
func (s *Service) Drain(ctx context.Context) int {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()
	metrics.IncDrains()
	defer metrics.DecDrains()

	processed, delivered := 0, 0
	for ctx.Err() == nil {
		a, ok := s.queue.Dequeue()
		if !ok {
			break
		}
		if s.orch.Deliver(context.WithoutCancel(ctx), a) {
			delivered++
		}
		s.finish(a)
		processed++
	}
	if processed > 0 {
		s.log.Info().Int("processed", processed).Int("delivered", delivered).
			Int("remaining", s.queue.Depth()).Msg("queue drained")
	}
	return processed
}

// AdmissionRemaining returns how many submissions would be admitted now.
func (s *Service) AdmissionRemaining() int { return s.admitter.Remaining() }

// Tracked returns the number of attempts known to Status.
func (s *Service) Tracked() int { return s.registry.Len() }

// QueueDepth returns the number of deferred attempts.
func (s *Service) QueueDepth() int { return s.queue.Depth() }

// Breakers reports the state of every circuit breaker.
func (s *Service) Breakers() []breaker.Snapshot {
	out := make([]breaker.Snapshot, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

func (s *Service) finish(a *attempt.Attempt) {
	if err := s.journal.Record(a.Snapshot()); err != nil {
		s.log.Error().Err(err).Str("attempt", a.ID()).Msg("journal write failed")
	}
}
