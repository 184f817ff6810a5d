// Package retry drives a delivery attempt through bounded retries against
// the primary capability, with a single fallback try on the final retry and
// exponential backoff between tries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"courier/internal/attempt"
	"courier/internal/audit"
	"courier/internal/breaker"
	"courier/internal/metrics"
)

// ErrExhausted is recorded on attempts that used up their retry budget.
var ErrExhausted = errors.New("retries exhausted")

// Defaults match the documented policy.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = time.Second
)

// Backoff returns the wait after the n-th try: initial * 2^(n-1).
func Backoff(initial time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return initial << (n - 1)
}

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 1 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	return p
}

// Orchestrator runs attempts. One Orchestrator serves many attempts
// concurrently; each attempt's own loop is strictly sequential.
type Orchestrator struct {
	primary  *Guarded
	fallback *Guarded
	policy   Policy
	clock    clock.Clock
	log      zerolog.Logger

	// wait blocks for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator over the guarded capabilities.
func New(primary, fallback *Guarded, policy Policy, clk clock.Clock, log zerolog.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.New()
	}
	o := &Orchestrator{
		primary:  primary,
		fallback: fallback,
		policy:   policy.withDefaults(),
		clock:    clk,
		log:      log,
	}
	o.wait = o.sleep
	return o
}

// Policy returns the effective retry policy.
func (o *Orchestrator) Policy() Policy { return o.policy }

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := o.clock.Timer(d)
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

type phase int

const (
	phaseAttempting phase = iota
	phaseFallback
	phaseRetrying
	phaseSucceeded
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseAttempting:
		return "attempting"
	case phaseFallback:
		return "fallback"
	case phaseRetrying:
		return "retrying"
	case phaseSucceeded:
		return "succeeded"
	case phaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Deliver runs a to a terminal status and reports success. Capability and
// circuit errors are absorbed into the attempt; they are never returned.
// Cancelling ctx only interrupts backoff waits and capability calls, and the
// attempt is then marked failed.
func (o *Orchestrator) Deliver(ctx context.Context, a *attempt.Attempt) bool {
	var (
		ph        = phaseAttempting
		lastErr   error
		delivered string
	)
	log := o.log.With().Str("attempt", a.ID()).Logger()

	for {
		switch ph {
		case phaseAttempting:
			if a.Count() >= o.policy.MaxRetries {
				ph = phaseFailed
				continue
			}
			n := a.Begin(o.clock.Now())
			metrics.Attempts.Add(1)
			err := o.primary.Send(ctx, a.Message())
			if err == nil {
				delivered = o.primary.Name()
				ph = phaseSucceeded
				continue
			}
			lastErr = err
			a.RecordError(err)
			log.Error().Err(err).Int("try", n).Str("provider", o.primary.Name()).
				Bool("circuit_open", errors.Is(err, breaker.ErrOpen)).
				Msgf("Attempt %d failed", n)
			if n >= o.policy.MaxRetries {
				ph = phaseFallback
			} else {
				ph = phaseRetrying
			}

		case phaseFallback:
			metrics.Fallbacks.Add(1)
			audit.Log("fallback", a.ID(), map[string]any{"provider": o.fallback.Name()})
			err := o.fallback.Send(ctx, a.Message())
			if err == nil {
				delivered = o.fallback.Name()
				ph = phaseSucceeded
				continue
			}
			lastErr = err
			a.RecordError(err)
			log.Error().Err(err).Str("provider", o.fallback.Name()).Msg("Fallback provider failed")
			ph = phaseRetrying

		case phaseRetrying:
			d := Backoff(o.policy.InitialBackoff, a.Count())
			log.Debug().Dur("backoff", d).Int("try", a.Count()).Msg("waiting before next try")
			if err := o.wait(ctx, d); err != nil {
				lastErr = err
				ph = phaseFailed
				continue
			}
			ph = phaseAttempting

		case phaseSucceeded:
			a.Succeed(delivered)
			metrics.Succeeded.Add(1)
			audit.Log(ph.String(), a.ID(), map[string]any{"provider": delivered, "tries": a.Count()})
			log.Info().Str("provider", delivered).Int("tries", a.Count()).Msg("email delivered")
			return true

		case phaseFailed:
			err := ErrExhausted
			if lastErr != nil {
				err = fmt.Errorf("%w: %w", ErrExhausted, lastErr)
			}
			a.Fail(err)
			metrics.Failed.Add(1)
			audit.Log(ph.String(), a.ID(), map[string]any{"tries": a.Count()})
			log.Warn().Err(err).Int("tries", a.Count()).Msg("email delivery failed")
			return false
		}
	}
}
