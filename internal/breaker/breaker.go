// Package breaker guards a delivery capability with a consecutive-failure
// circuit breaker.
//
// CLOSED passes calls through and trips to OPEN after Threshold consecutive
// failures. OPEN rejects calls with ErrOpen without invoking the capability
// until Timeout has passed since the trip; the next call then runs as the
// single HALF_OPEN trial. A successful trial closes the circuit, a failed one
// reopens it.
package breaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"courier/internal/config"
	"courier/internal/metrics"
)

// ErrOpen is returned when the circuit rejects a call.
var ErrOpen = errors.New("circuit is open")

// Defaults applied to zero settings.
const (
	DefaultThreshold = 5
	DefaultTimeout   = 30 * time.Second
)

// State names follow the breaker's documented states.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name    string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

// New creates a closed breaker.
func New(name string, cfg config.BreakerConfig, log zerolog.Logger) *Breaker {
	threshold := uint32(DefaultThreshold)
	if cfg.Threshold > 0 {
		threshold = uint32(cfg.Threshold)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", string(fromGobreaker(from))).
				Str("to", string(fromGobreaker(to))).
				Msg("circuit breaker state changed")
		},
	})
	return &Breaker{name: name, timeout: timeout, cb: cb}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// Execute runs op unless the circuit is open. A rejected call returns an
// error wrapping ErrOpen and op is not invoked.
func (b *Breaker) Execute(op func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitOpen.Add(1)
		return fmt.Errorf("%w: %s", ErrOpen, b.name)
	}
	return err
}

// State returns the current state, applying an elapsed OPEN timeout.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Snapshot is a point-in-time view for health reporting.
type Snapshot struct {
	Name                string `json:"name"`
	State               State  `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`
	Cooldown            string `json:"cooldown"`
}

// Snapshot reads the current state and failure streak. gobreaker clears its
// counts on every transition, so an OPEN breaker reports zero failures.
func (b *Breaker) Snapshot() Snapshot {
	counts := b.cb.Counts()
	return Snapshot{
		Name:                b.name,
		State:               b.State(),
		ConsecutiveFailures: counts.ConsecutiveFailures,
		Cooldown:            b.timeout.String(),
	}
}
