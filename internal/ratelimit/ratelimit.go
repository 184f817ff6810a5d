// Package ratelimit decides whether a new delivery attempt may start now.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"courier/internal/config"
)

// ErrRateLimited marks an attempt deferred by admission control.
var ErrRateLimited = errors.New("rate limit exceeded")

// Admitter admits or rejects attempts. Allow has no side effect on rejection.
type Admitter interface {
	Allow() bool
	// Remaining reports how many admissions are available right now.
	Remaining() int
}

// FixedWindow admits up to limit attempts per window. The counter resets on
// the first call after the window has elapsed, so bursts straddling a
// boundary may reach twice the nominal rate.
type FixedWindow struct {
	mu          sync.Mutex
	clock       clock.Clock
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
}

// NewFixedWindow creates a fixed-window counter starting its first window now.
func NewFixedWindow(limit int, window time.Duration, clk clock.Clock) *FixedWindow {
	if clk == nil {
		clk = clock.New()
	}
	return &FixedWindow{
		clock:       clk,
		limit:       limit,
		window:      window,
		windowStart: clk.Now(),
	}
}

// Allow is the admission check. The reset, comparison and increment happen
// under one lock.
func (l *FixedWindow) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.windowStart) > l.window {
		l.count = 0
		l.windowStart = now
	}
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}

// Remaining returns how many admissions are left in the current window.
func (l *FixedWindow) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clock.Now().Sub(l.windowStart) > l.window {
		return l.limit
	}
	return l.limit - l.count
}

// TokenBucket admits attempts from a bucket of limit tokens refilled evenly
// over window.
type TokenBucket struct {
	clock   clock.Clock
	limiter *rate.Limiter
}

// NewTokenBucket creates a full bucket of limit tokens that refills one token
// every window/limit.
func NewTokenBucket(limit int, window time.Duration, clk clock.Clock) *TokenBucket {
	if clk == nil {
		clk = clock.New()
	}
	every := window / time.Duration(limit)
	return &TokenBucket{
		clock:   clk,
		limiter: rate.NewLimiter(rate.Every(every), limit),
	}
}

// Allow takes one token if available.
func (b *TokenBucket) Allow() bool {
	return b.limiter.AllowN(b.clock.Now(), 1)
}

// Remaining returns the whole tokens currently in the bucket.
func (b *TokenBucket) Remaining() int {
	n := int(b.limiter.TokensAt(b.clock.Now()))
	if n < 0 {
		return 0
	}
	return n
}

// New builds the admitter selected by cfg.Strategy.
func New(cfg config.LimiterConfig, clk clock.Clock) (Admitter, error) {
	if cfg.Limit < 1 || cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: invalid budget %d per %v", cfg.Limit, cfg.Window)
	}
	switch cfg.Strategy {
	case "", config.StrategyFixedWindow:
		return NewFixedWindow(cfg.Limit, cfg.Window, clk), nil
	case config.StrategyTokenBucket:
		return NewTokenBucket(cfg.Limit, cfg.Window, clk), nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown strategy %q", cfg.Strategy)
	}
}
