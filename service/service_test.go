package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/delivery"
	"courier/internal/attempt"
	"courier/internal/breaker"
	"courier/internal/config"
	"courier/internal/email"
	"courier/internal/ratelimit"
	"courier/storage"
)

// recordingSender fails while fail is set and records recipients in call order.
type recordingSender struct {
	name string

	mu   sync.Mutex
	fail bool
	to   []string
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) Send(_ context.Context, msg email.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, msg.To)
	if r.fail {
		return &delivery.Error{Provider: r.name, Err: errors.New("unavailable")}
	}
	return nil
}

func (r *recordingSender) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.to...)
}

type fixture struct {
	svc      *Service
	clock    *clock.Mock
	primary  *recordingSender
	fallback *recordingSender
}

func newFixture(t *testing.T, limit int, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		clock:    clock.NewMock(),
		primary:  &recordingSender{name: "Primary"},
		fallback: &recordingSender{name: "Fallback"},
	}
	opts := Options{
		Admitter: ratelimit.NewFixedWindow(limit, time.Minute, f.clock),
		Primary:  f.primary,
		Fallback: f.fallback,
		Breaker:  config.BreakerConfig{Threshold: 5, Timeout: 30 * time.Second},
		Retry:    config.RetryConfig{MaxRetries: 3, InitialBackoff: 0},
		Clock:    f.clock,
		Log:      zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	svc, err := New(opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Admitter: ratelimit.NewFixedWindow(1, time.Minute, nil)})
	assert.Error(t, err)
}

func TestSubmitDeliversFirstTry(t *testing.T) {
	f := newFixture(t, 10, nil)

	res := f.svc.Submit(context.Background(), "a@example.com", "Hi", "Hello")
	require.True(t, res.Admitted)
	require.True(t, res.Success)
	require.NotEmpty(t, res.ID)
	assert.Empty(t, res.Message)

	snap, ok := f.svc.Status(res.ID)
	require.True(t, ok)
	assert.Equal(t, attempt.StatusSuccess, snap.Status)
	assert.Equal(t, 1, snap.Attempts)
	assert.Equal(t, "Primary", snap.DeliveredBy)
	assert.Equal(t, "a@example.com", snap.To)
}

func TestSubmitRateLimited(t *testing.T) {
	f := newFixture(t, 2, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.True(t, f.svc.Submit(ctx, "a@example.com", "s", "b").Admitted)
	}
	res := f.svc.Submit(ctx, "b@example.com", "s", "b")
	assert.False(t, res.Admitted)
	assert.False(t, res.Success)
	assert.Equal(t, QueuedMessage, res.Message)
	assert.Equal(t, 1, f.svc.QueueDepth())
	assert.Equal(t, 0, f.svc.AdmissionRemaining())
	assert.Equal(t, 3, f.svc.Tracked())

	snap, ok := f.svc.Status(res.ID)
	require.True(t, ok, "queued attempts are queryable")
	assert.Equal(t, attempt.StatusPending, snap.Status)
	assert.Zero(t, snap.Attempts)
	assert.Contains(t, snap.LastError, ratelimit.ErrRateLimited.Error())
	assert.Len(t, f.primary.calls(), 2)
}

func TestSubmitAdmittedAfterWindowResets(t *testing.T) {
	f := newFixture(t, 1, nil)
	ctx := context.Background()

	require.True(t, f.svc.Submit(ctx, "a@example.com", "s", "b").Admitted)
	require.False(t, f.svc.Submit(ctx, "a@example.com", "s", "b").Admitted)

	f.clock.Add(time.Minute + time.Millisecond)
	assert.True(t, f.svc.Submit(ctx, "a@example.com", "s", "b").Admitted)
}

func TestSubmitFallsBackOnce(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.primary.fail = true

	res := f.svc.Submit(context.Background(), "a@example.com", "s", "b")
	require.True(t, res.Success)
	assert.Len(t, f.primary.calls(), 3)
	assert.Len(t, f.fallback.calls(), 1)

	snap, _ := f.svc.Status(res.ID)
	assert.Equal(t, "Fallback", snap.DeliveredBy)
}

func TestSubmitBothFail(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.primary.fail = true
	f.fallback.fail = true

	res := f.svc.Submit(context.Background(), "a@example.com", "s", "b")
	assert.True(t, res.Admitted)
	assert.False(t, res.Success)

	snap, ok := f.svc.Status(res.ID)
	require.True(t, ok)
	assert.Equal(t, attempt.StatusFailed, snap.Status)
	assert.Equal(t, 3, snap.Attempts)
}

func TestSubmitIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, 10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.svc.Submit(ctx, "a@example.com", "s", "b")
	assert.True(t, res.Success)
}

func TestStatusUnknown(t *testing.T) {
	f := newFixture(t, 10, nil)
	_, ok := f.svc.Status("missing")
	assert.False(t, ok)
}

func TestDrainFIFOWithoutAdmission(t *testing.T) {
	f := newFixture(t, 1, nil)
	ctx := context.Background()

	require.True(t, f.svc.Submit(ctx, "first@example.com", "s", "b").Admitted)
	var queued []string
	for _, to := range []string{"q1@example.com", "q2@example.com", "q3@example.com"} {
		res := f.svc.Submit(ctx, to, "s", "b")
		require.False(t, res.Admitted)
		queued = append(queued, res.ID)
	}

	n := f.svc.Drain(ctx)
	assert.Equal(t, 3, n)
	assert.True(t, f.svc.queue.IsEmpty())
	assert.Equal(t,
		[]string{"first@example.com", "q1@example.com", "q2@example.com", "q3@example.com"},
		f.primary.calls())

	for _, id := range queued {
		snap, ok := f.svc.Status(id)
		require.True(t, ok)
		assert.Equal(t, attempt.StatusSuccess, snap.Status)
		assert.Equal(t, 1, snap.Attempts)
	}
	assert.Zero(t, f.svc.Drain(ctx))
}

func TestDrainAppliesRetryPolicy(t *testing.T) {
	f := newFixture(t, 1, nil)
	ctx := context.Background()
	require.True(t, f.svc.Submit(ctx, "a@example.com", "s", "b").Admitted)
	res := f.svc.Submit(ctx, "b@example.com", "s", "b")
	require.False(t, res.Admitted)

	f.primary.fail = true
	require.Equal(t, 1, f.svc.Drain(ctx))

	snap, _ := f.svc.Status(res.ID)
	assert.Equal(t, attempt.StatusSuccess, snap.Status)
	assert.Equal(t, 3, snap.Attempts)
	assert.Equal(t, "Fallback", snap.DeliveredBy)
	assert.Len(t, f.fallback.calls(), 1)
}

func TestDrainStopsWhenCancelled(t *testing.T) {
	f := newFixture(t, 1, nil)
	bg := context.Background()
	f.svc.Submit(bg, "a@example.com", "s", "b")
	f.svc.Submit(bg, "b@example.com", "s", "b")

	ctx, cancel := context.WithCancel(bg)
	cancel()
	assert.Zero(t, f.svc.Drain(ctx))
	assert.Equal(t, 1, f.svc.QueueDepth())
}

func TestBreakersPerCapability(t *testing.T) {
	f := newFixture(t, 10, func(o *Options) {
		o.Breaker = config.BreakerConfig{Threshold: 1, Timeout: time.Hour}
	})
	f.primary.fail = true

	res := f.svc.Submit(context.Background(), "a@example.com", "s", "b")
	assert.True(t, res.Success)
	assert.Len(t, f.primary.calls(), 1, "open breaker short-circuits later tries")

	snaps := f.svc.Breakers()
	require.Len(t, snaps, 2)
	assert.Equal(t, "Primary", snaps[0].Name)
	assert.Equal(t, breaker.StateOpen, snaps[0].State)
	assert.Equal(t, "Fallback", snaps[1].Name)
	assert.Equal(t, breaker.StateClosed, snaps[1].State)
}

func TestBreakerShared(t *testing.T) {
	f := newFixture(t, 10, func(o *Options) {
		o.Breaker = config.BreakerConfig{Threshold: 1, Timeout: time.Hour, Shared: true}
	})
	f.primary.fail = true

	res := f.svc.Submit(context.Background(), "a@example.com", "s", "b")
	assert.False(t, res.Success)
	assert.Empty(t, f.fallback.calls(), "shared breaker blocks the fallback")

	snaps := f.svc.Breakers()
	require.Len(t, snaps, 1)
	assert.Equal(t, breaker.StateOpen, snaps[0].State)
}

func TestTerminalAttemptsJournaled(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, 1, func(o *Options) { o.Journal = storage.NewJournal(dir) })
	ctx := context.Background()

	f.svc.Submit(ctx, "a@example.com", "s", "b")
	f.svc.Submit(ctx, "b@example.com", "s", "b")
	f.svc.Drain(ctx)

	days, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, days, 1)
	data, err := os.ReadFile(filepath.Join(dir, days[0].Name(), "outcomes.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestConcurrentSubmitAndStatus(t *testing.T) {
	f := newFixture(t, 1000, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.svc.Submit(ctx, "a@example.com", "s", "b")
			ids <- res.ID
			f.svc.Status(res.ID)
		}()
	}
	wg.Wait()
	close(ids)

	for id := range ids {
		snap, ok := f.svc.Status(id)
		require.True(t, ok)
		assert.Equal(t, attempt.StatusSuccess, snap.Status)
	}
}
