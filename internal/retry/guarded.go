package retry

import (
	"context"

	"courier/internal/breaker"
	"courier/internal/email"
)

// Sender is the capability contract the orchestrator drives.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg email.Message) error
}

// Guarded routes every call to a sender through its circuit breaker.
type Guarded struct {
	sender  Sender
	breaker *breaker.Breaker
}

// Guard pairs s with b. Several senders may share one breaker.
func Guard(s Sender, b *breaker.Breaker) *Guarded {
	return &Guarded{sender: s, breaker: b}
}

func (g *Guarded) Name() string              { return g.sender.Name() }
func (g *Guarded) Breaker() *breaker.Breaker { return g.breaker }

// Send invokes the sender unless the circuit is open. A rejection returns an
// error wrapping breaker.ErrOpen.
func (g *Guarded) Send(ctx context.Context, msg email.Message) error {
	return g.breaker.Execute(func() error {
		return g.sender.Send(ctx, msg)
	})
}
