// Package delivery implements the delivery capabilities the service sends
// through: an SMTP provider that talks to recipient MX hosts and a simulated
// provider with configurable latency and failure rate.
package delivery

import (
	"context"
	"fmt"

	"courier/internal/config"
	"courier/internal/dkim"
	"courier/internal/email"
)

// Sender is one delivery capability. Any returned error is a delivery failure.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg email.Message) error
}

// Error is a delivery failure attributed to a provider.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed to send email: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options carries settings shared by all providers.
type Options struct {
	From     string
	Hostname string
	Signer   *dkim.Signer
}

// New builds the provider described by cfg.
func New(cfg config.ProviderConfig, opts Options) (Sender, error) {
	switch cfg.Kind {
	case config.KindSimulated:
		return NewSimulated(cfg.Name, cfg.FailureRate, cfg.Latency), nil
	case config.KindSMTP:
		return NewSMTP(cfg, opts), nil
	default:
		return nil, fmt.Errorf("delivery: unknown provider kind %q", cfg.Kind)
	}
}
