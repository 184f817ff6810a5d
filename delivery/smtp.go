package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courier/internal/config"
	"courier/internal/dkim"
	"courier/internal/email"
)

// SMTP delivers directly to the recipient domain's MX hosts.
type SMTP struct {
	name     string
	from     string
	hostname string
	signer   *dkim.Signer
	deliver  func(ctx context.Context, host, from, to string, data []byte) error
	now      func() time.Time
}

// NewSMTP returns a provider that dials port cfg.SMTPPort (25 by default) on
// each MX host.
func NewSMTP(cfg config.ProviderConfig, opts Options) *SMTP {
	client := Client{
		Port:        cfg.SMTPPort,
		HelloName:   opts.Hostname,
		DialTimeout: cfg.DialTimeout,
	}
	if client.Port == "" {
		client.Port = "25"
	}
	return &SMTP{
		name:     cfg.Name,
		from:     opts.From,
		hostname: opts.Hostname,
		signer:   opts.Signer,
		deliver:  client.Deliver,
		now:      time.Now,
	}
}

func (s *SMTP) Name() string { return s.name }

// Send composes, signs and relays msg. All failures are returned as *Error.
func (s *SMTP) Send(ctx context.Context, msg email.Message) error {
	to, err := email.Normalize(msg.To)
	if err != nil {
		return &Error{Provider: s.name, Err: err}
	}
	msg.To = to

	raw := email.Compose(s.from, msg, uuid.NewString()+"@"+s.hostname, s.now())
	raw, err = s.signer.Sign(raw, s.from)
	if err != nil {
		return &Error{Provider: s.name, Err: err}
	}

	if err := s.deliverMessage(ctx, to, raw); err != nil {
		return &Error{Provider: s.name, Err: err}
	}
	return nil
}

// deliverMessage tries each mail exchanger for the recipient's domain until
// one accepts the message.
func (s *SMTP) deliverMessage(ctx context.Context, to string, data []byte) error {
	domain, err := recipientDomain(to)
	if err != nil {
		return err
	}
	hosts, err := routes(ctx, domain)
	if err != nil {
		return err
	}
	var lastErr error
	for _, host := range hosts {
		if err := s.deliver(ctx, host, s.from, to, data); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("delivery failed: %w", lastErr)
}
