package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

const defaultSessionTimeout = 2 * time.Minute

// Client speaks SMTP to a single mail exchanger per call.
type Client struct {
	Port           string
	HelloName      string
	DialTimeout    time.Duration
	SessionTimeout time.Duration
}

// Deliver hands data to host for one recipient. STARTTLS is used whenever the
// server offers it. Cancelling ctx aborts the session.
func (c Client) Deliver(ctx context.Context, host, from, to string, data []byte) error {
	dialer := &net.Dialer{Timeout: c.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, c.Port))
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.SetDeadline(c.deadline()); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if err := c.session(conn, host, from, to, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c Client) session(conn net.Conn, host, from, to string, data []byte) error {
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	defer client.Close()

	if err := client.Hello(c.HelloName); err != nil {
		return fmt.Errorf("ehlo: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	return transact(client, from, to, data)
}

func (c Client) deadline() time.Time {
	if c.SessionTimeout > 0 {
		return time.Now().Add(c.SessionTimeout)
	}
	return time.Now().Add(defaultSessionTimeout)
}

// transact runs one mail transaction and ends the session.
func transact(client *smtp.Client, from, to string, data []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("data write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}
	return client.Quit()
}
