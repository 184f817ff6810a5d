// Package tlsconfig builds the server TLS configuration for the HTTP API.
package tlsconfig

import (
	"crypto/tls"
	"errors"
	"fmt"

	"courier/internal/config"
)

// ErrTLSDisabled is returned when no certificate is configured.
var ErrTLSDisabled = errors.New("tls disabled")

// Load reads the configured key pair. It returns ErrTLSDisabled when neither
// file is set so callers can fall back to plain HTTP.
func Load(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" && cfg.KeyFile == "" {
		return nil, ErrTLSDisabled
	}
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("tlsconfig: cert_file and key_file must be set together")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
