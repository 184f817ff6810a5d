// Package api exposes the delivery service over HTTP.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"courier/internal/attempt"
	"courier/service"
)

const maxBodyBytes = 1 << 20

// Service is the subset of the delivery facade the handlers use.
type Service interface {
	Submit(ctx context.Context, to, subject, body string) service.Result
	Status(id string) (attempt.Snapshot, bool)
	Drain(ctx context.Context) int
}

// Config configures the API listener. Prefix is prepended to every route.
type Config struct {
	Address         string
	Prefix          string
	AllowNetworks   []*net.IPNet
	ShutdownTimeout time.Duration
	TLSConfig       *tls.Config
}

// Server serves the delivery API.
type Server struct {
	config Config
	svc    Service
	log    zerolog.Logger
	server *http.Server
}

// New registers the routes under cfg.Prefix.
func New(cfg Config, svc Service, log zerolog.Logger) *Server {
	cfg.Prefix = "/" + strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "/" {
		cfg.Prefix = ""
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{config: cfg, svc: svc, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+cfg.Prefix+"/send", s.handleSend)
	mux.HandleFunc("GET "+cfg.Prefix+"/status/{id}", s.handleStatus)
	mux.HandleFunc("POST "+cfg.Prefix+"/process-queue", s.handleProcessQueue)

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.logRequests(allowNetworks(cfg.AllowNetworks, mux)),
		TLSConfig:         cfg.TLSConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	s.log.Info().Str("addr", s.config.Address).Bool("tls", s.config.TLSConfig != nil).
		Str("prefix", s.config.Prefix).Msg("api server starting")

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLSConfig != nil {
			err = s.server.ListenAndServeTLS("", "")
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("api server shutdown failed")
			return err
		}
		s.log.Info().Msg("api server stopped")
		return nil
	}
}
