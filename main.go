package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"courier/delivery"
	"courier/health"
	"courier/internal/api"
	"courier/internal/audit"
	"courier/internal/config"
	"courier/internal/dkim"
	"courier/internal/logging"
	"courier/internal/ratelimit"
	"courier/service"
	"courier/storage"
	"courier/tlsconfig"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	port := flag.String("port", "", "override the API listen port")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "courier: load .env: %v\n", err)
	}
	audit.RefreshFromEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Listen = overridePort(cfg.Listen, *port)
	}

	log := logging.New(cfg.Log)
	audit.SetLogger(logging.Component(log, "audit"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("courier stopped")
	}
	log.Info().Msg("courier stopped")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}

	tlsConf, err := tlsconfig.Load(cfg.TLS)
	if err != nil && !errors.Is(err, tlsconfig.ErrTLSDisabled) {
		return err
	}

	sched, err := service.NewScheduler(svc, cfg.Queue.DrainSchedule)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	healthSrv, healthLn, err := health.StartHealthServer(cfg.HealthListen, svc)
	if err != nil {
		return fmt.Errorf("health listener: %w", err)
	}
	log.Info().Str("addr", healthLn.Addr().String()).Msg("health server listening")

	apiSrv := api.New(api.Config{
		Address:         cfg.Listen,
		Prefix:          cfg.APIPrefix,
		AllowNetworks:   config.ParseNetworks(cfg.AllowNetworks),
		ShutdownTimeout: cfg.ShutdownTimeout,
		TLSConfig:       tlsConf,
	}, svc, logging.Component(log, "api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiSrv.Listen(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return healthSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildService wires providers, breakers, limiter and journal from cfg.
func buildService(cfg config.Config, log zerolog.Logger) (*service.Service, error) {
	signer, err := dkim.New(cfg.DKIM)
	if err != nil {
		return nil, err
	}
	if signer != nil {
		log.Info().Str("selector", signer.Selector()).Msg("dkim signing enabled")
	}
	opts := delivery.Options{
		From:     cfg.Sender,
		Hostname: config.Hostname(cfg.Hostname),
		Signer:   signer,
	}
	primary, err := delivery.New(cfg.Primary, opts)
	if err != nil {
		return nil, err
	}
	fallback, err := delivery.New(cfg.Fallback, opts)
	if err != nil {
		return nil, err
	}
	admitter, err := ratelimit.New(cfg.Limiter, nil)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("primary", primary.Name()).
		Str("fallback", fallback.Name()).
		Str("limiter", cfg.Limiter.Strategy).
		Int("limit", cfg.Limiter.Limit).
		Dur("window", cfg.Limiter.Window).
		Bool("shared_breaker", cfg.Breaker.Shared).
		Msg("delivery service configured")

	journal := storage.NewJournal(cfg.Journal.Dir)
	if journal != nil {
		log.Info().Str("dir", journal.Dir()).Msg("outcome journal enabled")
	}

	return service.New(service.Options{
		Admitter: admitter,
		Primary:  primary,
		Fallback: fallback,
		Breaker:  cfg.Breaker,
		Retry:    cfg.Retry,
		Journal:  journal,
		Log:      log,
	})
}

// overridePort replaces the port in addr, keeping its host.
func overridePort(addr, port string) string {
	port = strings.TrimPrefix(port, ":")
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return net.JoinHostPort(host, port)
}

