package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"courier/internal/config"
)

func TestOverridePort(t *testing.T) {
	tests := []struct {
		addr     string
		port     string
		expected string
	}{
		{":8080", "9090", ":9090"},
		{"127.0.0.1:8080", "9090", "127.0.0.1:9090"},
		{"0.0.0.0:8080", ":9090", "0.0.0.0:9090"},
		{"localhost", "9090", "localhost:9090"},
		{"[::1]:8080", "9090", "[::1]:9090"},
	}

	for _, tt := range tests {
		if got := overridePort(tt.addr, tt.port); got != tt.expected {
			t.Fatalf("overridePort(%q, %q) = %q, want %q", tt.addr, tt.port, got, tt.expected)
		}
	}
}

func TestBuildServiceDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Primary.FailureRate = 0
	cfg.Primary.Latency = 0

	svc, err := buildService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildService: %v", err)
	}
	res := svc.Submit(context.Background(), "user@example.com", "Hi", "Hello")
	if !res.Success || res.ID == "" {
		t.Fatalf("expected delivered result, got %+v", res)
	}
	if got := len(svc.Breakers()); got != 2 {
		t.Fatalf("expected one breaker per provider, got %d", got)
	}
}

func TestBuildServiceJournal(t *testing.T) {
	cfg := config.Default()
	cfg.Primary.FailureRate = 0
	cfg.Primary.Latency = 0
	cfg.Journal.Dir = t.TempDir()

	svc, err := buildService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildService: %v", err)
	}
	svc.Submit(context.Background(), "user@example.com", "Hi", "Hello")

	days, err := os.ReadDir(cfg.Journal.Dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected one journal day directory, got %d", len(days))
	}
}

func TestBuildServiceRejectsBadProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Fallback.Kind = "carrier-pigeon"
	if _, err := buildService(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown provider kind")
	}
}

func TestBuildServiceRejectsBadDKIM(t *testing.T) {
	cfg := config.Default()
	cfg.DKIM.KeyPath = t.TempDir() + "/missing.pem"
	cfg.DKIM.Selector = "s1"
	if _, err := buildService(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unreadable DKIM key")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.HealthListen = "127.0.0.1:0"
	cfg.Queue.DrainSchedule = "@every 1h"
	cfg.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
