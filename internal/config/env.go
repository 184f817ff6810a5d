package config

import (
	"os"
)

const defaultHostname = "localhost"

// Hostname returns the name used in SMTP HELO and generated Message-IDs.
// Preference order: configured value, COURIER_HOSTNAME, system hostname, fallback.
func Hostname(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv("COURIER_HOSTNAME"); env != "" {
		return env
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultHostname
}
