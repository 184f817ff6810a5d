// Package logging builds the process logger.
//
// Components receive a zerolog.Logger by injection and derive children with
// a "comp" field. zerolog drops writer errors, so logging never feeds
// failures back into delivery control flow.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"courier/internal/config"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// New returns a root logger writing to stdout.
func New(cfg config.LogConfig) zerolog.Logger {
	return NewWriter(cfg, os.Stdout)
}

// NewWriter returns a root logger writing to w. Format "json" emits one JSON
// object per line; anything else uses the human console writer.
func NewWriter(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = "err"

	out := w
	if !strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	}
	return zerolog.New(out).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, falling back to def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("comp", name).Logger()
}
