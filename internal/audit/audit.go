package audit

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	enabled atomic.Bool
	logger  atomic.Pointer[zerolog.Logger]
)

func init() {
	RefreshFromEnv()
}

// SetLogger routes audit lines to log.
func SetLogger(log zerolog.Logger) {
	logger.Store(&log)
}

// Set toggles the audit trail.
func Set(on bool) { enabled.Store(on) }

// Enabled reports whether audit lines are emitted.
func Enabled() bool { return enabled.Load() }

// RefreshFromEnv enables auditing when COURIER_DEBUG=1.
func RefreshFromEnv() {
	Set(os.Getenv("COURIER_DEBUG") == "1")
}

// Log records an attempt lifecycle event if auditing is enabled. Audit lines
// carry no level and bypass the logger's level filter.
func Log(event, attemptID string, fields map[string]any) {
	if !Enabled() {
		return
	}
	l := logger.Load()
	if l == nil {
		return
	}
	l.WithLevel(zerolog.NoLevel).Str("audit", event).Str("attempt", attemptID).Fields(fields).Msg("[AUDIT] " + event)
}
