package metrics

import "expvar"

var (
	Submitted     = expvar.NewInt("courier_submitted_total")
	Admitted      = expvar.NewInt("courier_admitted_total")
	RateLimited   = expvar.NewInt("courier_rate_limited_total")
	Attempts      = expvar.NewInt("courier_delivery_attempts_total")
	Fallbacks     = expvar.NewInt("courier_fallback_attempts_total")
	CircuitOpen   = expvar.NewInt("courier_circuit_open_total")
	Succeeded     = expvar.NewInt("courier_delivered_total")
	Failed        = expvar.NewInt("courier_failed_total")
	queueDepth    = expvar.NewInt("courier_queue_depth")
	drainsRunning = expvar.NewInt("courier_drains_running")
)

// SetQueueDepth records the current deferred queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(int64(n))
}

// QueueDepth returns the last recorded queue depth.
func QueueDepth() int64 {
	return queueDepth.Value()
}

// IncDrains marks a queue drain as started.
func IncDrains() {
	drainsRunning.Add(1)
}

// DecDrains marks a queue drain as finished.
func DecDrains() {
	drainsRunning.Add(-1)
}

// ResetForTests clears counters; intended for use in tests only.
func ResetForTests() {
	Submitted.Set(0)
	Admitted.Set(0)
	RateLimited.Set(0)
	Attempts.Set(0)
	Fallbacks.Set(0)
	CircuitOpen.Set(0)
	Succeeded.Set(0)
	Failed.Set(0)
	queueDepth.Set(0)
	drainsRunning.Set(0)
}
