// Package health serves liveness, breaker state and expvar metrics on a
// separate listener from the API.
package health

import (
	"encoding/json"
	"expvar"
	"net"
	"net/http"
	"time"

	"courier/internal/breaker"
)

// Source reports the service state shown on /healthz.
type Source interface {
	Breakers() []breaker.Snapshot
	QueueDepth() int
	AdmissionRemaining() int
	Tracked() int
}

// Report is the /healthz body. Status is "degraded" while any breaker is open.
type Report struct {
	Status             string             `json:"status"`
	QueueDepth         int                `json:"queueDepth"`
	AdmissionRemaining int                `json:"admissionRemaining"`
	Tracked            int                `json:"tracked"`
	Breakers           []breaker.Snapshot `json:"breakers"`
}

// Handler returns the health mux. src may be nil.
func Handler(src Source) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		rep := Report{Status: "ok", Breakers: []breaker.Snapshot{}}
		if src != nil {
			rep.QueueDepth = src.QueueDepth()
			rep.AdmissionRemaining = src.AdmissionRemaining()
			rep.Tracked = src.Tracked()
			rep.Breakers = src.Breakers()
			for _, b := range rep.Breakers {
				if b.State != breaker.StateClosed {
					rep.Status = "degraded"
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rep)
	})
	mux.Handle("GET /metrics", expvar.Handler())
	return mux
}

// StartHealthServer listens on addr and serves Handler(src) in the background.
// The caller owns shutdown.
func StartHealthServer(addr string, src Source) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	srv := &http.Server{
		Handler:           Handler(src),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	return srv, ln, nil
}
