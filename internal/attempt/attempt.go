// Package attempt holds the Delivery Attempt entity and the registry that
// answers status queries while orchestrator runs mutate attempts.
package attempt

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"courier/internal/email"
)

// Status is the lifecycle state of an attempt. Terminal states never change.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether s is final.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Attempt tracks one message delivery request. The identity and payload are
// fixed at creation; lifecycle fields are guarded by mu so status reads can
// run while a retry loop is in progress.
type Attempt struct {
	id        string
	msg       email.Message
	createdAt time.Time

	mu          sync.Mutex
	count       int
	status      Status
	lastAttempt time.Time
	lastError   string
	deliveredBy string
}

// New creates a pending attempt with a fresh uuid.
func New(msg email.Message, now time.Time) *Attempt {
	return &Attempt{
		id:          uuid.NewString(),
		msg:         msg,
		createdAt:   now,
		status:      StatusPending,
		lastAttempt: now,
	}
}

func (a *Attempt) ID() string             { return a.id }
func (a *Attempt) Message() email.Message { return a.msg }

// Count returns the number of delivery tries made so far.
func (a *Attempt) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Status returns the current lifecycle state.
func (a *Attempt) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Begin records the start of a try and returns the new try number.
func (a *Attempt) Begin(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
	a.lastAttempt = now
	return a.count
}

// RecordError stores the most recent failure without changing status.
func (a *Attempt) RecordError(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	a.lastError = err.Error()
	a.mu.Unlock()
}

// Succeed moves a pending attempt to success. It reports false if the
// attempt was already terminal.
func (a *Attempt) Succeed(provider string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.Terminal() {
		return false
	}
	a.status = StatusSuccess
	a.deliveredBy = provider
	return true
}

// Fail moves a pending attempt to failed, keeping err as the last error.
func (a *Attempt) Fail(err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.Terminal() {
		return false
	}
	a.status = StatusFailed
	if err != nil {
		a.lastError = err.Error()
	}
	return true
}

// Snapshot is an immutable copy of an attempt, safe to serialise.
type Snapshot struct {
	ID              string    `json:"id"`
	To              string    `json:"to"`
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	Attempts        int       `json:"attempts"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	LastAttemptTime time.Time `json:"lastAttempt"`
	LastError       string    `json:"lastError,omitempty"`
	DeliveredBy     string    `json:"deliveredBy,omitempty"`
}

// Snapshot copies the attempt under its lock.
func (a *Attempt) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		ID:              a.id,
		To:              a.msg.To,
		Subject:         a.msg.Subject,
		Body:            a.msg.Body,
		Attempts:        a.count,
		Status:          a.status,
		CreatedAt:       a.createdAt,
		LastAttemptTime: a.lastAttempt,
		LastError:       a.lastError,
		DeliveredBy:     a.deliveredBy,
	}
}
