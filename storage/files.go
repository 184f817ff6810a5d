// Package storage keeps an append-only journal of finished delivery attempts.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"courier/internal/attempt"
)

const journalFile = "outcomes.jsonl"

// Entry is one journal line. The recipient is stored as a hash token and the
// message content is never written.
type Entry struct {
	ID          string         `json:"id"`
	Recipient   string         `json:"recipient"`
	Status      attempt.Status `json:"status"`
	Attempts    int            `json:"attempts"`
	DeliveredBy string         `json:"deliveredBy,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	LastAttempt time.Time      `json:"lastAttempt"`
	RecordedAt  time.Time      `json:"recordedAt"`
}

// Journal appends terminal attempts to <dir>/<YYYY-MM-DD>/outcomes.jsonl.
type Journal struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// NewJournal returns a journal rooted at dir, or nil when dir is empty.
func NewJournal(dir string) *Journal {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Journal{dir: dir, now: time.Now}
}

// Dir returns the journal root.
func (j *Journal) Dir() string { return j.dir }

// Record appends one line for snap. Pending attempts are rejected. A nil
// journal discards everything.
func (j *Journal) Record(snap attempt.Snapshot) error {
	if j == nil {
		return nil
	}
	if !snap.Status.Terminal() {
		return fmt.Errorf("storage: attempt %s is still %s", snap.ID, snap.Status)
	}
	id, err := sanitizeComponent(snap.ID)
	if err != nil {
		return err
	}
	now := j.now().UTC()
	line, err := json.Marshal(Entry{
		ID:          id,
		Recipient:   hashRecipient(snap.To),
		Status:      snap.Status,
		Attempts:    snap.Attempts,
		DeliveredBy: snap.DeliveredBy,
		LastError:   snap.LastError,
		CreatedAt:   snap.CreatedAt,
		LastAttempt: snap.LastAttemptTime,
		RecordedAt:  now,
	})
	if err != nil {
		return err
	}
	line = append(line, '\n')

	dir := filepath.Join(j.dir, now.Format("2006-01-02"))

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, journalFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sanitizeComponent(v string) (string, error) {
	if strings.ContainsAny(v, "/\\") || strings.Contains(v, "..") {
		return "", errors.New("invalid identifier")
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("empty identifier")
	}
	return v, nil
}

func hashRecipient(addr string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(addr))))
	return hex.EncodeToString(sum[:8])
}
