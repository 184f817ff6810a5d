package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier/internal/attempt"
)

func terminalSnapshot(id string) attempt.Snapshot {
	return attempt.Snapshot{
		ID:          id,
		To:          "Recipient@Example.com",
		Subject:     "secret subject",
		Body:        "secret body",
		Attempts:    2,
		Status:      attempt.StatusSuccess,
		DeliveredBy: "Primary",
	}
}

func TestJournalRecord(t *testing.T) {
	tmp := t.TempDir()
	j := NewJournal(tmp)
	if j.Dir() != tmp {
		t.Fatalf("expected dir %q, got %q", tmp, j.Dir())
	}
	j.now = func() time.Time { return time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC) }

	if err := j.Record(terminalSnapshot("abc123")); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := j.Record(terminalSnapshot("def456")); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	path := filepath.Join(tmp, "2024-03-09", journalFile)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "secret") {
			t.Fatalf("journal must not contain message content: %q", line)
		}
		if strings.Contains(strings.ToLower(line), "recipient@example.com") {
			t.Fatalf("expected recipient to be hashed, got %q", line)
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "abc123" || entries[1].ID != "def456" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	if entries[0].Recipient != hashRecipient("recipient@example.com") {
		t.Fatalf("recipient hash should ignore case, got %q", entries[0].Recipient)
	}
	if entries[0].DeliveredBy != "Primary" || entries[0].Attempts != 2 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestJournalRejectsPending(t *testing.T) {
	j := NewJournal(t.TempDir())
	snap := terminalSnapshot("abc")
	snap.Status = attempt.StatusPending
	if err := j.Record(snap); err == nil {
		t.Fatalf("expected error for pending attempt")
	}
}

func TestJournalSanitizesID(t *testing.T) {
	j := NewJournal(t.TempDir())
	if err := j.Record(terminalSnapshot("../bad")); err == nil {
		t.Fatalf("expected error for invalid identifier")
	}
}

func TestNilJournalDiscards(t *testing.T) {
	j := NewJournal("  ")
	if j != nil {
		t.Fatalf("expected nil journal for empty dir")
	}
	if err := j.Record(terminalSnapshot("abc")); err != nil {
		t.Fatalf("nil journal returned error: %v", err)
	}
}
