package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// openTestJournal opens a journal in a temporary directory.
func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(config.JournalConfig{
		Enabled:     true,
		Path:        filepath.Join(t.TempDir(), "commands.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return j
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "commands.db")

	j, err := Open(config.JournalConfig{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	fixed := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	if err := j.Record(ctx, "home/lr/set/75", "set", "75", "ok"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := j.Record(ctx, "home/lr/explode", "explode", "", "unknown_command"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(entries))
	}

	// Newest first.
	if entries[0].Command != "explode" {
		t.Errorf("entries[0].Command = %q, want %q", entries[0].Command, "explode")
	}
	if entries[0].Outcome != "unknown_command" {
		t.Errorf("entries[0].Outcome = %q", entries[0].Outcome)
	}

	if entries[1].Topic != "home/lr/set/75" {
		t.Errorf("entries[1].Topic = %q", entries[1].Topic)
	}
	if entries[1].Argument != "75" {
		t.Errorf("entries[1].Argument = %q, want %q", entries[1].Argument, "75")
	}
	if !entries[1].ReceivedAt.Equal(fixed) {
		t.Errorf("entries[1].ReceivedAt = %v, want %v", entries[1].ReceivedAt, fixed)
	}
}

func TestRecent_Limit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := j.Record(ctx, "home/lr/on", "on", "", "ok"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Recent(3) returned %d entries, want 3", len(entries))
	}
}

func TestRecent_Empty(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Recent() on empty journal returned %d entries", len(entries))
	}
}
