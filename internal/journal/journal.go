package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// Journal configuration constants.
const (
	// dirPermissions is the permission mode for the journal directory.
	dirPermissions = 0750

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying connectivity on open.
	connectionTimeout = 5 * time.Second

	// defaultRecentLimit caps Recent queries when the caller passes <= 0.
	defaultRecentLimit = 50
)

// schema creates the command log table. Kept inline: the journal is a
// single-table store, not worth a migration framework.
const schema = `
CREATE TABLE IF NOT EXISTS command_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	received_at TEXT NOT NULL,
	topic       TEXT NOT NULL,
	command     TEXT NOT NULL DEFAULT '',
	argument    TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_log_received_at ON command_log(received_at);
`

// Entry is one journalled command dispatch.
type Entry struct {
	ID         int64
	ReceivedAt time.Time
	Topic      string
	Command    string
	Argument   string
	Outcome    string
}

// Journal is a local SQLite log of every command dispatched by a subscriber
// daemon. It satisfies command.Recorder.
type Journal struct {
	db *sql.DB

	// now is the clock, replaced in tests.
	now func() time.Time
}

// Open creates or opens the journal database.
//
// It performs the following setup:
//  1. Creates the journal directory if it doesn't exist
//  2. Opens the database file with busy timeout and foreign keys on
//  3. Enables WAL mode if configured
//  4. Ensures the command_log table exists
//
// Parameters:
//   - cfg: Journal configuration
//
// Returns:
//   - *Journal: Ready journal
//   - error: If connection or schema setup fails
func Open(cfg config.JournalConfig) (*Journal, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// SQLite only supports one writer; the daemons write from the single
	// delivery goroutine anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("verifying journal connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts one dispatched command. Signature matches command.Recorder.
func (j *Journal) Record(ctx context.Context, topic, command, argument, outcome string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO command_log (received_at, topic, command, argument, outcome)
		 VALUES (?, ?, ?, ?, ?)`,
		j.now().UTC().Format(time.RFC3339Nano),
		topic, command, argument, outcome,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
//
// Parameters:
//   - limit: Maximum entries to return; values <= 0 default to 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, received_at, topic, command, argument, outcome
		 FROM command_log
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var entries []Entry
	for rows.Next() {
		var e Entry
		var receivedAt string
		if err := rows.Scan(&e.ID, &receivedAt, &e.Topic, &e.Command, &e.Argument, &e.Outcome); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", receivedAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return entries, nil
}
