package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Writer appends events to the run history database.
type Writer struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the history database at path with WAL
// journaling and a 5-second busy timeout, and applies the schema.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Writer{db: db, now: time.Now}, nil
}

// openDB opens a SQLite database at path and enforces production-safe
// defaults: WAL journal mode and a 5-second busy timeout.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	return db, nil
}

// Record appends e. ID is ignored; a zero CreatedAt is stamped with the
// current time.
func (w *Writer) Record(ctx context.Context, e Event) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = w.now()
	}
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO events (run_id, type, target_dir, pass, planned_passes, status, backlog, score, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Type, e.TargetDir, e.Pass, e.PlannedPasses, e.Status, e.Backlog, e.Score, e.Payload,
		created.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record %s event: %w", e.Type, err)
	}
	return nil
}

// Close releases the database connection.
func (w *Writer) Close() error {
	return w.db.Close()
}
