// Package eventlog records the history of refloop runs in a SQLite database
// and provides read-only queries over it.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Event is one recorded run event.
type Event struct {
	ID            int64
	RunID         string
	Type          string
	TargetDir     string
	Pass          int
	PlannedPasses int
	Status        string
	Backlog       string // human-readable backlog summary
	Score         float64
	Payload       string // optional JSON detail
	CreatedAt     time.Time
}

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// RunID filters events to one run.
	RunID string

	// TargetDir filters events to one repository.
	TargetDir string

	// Type filters to one event type (e.g. "pass", "run_end").
	Type string

	// After filters events created after this time (inclusive)
	After *time.Time

	// Before filters events created before this time (inclusive)
	Before *time.Time

	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Reader provides read-only access to the history database.
type Reader struct {
	db *sql.DB
}

// NewReader opens the history database in read-only mode.
// Returns an error if the database doesn't exist or cannot be opened.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Reader{db: db}, nil
}

// Close releases the database connection.
// Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Query retrieves events matching opts, newest first.
// Returns an empty slice if no events match.
func (r *Reader) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e       Event
		created string
	)
	dest := []any{
		&e.ID, &e.RunID, &e.Type, &e.TargetDir, &e.Pass, &e.PlannedPasses,
		&e.Status, &e.Backlog, &e.Score, &e.Payload, &created,
	}
	if err := rows.Scan(dest...); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	if created == "" {
		return e, nil
	}
	t, err := parseCreatedAt(created)
	if err != nil {
		return Event{}, err
	}
	e.CreatedAt = t
	return e, nil
}

// parseCreatedAt accepts the writer's layout and plain RFC 3339.
func parseCreatedAt(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse created_at %q", s)
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, run_id, type, target_dir, pass, planned_passes, status, backlog, score, payload, created_at FROM events WHERE 1=1"

	for _, f := range []struct {
		column string
		value  string
	}{
		{"run_id", opts.RunID},
		{"target_dir", opts.TargetDir},
		{"type", opts.Type},
	} {
		if f.value != "" {
			conditions = append(conditions, f.column+" = ?")
			args = append(args, f.value)
		}
	}

	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(timeLayout))
	}

	if opts.Before != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.Before.UTC().Format(timeLayout))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	return query, args
}
