package stats

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// History persists per-run summaries to SQLite, flushed once at run end.
type History struct {
	db *sql.DB
}

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	started_at      TIMESTAMP NOT NULL,
	ended_at        TIMESTAMP NOT NULL,
	tokens_in       INTEGER NOT NULL,
	tokens_out      INTEGER NOT NULL,
	tool_calls      INTEGER NOT NULL,
	sessions        INTEGER NOT NULL,
	items_completed INTEGER NOT NULL,
	reopened        INTEGER NOT NULL,
	escalated       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS completions (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	model       TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL
);
`

// OpenHistory opens (creating if needed) the run-history database.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &History{db: db}, nil
}

// Flush writes one run's snapshot. Called once, at run end.
func (h *History) Flush(runID string, snap Snapshot) error {
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning history tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, started_at, ended_at, tokens_in, tokens_out, tool_calls, sessions, items_completed, reopened, escalated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, snap.StartedAt, snap.StartedAt.Add(snap.Elapsed),
		snap.TokensIn, snap.TokensOut, snap.ToolCalls, snap.Sessions,
		snap.ItemsCompleted, snap.Reopened, snap.Escalated,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, rec := range snap.ModelRecords {
		_, err = tx.Exec(
			`INSERT INTO completions (run_id, model, duration_ms, passed, recorded_at) VALUES (?, ?, ?, ?, ?)`,
			runID, rec.Model, rec.Duration.Milliseconds(), rec.Passed, rec.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting completion: %w", err)
		}
	}

	return tx.Commit()
}

// RunSummary is one historical run row.
type RunSummary struct {
	ID             string
	StartedAt      time.Time
	EndedAt        time.Time
	TokensIn       int
	TokensOut      int
	ItemsCompleted int
	Reopened       int
	Escalated      int
}

// RecentRuns returns up to limit runs, newest first.
func (h *History) RecentRuns(limit int) ([]RunSummary, error) {
	rows, err := h.db.Query(
		`SELECT id, started_at, ended_at, tokens_in, tokens_out, items_completed, reopened, escalated
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.EndedAt, &r.TokensIn, &r.TokensOut,
			&r.ItemsCompleted, &r.Reopened, &r.Escalated); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}
