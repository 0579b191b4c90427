// Package history persists refresh run records in a local sqlite database.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	concurrency INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	completed   INTEGER NOT NULL DEFAULT 0,
	success     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	stopped     INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Record is one refresh run, started and later finished.
type Record struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	Concurrency int       `json:"concurrency"`
	Total       int       `json:"total"`
	Completed   int       `json:"completed"`
	Success     int       `json:"success"`
	Failed      int       `json:"failed"`
	Stopped     bool      `json:"stopped"`
	StartedAt   time.Time `json:"started_at"`
	// FinishedAt is zero while the run is in flight.
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Store wraps the runs table.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, creating parent directories
// and the schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// The sqlite driver does not tolerate concurrent writers on one file.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart inserts a new in-flight run.
func (s *Store) RecordStart(r Record) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, scope, concurrency, total, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Scope, r.Concurrency, r.Total, r.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("history: record start: %w", err)
	}
	return nil
}

// RecordFinish fills in the terminal counters for a run.
func (s *Store) RecordFinish(id string, completed, success, failed int, stopped bool, finishedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE runs SET completed = ?, success = ?, failed = ?, stopped = ?, finished_at = ? WHERE id = ?`,
		completed, success, failed, boolToInt(stopped), finishedAt.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("history: record finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("history: record finish: unknown run %q", id)
	}
	return nil
}

// Recent returns up to limit runs, most recent first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, scope, concurrency, total, completed, success, failed, stopped, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("history: recent: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns a single run by id.
func (s *Store) Get(id string) (Record, bool, error) {
	rows, err := s.db.Query(
		`SELECT id, scope, concurrency, total, completed, success, failed, stopped, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	if err != nil {
		return Record{}, false, fmt.Errorf("history: get: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Record{}, false, rows.Err()
	}
	r, err := scanRecord(rows)
	if err != nil {
		return Record{}, false, fmt.Errorf("history: get: %w", err)
	}
	return r, true, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r        Record
		stopped  int
		started  int64
		finished sql.NullInt64
	)
	err := rows.Scan(&r.ID, &r.Scope, &r.Concurrency, &r.Total, &r.Completed, &r.Success, &r.Failed, &stopped, &started, &finished)
	if err != nil {
		return Record{}, err
	}
	r.Stopped = stopped != 0
	r.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		r.FinishedAt = time.Unix(finished.Int64, 0).UTC()
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
