// Package ledger keeps a sqlite journal of pipeline runs and the outcome
// of every file they processed.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

const timeLayout = time.RFC3339Nano

// Run is one pipeline pass
type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Total    int
	Counts   map[string]int
}

// Entry is the outcome of one file
type Entry struct {
	RunID       string
	File        string
	Outcome     string
	InstanceID  string
	MatchedID   string
	Destination string
	ErrorClass  string
	Reason      string
	ProcessedAt time.Time
}

// Ledger writes runs and entries. It is safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at path with WAL enabled
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create ledger folder for %s", path)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	// one writer at a time; also keeps :memory: on a single database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}

	l := New(db)
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an open database whose schema already exists
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	total INTEGER NOT NULL DEFAULT 0,
	counts_json TEXT
);

CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	file TEXT NOT NULL,
	outcome TEXT NOT NULL,
	instance_id TEXT,
	matched_id TEXT,
	destination TEXT,
	error_class TEXT,
	reason TEXT,
	processed_at TEXT NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
CREATE INDEX IF NOT EXISTS idx_results_file ON results(file);
`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "create ledger schema")
	}
	return nil
}

// StartRun records the beginning of a run
func (l *Ledger) StartRun(ctx context.Context, id string, started time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		id, started.UTC().Format(timeLayout))
	if err != nil {
		return errors.Wrapf(err, "record run %s", id)
	}
	return nil
}

// Record stores the outcome of one file
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO results (run_id, file, outcome, instance_id, matched_id, destination, error_class, reason, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.File, e.Outcome, e.InstanceID, e.MatchedID, e.Destination, e.ErrorClass, e.Reason,
		e.ProcessedAt.UTC().Format(timeLayout))
	if err != nil {
		return errors.Wrapf(err, "record result of %s", e.File)
	}
	return nil
}

// FinishRun stores the totals of a run
func (l *Ledger) FinishRun(ctx context.Context, id string, finished time.Time, counts map[string]int) error {
	total := 0
	for _, n := range counts {
		total += n
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return errors.Wrap(err, "encode run counts")
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total = ?, counts_json = ? WHERE id = ?`,
		finished.UTC().Format(timeLayout), total, string(countsJSON), id)
	if err != nil {
		return errors.Wrapf(err, "finish run %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Newf("finish run %s: run not found", id)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, counts_json FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                  Run
			started            string
			finished, countsJS sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &countsJS); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.Started, _ = time.Parse(timeLayout, started)
		if finished.Valid {
			r.Finished, _ = time.Parse(timeLayout, finished.String)
		}
		if countsJS.Valid && countsJS.String != "" {
			if err := json.Unmarshal([]byte(countsJS.String), &r.Counts); err != nil {
				return nil, errors.Wrapf(err, "decode counts of run %s", r.ID)
			}
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "iterate runs")
}

// Entries returns the results of a run in insertion order
func (l *Ledger) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, file, outcome, instance_id, matched_id, destination, error_class, reason, processed_at
		 FROM results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query results")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                                               Entry
			instanceID, matchedID, dest, errorClass, reason sql.NullString
			processed                                       string
		)
		if err := rows.Scan(&e.RunID, &e.File, &e.Outcome, &instanceID, &matchedID, &dest, &errorClass, &reason, &processed); err != nil {
			return nil, errors.Wrap(err, "scan result")
		}
		e.InstanceID = instanceID.String
		e.MatchedID = matchedID.String
		e.Destination = dest.String
		e.ErrorClass = errorClass.String
		e.Reason = reason.String
		e.ProcessedAt, _ = time.Parse(timeLayout, processed)
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "iterate results")
}
