// Package history keeps a sqlite record of past runs so a later run can
// select the documents that failed last time.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/doctest/internal/models"
	"github.com/harrison/doctest/internal/suite"
)

// Run is one recorded invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Documents  int
	Passed     int
	Failed     int
	Unexpected int
	Skipped    int
	Success    bool
	Args       string
}

// ExampleResult is the stored outcome of one example.
type ExampleResult struct {
	RunID  string
	Path   string
	Line   int
	Block  string
	Kind   models.OutcomeKind
	Detail string
}

// DocumentFailure is a document that stopped before all its examples ran.
type DocumentFailure struct {
	RunID   string
	Path    string
	Phase   string
	Message string
}

// Store manages the run history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens or creates the database at dbPath and applies migrations.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// execWithRetry executes a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordSuite stores a finished suite run and returns its run id.
func (s *Store) RecordSuite(ctx context.Context, res *suite.Result, startedAt time.Time, args []string) (string, error) {
	run, results, failures := FromSuite(res, startedAt, args)
	if err := s.RecordRun(ctx, run, results, failures); err != nil {
		return "", err
	}
	return run.ID, nil
}

// FromSuite converts a suite result into history rows under a fresh run id.
func FromSuite(res *suite.Result, startedAt time.Time, args []string) (*Run, []ExampleResult, []DocumentFailure) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Duration:  res.Duration,
		Documents: len(res.Documents),
		Success:   res.Passed(),
		Args:      strings.Join(args, " "),
	}
	run.Passed, run.Failed, run.Unexpected, run.Skipped = res.Totals()

	var results []ExampleResult
	var failures []DocumentFailure
	for _, doc := range res.Documents {
		for _, o := range doc.Summary.Outcomes {
			r := ExampleResult{RunID: run.ID, Path: doc.Path, Kind: o.Kind, Detail: o.Detail}
			if o.Example != nil {
				r.Line = o.Example.Line
				r.Block = o.Example.Block
			}
			results = append(results, r)
		}
		switch {
		case doc.Err != nil:
			f := DocumentFailure{RunID: run.ID, Path: doc.Path, Phase: "run", Message: doc.Err.Error()}
			if de, ok := doc.Err.(*suite.DocumentError); ok {
				f.Phase = de.Phase.String()
			}
			failures = append(failures, f)
		case doc.SetupErr != nil:
			failures = append(failures, DocumentFailure{RunID: run.ID, Path: doc.Path, Phase: "setup", Message: doc.SetupErr.Error()})
		}
	}
	return run, results, failures
}

// RecordRun stores a run with its example results in one transaction.
func (s *Store) RecordRun(ctx context.Context, run *Run, results []ExampleResult, failures []DocumentFailure) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, started_at, duration_ms, documents, passed, failed, unexpected, skipped, success, args)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.Duration.Milliseconds(), run.Documents,
		run.Passed, run.Failed, run.Unexpected, run.Skipped, run.Success, run.Args)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO example_results
		(run_id, path, line, block, kind, detail) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare example insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, run.ID, r.Path, r.Line, r.Block, string(r.Kind), r.Detail); err != nil {
			return fmt.Errorf("insert example result %s:%d: %w", r.Path, r.Line, err)
		}
	}

	for _, f := range failures {
		_, err := tx.ExecContext(ctx, `INSERT INTO document_errors (run_id, path, phase, message) VALUES (?, ?, ?, ?)`,
			run.ID, f.Path, f.Phase, f.Message)
		if err != nil {
			return fmt.Errorf("insert document error %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, duration_ms, documents, passed, failed, unexpected, skipped, success, COALESCE(args, '')
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.StartedAt, &durationMS, &r.Documents, &r.Passed, &r.Failed,
			&r.Unexpected, &r.Skipped, &r.Success, &r.Args); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Results returns the example results of one run in insertion order.
func (s *Store) Results(ctx context.Context, runID string) ([]ExampleResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, path, line, COALESCE(block, ''), kind, COALESCE(detail, '')
		FROM example_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query example results: %w", err)
	}
	defer rows.Close()

	var out []ExampleResult
	for rows.Next() {
		var r ExampleResult
		var kind string
		if err := rows.Scan(&r.RunID, &r.Path, &r.Line, &r.Block, &kind, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan example result: %w", err)
		}
		r.Kind = models.OutcomeKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate example results: %w", err)
	}
	return out, nil
}

// LastFailed returns the documents that failed in the most recent run,
// sorted by path. It returns nil when there is no run yet.
func (s *Store) LastFailed(ctx context.Context) ([]string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT path FROM example_results WHERE run_id = ? AND kind IN (?, ?)
UNION
SELECT path FROM document_errors WHERE run_id = ?
ORDER BY path`,
		runID, string(models.OutcomeFail), string(models.OutcomeUnexpected), runID)
	if err != nil {
		return nil, fmt.Errorf("query failed documents: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed documents: %w", err)
	}
	return paths, nil
}

// Prune deletes every run except the keep most recent ones.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`
	for _, table := range []string{"example_results", "document_errors"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id IN (%s)", table, stale), keep); err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM runs WHERE id IN (%s)", stale), keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n, nil
}
