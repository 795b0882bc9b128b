package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/corpuscrawl/internal/model"
)

// FileName is the database file name inside the database directory.
const FileName = "corpuscrawl.db"

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// CrawlDB is the crawl ledger: one row per run, one row per fetch attempt
// and one row per record written. It backs the failure report and lets a
// later run skip works an earlier run already ingested.
//
// Design decision: We use a single database file for every source and run
// rather than one per source. Failures and ingested titles are then one
// query away regardless of which source produced them.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so the failure report can read
	// while a crawl writes.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite: mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Fetch hooks run on every worker; one connection serializes them.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl or harvest run
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		kind TEXT NOT NULL,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME,
		status TEXT NOT NULL,
		fetched INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		records INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);

	-- Fetch attempts; error is empty on success
	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		role TEXT,
		status_code INTEGER,
		bytes INTEGER,
		duration_ms INTEGER,
		error TEXT NOT NULL DEFAULT '',
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_url ON fetches(url);
	CREATE INDEX IF NOT EXISTS idx_fetches_error ON fetches(error);

	-- Records written to the corpus
	CREATE TABLE IF NOT EXISTS records (
		identifier TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		title TEXT,
		word_count INTEGER,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// Run is a stored run.
type Run struct {
	ID         string
	Source     string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Fetched    int
	Failed     int
	Records    int
	Skipped    int
}

// RunSummary holds the counters written when a run finishes.
type RunSummary struct {
	Status  string
	Fetched int
	Failed  int
	Records int
	Skipped int
}

// StartRun inserts a running run for source and returns its new ID.
func (cdb *CrawlDB) StartRun(ctx context.Context, source, kind string) (string, error) {
	id := uuid.NewString()
	_, err := cdb.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, kind, status) VALUES (?, ?, ?, ?)`,
		id, source, kind, StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final status and counters of a run.
func (cdb *CrawlDB) FinishRun(ctx context.Context, id string, s RunSummary) error {
	result, err := cdb.db.ExecContext(ctx, `
	UPDATE runs SET
		finished_at = CURRENT_TIMESTAMP,
		status = ?, fetched = ?, failed = ?, records = ?, skipped = ?
	WHERE id = ?
	`, s.Status, s.Fetched, s.Failed, s.Records, s.Skipped, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run: unknown run %s", id)
	}
	return nil
}

// GetRun returns the run with id, or nil when there is none.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := cdb.db.QueryRowContext(ctx, `
	SELECT id, source, kind, started_at, COALESCE(finished_at, ''), status, fetched, failed, records, skipped
	FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the runs of source, newest first. An empty source lists
// every run.
func (cdb *CrawlDB) ListRuns(ctx context.Context, source string) ([]Run, error) {
	query := `
	SELECT id, source, kind, started_at, COALESCE(finished_at, ''), status, fetched, failed, records, skipped
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0)
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	query += " ORDER BY started_at DESC, rowid DESC"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var started, finished string
	err := s.Scan(&run.ID, &run.Source, &run.Kind, &started, &finished, &run.Status,
		&run.Fetched, &run.Failed, &run.Records, &run.Skipped)
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTimestamp(started)
	run.FinishedAt = parseTimestamp(finished)
	return &run, nil
}

// FetchRecord is one stored fetch attempt.
type FetchRecord struct {
	ID         int64
	RunID      string
	URL        string
	Role       string
	StatusCode int
	Bytes      int
	Duration   time.Duration
	Error      string
	Timestamp  time.Time
}

// RecordFetch stores a fetch attempt. A second attempt at the same URL in
// the same run replaces the first.
func (cdb *CrawlDB) RecordFetch(ctx context.Context, f *FetchRecord) error {
	_, err := cdb.db.ExecContext(ctx, `
	INSERT INTO fetches (run_id, url, role, status_code, bytes, duration_ms, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		role = excluded.role,
		status_code = excluded.status_code,
		bytes = excluded.bytes,
		duration_ms = excluded.duration_ms,
		error = excluded.error,
		timestamp = CURRENT_TIMESTAMP
	`, f.RunID, f.URL, f.Role, f.StatusCode, f.Bytes, f.Duration.Milliseconds(), f.Error)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

// ListFailures returns the URLs whose latest attempt failed, oldest first.
// source and runID narrow the result when non-empty. A URL that succeeded
// in a later attempt is not a failure.
func (cdb *CrawlDB) ListFailures(ctx context.Context, source, runID string) ([]FetchRecord, error) {
	query := `
	SELECT f.id, f.run_id, f.url, COALESCE(f.role, ''), COALESCE(f.status_code, 0),
		COALESCE(f.bytes, 0), COALESCE(f.duration_ms, 0), f.error, f.timestamp
	FROM fetches f
	JOIN runs r ON r.id = f.run_id
	WHERE f.error != ''
		AND NOT EXISTS (
			SELECT 1 FROM fetches later
			WHERE later.url = f.url AND later.id > f.id
		)
	`
	args := make([]any, 0)
	if source != "" {
		query += " AND r.source = ?"
		args = append(args, source)
	}
	if runID != "" {
		query += " AND f.run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY f.id"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var results []FetchRecord
	for rows.Next() {
		var f FetchRecord
		var durationMS int64
		var timestamp string
		if err := rows.Scan(&f.ID, &f.RunID, &f.URL, &f.Role, &f.StatusCode, &f.Bytes, &durationMS, &f.Error, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Duration = time.Duration(durationMS) * time.Millisecond
		f.Timestamp = parseTimestamp(timestamp)
		results = append(results, f)
	}
	return results, rows.Err()
}

// RecordIngested stores a written record. Rewriting the same identifier
// keeps the first run that produced it.
func (cdb *CrawlDB) RecordIngested(ctx context.Context, runID string, rec *model.CorpusRecord) error {
	_, err := cdb.db.ExecContext(ctx, `
	INSERT INTO records (identifier, run_id, source, title, word_count)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(identifier) DO NOTHING
	`, rec.Identifier, runID, rec.Source, rec.Metadata.Title, rec.WordCount)
	if err != nil {
		return fmt.Errorf("failed to record ingested record: %w", err)
	}
	return nil
}

// IngestedTitles returns the distinct titles ingested from source, sorted.
// An empty source returns the titles of every source.
func (cdb *CrawlDB) IngestedTitles(ctx context.Context, source string) ([]string, error) {
	query := `SELECT DISTINCT title FROM records WHERE title != ''`
	args := make([]any, 0)
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	query += " ORDER BY title"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// HasRecord reports whether a record with identifier was ingested.
func (cdb *CrawlDB) HasRecord(ctx context.Context, identifier string) (bool, error) {
	var count int
	err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE identifier = ?`, identifier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	return count > 0, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// It returns the zero time for empty or unrecognized input.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// LedgerSink records every written record against a run. It satisfies the
// corpus record sink so it can sit next to the output writers.
type LedgerSink struct {
	ctx   context.Context //nolint:containedctx // Write has no context parameter
	db    *CrawlDB
	runID string
}

// Ledger returns a sink that records ingested records for runID.
func (cdb *CrawlDB) Ledger(ctx context.Context, runID string) *LedgerSink {
	return &LedgerSink{ctx: ctx, db: cdb, runID: runID}
}

// Write records rec. It uses a context detached from cancellation so records
// flushed after an interrupt are still recorded.
func (l *LedgerSink) Write(rec *model.CorpusRecord) error {
	return l.db.RecordIngested(context.WithoutCancel(l.ctx), l.runID, rec)
}
