package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*CrawlDB, func()) {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return db, cleanup
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		dbPath := filepath.Join(dbDir, FileName)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("expected path %q, got %q", dbPath, db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected error to contain %q, got %q", "database not found", err.Error())
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		ctx := context.Background()

		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		id, err := db1.StartRun(ctx, "sacred-texts", "crawl")
		if err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		run, err := db2.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if run == nil {
			t.Fatal("expected run to persist")
		}
	})

	t.Run("without WAL", func(t *testing.T) {
		t.Parallel()

		db, err := Open(t.TempDir(), Options{CreateIfNotExists: true})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
	})
}

// TestRuns tests starting, finishing and listing runs.
func TestRuns(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first, err := db.StartRun(ctx, "sacred-texts", "crawl")
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	second, err := db.StartRun(ctx, "standard-ebooks", "harvest")
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct run IDs")
	}

	run, err := db.GetRun(ctx, first)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("expected status %q, got %q", StatusRunning, run.Status)
	}
	if run.StartedAt.IsZero() {
		t.Error("expected start time to be parsed")
	}
	if !run.FinishedAt.IsZero() {
		t.Error("expected no finish time for a running run")
	}

	summary := RunSummary{Status: StatusCompleted, Fetched: 12, Failed: 2, Records: 3, Skipped: 1}
	if err := db.FinishRun(ctx, first, summary); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	run, err = db.GetRun(ctx, first)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != StatusCompleted || run.Fetched != 12 || run.Failed != 2 || run.Records != 3 || run.Skipped != 1 {
		t.Errorf("unexpected finished run: %+v", run)
	}
	if run.FinishedAt.IsZero() {
		t.Error("expected finish time to be set")
	}

	t.Run("unknown run cannot be finished", func(t *testing.T) {
		if err := db.FinishRun(ctx, "missing", summary); err == nil {
			t.Error("expected error for unknown run")
		}
	})

	t.Run("unknown run is nil", func(t *testing.T) {
		run, err := db.GetRun(ctx, "missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run != nil {
			t.Errorf("expected nil run, got %+v", run)
		}
	})

	t.Run("list filters by source", func(t *testing.T) {
		all, err := db.ListRuns(ctx, "")
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(all))
		}

		only, err := db.ListRuns(ctx, "standard-ebooks")
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(only) != 1 || only[0].ID != second || only[0].Kind != "harvest" {
			t.Errorf("expected only the harvest run, got %+v", only)
		}
	})
}

// TestFetchesAndFailures tests fetch recording and the failure listing.
func TestFetchesAndFailures(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	run1, err := db.StartRun(ctx, "sacred-texts", "crawl")
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	run2, err := db.StartRun(ctx, "other", "crawl")
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}

	fetches := []FetchRecord{
		{RunID: run1, URL: "https://sacred-texts.com/hin/rigveda/index.htm", Role: "work_index", StatusCode: 200, Bytes: 2048, Duration: 150 * time.Millisecond},
		{RunID: run1, URL: "https://sacred-texts.com/hin/rigveda/rv03.htm", Role: "leaf", StatusCode: 500, Error: "unexpected status 500"},
		{RunID: run1, URL: "https://sacred-texts.com/hin/rigveda/rv04.htm", Role: "leaf", Error: "timeout"},
		{RunID: run2, URL: "https://other.example/a.htm", Role: "leaf", StatusCode: 404, Error: "unexpected status 404"},
	}
	for i := range fetches {
		if err := db.RecordFetch(ctx, &fetches[i]); err != nil {
			t.Fatalf("failed to record fetch: %v", err)
		}
	}

	// A retry within the same run replaces the earlier attempt.
	retry := FetchRecord{RunID: run1, URL: "https://sacred-texts.com/hin/rigveda/rv04.htm", Role: "leaf", StatusCode: 200, Bytes: 900}
	if err := db.RecordFetch(ctx, &retry); err != nil {
		t.Fatalf("failed to record retry: %v", err)
	}

	t.Run("failures of one source", func(t *testing.T) {
		failures, err := db.ListFailures(ctx, "sacred-texts", "")
		if err != nil {
			t.Fatalf("failed to list failures: %v", err)
		}
		if len(failures) != 1 {
			t.Fatalf("expected 1 failure, got %d: %+v", len(failures), failures)
		}
		f := failures[0]
		if !strings.HasSuffix(f.URL, "rv03.htm") {
			t.Errorf("expected rv03 failure, got %q", f.URL)
		}
		if f.StatusCode != 500 || f.Error != "unexpected status 500" || f.Role != "leaf" {
			t.Errorf("unexpected failure: %+v", f)
		}
		if f.Timestamp.IsZero() {
			t.Error("expected timestamp to be parsed")
		}
	})

	t.Run("failures of every source", func(t *testing.T) {
		failures, err := db.ListFailures(ctx, "", "")
		if err != nil {
			t.Fatalf("failed to list failures: %v", err)
		}
		if len(failures) != 2 {
			t.Errorf("expected 2 failures, got %d", len(failures))
		}
	})

	t.Run("failures of one run", func(t *testing.T) {
		failures, err := db.ListFailures(ctx, "", run2)
		if err != nil {
			t.Fatalf("failed to list failures: %v", err)
		}
		if len(failures) != 1 || failures[0].StatusCode != 404 {
			t.Errorf("expected the 404 failure, got %+v", failures)
		}
	})

	t.Run("later success clears a failure", func(t *testing.T) {
		run3, err := db.StartRun(ctx, "sacred-texts", "crawl")
		if err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
		ok := FetchRecord{RunID: run3, URL: "https://sacred-texts.com/hin/rigveda/rv03.htm", Role: "leaf", StatusCode: 200}
		if err := db.RecordFetch(ctx, &ok); err != nil {
			t.Fatalf("failed to record fetch: %v", err)
		}

		failures, err := db.ListFailures(ctx, "sacred-texts", "")
		if err != nil {
			t.Fatalf("failed to list failures: %v", err)
		}
		if len(failures) != 0 {
			t.Errorf("expected no failures, got %+v", failures)
		}
	})
}

// TestRecords tests the ingested record ledger.
func TestRecords(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runID, err := db.StartRun(ctx, "sacred-texts", "crawl")
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}

	rigveda := model.NewCorpusRecord("sacred-texts", "https://sacred-texts.com/hin/rigveda/index.htm",
		model.Metadata{Title: "The Rig Veda"}, "Hymn 1")
	gita := model.NewCorpusRecord("sacred-texts", "https://sacred-texts.com/hin/gita/index.htm",
		model.Metadata{Title: "The Bhagavad Gita"}, "Chapter 1")
	republic := model.NewCorpusRecord("standard-ebooks", "plato/the-republic",
		model.Metadata{Title: "The Republic"}, "Book I")

	sink := db.Ledger(ctx, runID)
	for _, rec := range []*model.CorpusRecord{rigveda, gita, republic, rigveda} {
		if err := sink.Write(rec); err != nil {
			t.Fatalf("failed to write record: %v", err)
		}
	}

	titles, err := db.IngestedTitles(ctx, "sacred-texts")
	if err != nil {
		t.Fatalf("failed to list titles: %v", err)
	}
	if len(titles) != 2 || titles[0] != "The Bhagavad Gita" || titles[1] != "The Rig Veda" {
		t.Errorf("expected sorted sacred-texts titles, got %v", titles)
	}

	all, err := db.IngestedTitles(ctx, "")
	if err != nil {
		t.Fatalf("failed to list titles: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 titles, got %v", all)
	}

	ok, err := db.HasRecord(ctx, republic.Identifier)
	if err != nil {
		t.Fatalf("failed to check record: %v", err)
	}
	if !ok {
		t.Error("expected republic to be recorded")
	}

	ok, err = db.HasRecord(ctx, "missing")
	if err != nil {
		t.Fatalf("failed to check record: %v", err)
	}
	if ok {
		t.Error("expected unknown identifier to be absent")
	}
}

// TestLedgerSink_Cancelled tests that records are kept after cancellation.
func TestLedgerSink_Cancelled(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	runID, err := db.StartRun(ctx, "sacred-texts", "crawl")
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	sink := db.Ledger(ctx, runID)
	cancel()

	rec := model.NewCorpusRecord("sacred-texts", "partial", model.Metadata{Title: "Partial Work"}, "Hymn 1")
	if err := sink.Write(rec); err != nil {
		t.Fatalf("expected write after cancel to succeed, got %v", err)
	}
}

// TestParseTimestamp tests timestamp parsing across formats.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		zero bool
	}{
		{"sqlite default", "2026-03-04 05:06:07", false},
		{"iso with Z", "2026-03-04T05:06:07Z", false},
		{"iso without zone", "2026-03-04T05:06:07", false},
		{"empty", "", true},
		{"garbage", "yesterday", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parseTimestamp(tt.in)
			if tt.zero {
				if !got.IsZero() {
					t.Errorf("expected zero time, got %v", got)
				}
				return
			}
			if !got.Equal(want) {
				t.Errorf("expected %v, got %v", want, got)
			}
		})
	}
}
