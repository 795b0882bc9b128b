package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/corpuscrawl/internal/corpus"
	"github.com/nao1215/corpuscrawl/internal/database"
	"github.com/nao1215/corpuscrawl/internal/model"
)

func htmlPage(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

// archiveServer serves a root index, one tradition and a three-chapter
// work whose last chapter fails.
func archiveServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	serve := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		})
	}
	serve("/index.htm", htmlPage("Sacred Texts", `<a href="/hin/index.htm">Hinduism</a>`))
	serve("/hin/index.htm", htmlPage("Hinduism", `<a href="rigveda/index.htm">The Rig Veda</a>`))
	serve("/hin/rigveda/index.htm", htmlPage("The Rig Veda",
		`<a href="rv01.htm">Hymn 1</a> <a href="rv02.htm">Hymn 2</a> <a href="rv03.htm">Hymn 3</a>`))
	serve("/hin/rigveda/rv01.htm", htmlPage("Hymn 1", "<p>Translated by Ralph T.H. Griffith</p><p>Agni I laud.</p>"))
	serve("/hin/rigveda/rv02.htm", htmlPage("Hymn 2", "<p>Beautiful Vayu, come.</p>"))
	mux.HandleFunc("/hin/rigveda/rv03.htm", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func readCorpus(t *testing.T, path string) []*model.CorpusRecord {
	t.Helper()
	var recs []*model.CorpusRecord
	err := corpus.ReadRecords(path, func(rec *model.CorpusRecord) error {
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read records: %v", err)
	}
	return recs
}

func TestCrawlCmd_ResumesAndRecordsFailures(t *testing.T) {
	srv := archiveServer(t)
	cfgPath := writeConfig(t, `sources:
  test-archive:
    name: Test Archive
    startURLs:
      - `+srv.URL+`/index.htm
    minDelay: 1ms
    maxDelay: 1ms
    ignoreRobots: true
`)
	dataDir := t.TempDir()
	docs := filepath.Join(t.TempDir(), "texts")

	out, err := executeCommand(t, "crawl", "test-archive", "-c", cfgPath, "-D", dataDir, "--documents", docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Crawling Test Archive") || !strings.Contains(out, "Records: 1") ||
		!strings.Contains(out, "Visited: 6") {
		t.Errorf("unexpected crawl output: %q", out)
	}

	outputPath := filepath.Join(dataDir, "corpus.jsonl")
	recs := readCorpus(t, outputPath)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Metadata.Title != "The Rig Veda" {
		t.Errorf("expected work title, got %q", recs[0].Metadata.Title)
	}
	if recs[0].Metadata.Translator != "Ralph T.H. Griffith" {
		t.Errorf("expected translator, got %q", recs[0].Metadata.Translator)
	}
	if strings.Contains(recs[0].Text, "boom") {
		t.Error("expected failed chapter to be left out")
	}
	entries, err := os.ReadDir(docs)
	if err != nil || len(entries) != 1 {
		t.Errorf("expected one document file, got %d (%v)", len(entries), err)
	}

	// A second run finds the work already harvested.
	if _, err := executeCommand(t, "crawl", "test-archive", "-c", cfgPath, "-D", dataDir); err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if recs := readCorpus(t, outputPath); len(recs) != 1 {
		t.Errorf("expected no new records on resume, got %d", len(recs))
	}

	out, err = executeCommand(t, "failures", "--data-dir", dataDir, "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var failures []database.FetchRecord
	if err := json.Unmarshal([]byte(out), &failures); err != nil {
		t.Fatalf("expected JSON failures, got %q: %v", out, err)
	}
	if len(failures) != 1 || !strings.HasSuffix(failures[0].URL, "/hin/rigveda/rv03.htm") {
		t.Errorf("expected chapter 3 as the only failure, got %+v", failures)
	}
	if failures[0].StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", failures[0].StatusCode)
	}

	out, err = executeCommand(t, "failures", "Test Archive", "--data-dir", dataDir, "--runs", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var runs []database.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("expected JSON runs, got %q: %v", out, err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.Status != database.StatusCompleted {
			t.Errorf("expected completed run, got %q", r.Status)
		}
	}

	out, err = executeCommand(t, "failures", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Outstanding failures (1)") {
		t.Errorf("expected failure table, got %q", out)
	}
}

func TestCrawlCmd_NoDatabase(t *testing.T) {
	srv := archiveServer(t)
	cfgPath := writeConfig(t, `sources:
  test-archive:
    startURLs: [`+srv.URL+`/index.htm]
    minDelay: 1ms
    maxDelay: 1ms
    ignoreRobots: true
`)
	dataDir := t.TempDir()
	output := filepath.Join(t.TempDir(), "out.jsonl")

	if _, err := executeCommand(t, "crawl", "test-archive", "-c", cfgPath, "-D", dataDir, "-o", output, "--no-db"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recs := readCorpus(t, output); len(recs) != 1 {
		t.Errorf("expected 1 record, got %d", len(recs))
	}
	if _, err := os.Stat(filepath.Join(dataDir, "corpus.jsonl")); !os.IsNotExist(err) {
		t.Error("expected the default output not to be written")
	}
	entries, _ := os.ReadDir(dataDir)
	if len(entries) != 0 {
		t.Errorf("expected no database in data dir, got %d entries", len(entries))
	}
}

func TestCrawlCmd_Errors(t *testing.T) {
	cfgPath := writeConfig(t, `sources:
  alpha:
    startURLs: [http://127.0.0.1:1/index.htm]
  beta:
    startURLs: [http://127.0.0.1:1/index.htm]
    minDelay: 10s
    maxDelay: 1s
`)

	t.Run("unknown source lists configured ones", func(t *testing.T) {
		_, err := executeCommand(t, "crawl", "gamma", "-c", cfgPath, "-D", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "[alpha beta]") {
			t.Errorf("expected configured sources in error, got %v", err)
		}
	})

	t.Run("invalid delays", func(t *testing.T) {
		_, err := executeCommand(t, "crawl", "beta", "-c", cfgPath, "-D", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "source beta") {
			t.Errorf("expected source validation error, got %v", err)
		}
	})

	t.Run("missing explicit config", func(t *testing.T) {
		_, err := executeCommand(t, "crawl", "alpha", "-c", filepath.Join(t.TempDir(), "none.yaml"))
		if err == nil || !strings.Contains(err.Error(), "configuration file not found") {
			t.Errorf("expected missing config error, got %v", err)
		}
	})

	t.Run("requires a source argument", func(t *testing.T) {
		if _, err := executeCommand(t, "crawl"); err == nil {
			t.Error("expected argument error")
		}
	})
}
