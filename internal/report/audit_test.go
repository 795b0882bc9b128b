package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/corpuscrawl/internal/assemble"
	"github.com/nao1215/corpuscrawl/internal/corpus"
	"github.com/nao1215/corpuscrawl/internal/model"
)

func testClassifier() *assemble.Classifier {
	return assemble.NewClassifier(
		assemble.WithSafeList([]string{"Jowett"}),
		assemble.WithBlockedList([]string{"Blocked"}),
	)
}

// TestAuditRow_Record tests CSV field order and defaults.
func TestAuditRow_Record(t *testing.T) {
	t.Parallel()

	a := NewAuditor(testClassifier())

	t.Run("blocked translator wins over old year", func(t *testing.T) {
		t.Parallel()

		row := a.Assess("iliad.txt", model.Metadata{Author: "Homer", Translator: "Jane Blocked", Date: "1800"})
		want := []string{"iliad.txt", "Homer", "Jane Blocked", "1800", "HIGH_RISK", "Blocked Translator: Jane Blocked"}
		if got := row.Record(); strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("unknown fields", func(t *testing.T) {
		t.Parallel()

		got := a.Assess("x.txt", model.Metadata{}).Record()
		if got[1] != "Unknown" || got[2] != "Unknown" {
			t.Errorf("expected Unknown author and translator, got %v", got)
		}
		if got[3] != "" {
			t.Errorf("expected empty year, got %q", got[3])
		}
		if got[4] != "REVIEW" {
			t.Errorf("expected REVIEW, got %q", got[4])
		}
	})

	t.Run("nil classifier uses defaults", func(t *testing.T) {
		t.Parallel()

		got := NewAuditor(nil).Assess("new.txt", model.Metadata{Date: "2004"}).Record()
		if got[4] != "HIGH_RISK" {
			t.Errorf("expected HIGH_RISK for 2004, got %q", got[4])
		}
	})
}

// TestAuditor_AuditDocuments tests walking per-document files.
func TestAuditor_AuditDocuments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	docs := map[string]model.DocumentHeader{
		"b_republic.txt": {Title: "The Republic", Author: "Plato", Translator: "Benjamin Jowett", Date: "1871"},
		filepath.Join("nested", "c_modern.txt"): {Title: "Modern", Date: "published 1995"},
	}
	for name, h := range docs {
		if err := corpus.WriteDocumentFile(filepath.Join(dir, name), h, "text"); err != nil {
			t.Fatalf("failed to write document: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "a_broken.txt"), []byte("no header here"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	rows, err := NewAuditor(testClassifier(), WithAuditLogger(quietLogger())).AuditDocuments(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(rows), rows)
	}

	if rows[0].Filename != "a_broken.txt" || rows[0].Title != "a_broken.txt" {
		t.Errorf("expected broken file reported by name, got %+v", rows[0])
	}
	if rows[0].Assessment.Status != model.RiskReview {
		t.Errorf("expected REVIEW for broken header, got %v", rows[0].Assessment.Status)
	}
	if rows[1].Assessment.Status != model.RiskSafe || rows[1].Assessment.Reason != "Safe Translator: Benjamin Jowett" {
		t.Errorf("unexpected republic assessment: %+v", rows[1].Assessment)
	}
	if rows[2].Filename != "c_modern.txt" || rows[2].Assessment.Status != model.RiskHigh {
		t.Errorf("unexpected modern row: %+v", rows[2])
	}

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()

		if _, err := NewAuditor(nil).AuditDocuments(filepath.Join(dir, "missing")); err == nil {
			t.Error("expected error for missing directory")
		}
	})
}

// TestAuditor_AuditRecords tests auditing a record stream.
func TestAuditor_AuditRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	rw, err := corpus.OpenRecordWriter(path)
	if err != nil {
		t.Fatalf("failed to open writer: %v", err)
	}
	withFile := model.NewCorpusRecord("standard-ebooks", "plato/the-republic",
		model.Metadata{Title: "The Republic", Translator: "Benjamin Jowett", Filename: "plato_the-republic.epub"}, "Book I")
	withoutFile := model.NewCorpusRecord("sacred-texts", "https://sacred-texts.com/hin/rigveda/index.htm",
		model.Metadata{Title: "The Rig Veda", Date: "1896"}, "Hymn 1")
	for _, rec := range []*model.CorpusRecord{withFile, withoutFile} {
		if err := rw.Write(rec); err != nil {
			t.Fatalf("failed to write record: %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	rows, err := NewAuditor(testClassifier()).AuditRecords(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Filename != "plato_the-republic.epub" {
		t.Errorf("expected archive filename, got %q", rows[0].Filename)
	}
	if rows[1].Filename != corpus.DocumentFilename(withoutFile) {
		t.Errorf("expected document filename, got %q", rows[1].Filename)
	}
	if rows[1].Assessment.Reason != "Pre-1930 (1896)" {
		t.Errorf("expected pre-1930 reason, got %q", rows[1].Assessment.Reason)
	}
}

// TestWriteAuditFile tests the CSV report and full overwrite.
func TestWriteAuditFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reports", "copyright_audit.csv")
	a := NewAuditor(testClassifier())
	first := []AuditRow{
		a.Assess("one.txt", model.Metadata{Author: "Plato", Translator: "Benjamin Jowett"}),
		a.Assess("two, with comma.txt", model.Metadata{Date: "1850"}),
	}
	if err := WriteAuditFile(path, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open report: %v", err)
	}
	records, err := csv.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		t.Fatalf("failed to parse report: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "filename,author,translator,year,risk_score,reason" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[2][0] != "two, with comma.txt" || records[2][3] != "1850" {
		t.Errorf("unexpected row: %v", records[2])
	}

	// A second run replaces the report.
	if err := WriteAuditFile(path, first[:1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("expected 2 lines after overwrite, got %d", n)
	}
}

// TestWriteAuditCSV_Empty tests that an empty audit still has a header.
func TestWriteAuditCSV_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteAuditCSV(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "filename,author,translator,year,risk_score,reason\n" {
		t.Errorf("expected header only, got %q", buf.String())
	}
}
