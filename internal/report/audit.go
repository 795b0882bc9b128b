package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nao1215/corpuscrawl/internal/assemble"
	"github.com/nao1215/corpuscrawl/internal/corpus"
	"github.com/nao1215/corpuscrawl/internal/model"
)

// auditColumns is the fixed header of the audit CSV.
var auditColumns = []string{"filename", "author", "translator", "year", "risk_score", "reason"}

// unknown is written for author and translator when the header has none.
const unknown = "Unknown"

// AuditRow is one line of the audit report.
type AuditRow struct {
	Filename   string               `json:"filename"`
	Title      string               `json:"title"`
	Author     string               `json:"author"`
	Translator string               `json:"translator"`
	Assessment model.RiskAssessment `json:"assessment"`
}

// Record returns the CSV fields of r in column order. The year column is
// empty when no year was found.
func (r AuditRow) Record() []string {
	year := ""
	if r.Assessment.Year > 0 {
		year = strconv.Itoa(r.Assessment.Year)
	}
	return []string{
		r.Filename,
		orUnknown(r.Author),
		orUnknown(r.Translator),
		year,
		r.Assessment.Status.String(),
		r.Assessment.Reason,
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}

// Auditor classifies per-document files or records into audit rows.
type Auditor struct {
	classifier *assemble.Classifier
	logger     *slog.Logger
}

// AuditorOption configures an Auditor.
type AuditorOption func(*Auditor)

// WithAuditLogger sets the logger used for skipped or unreadable inputs.
func WithAuditLogger(logger *slog.Logger) AuditorOption {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuditor creates an Auditor using classifier. A nil classifier has
// empty lists and the default threshold.
func NewAuditor(classifier *assemble.Classifier, opts ...AuditorOption) *Auditor {
	if classifier == nil {
		classifier = assemble.NewClassifier()
	}
	a := &Auditor{
		classifier: classifier,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess returns the audit row for one document.
func (a *Auditor) Assess(filename string, meta model.Metadata) AuditRow {
	return AuditRow{
		Filename:   filename,
		Title:      meta.Title,
		Author:     meta.Author,
		Translator: meta.Translator,
		Assessment: a.classifier.Assess(meta),
	}
}

// AuditDocuments walks dir for per-document .txt files and assesses each
// header. Files are visited in lexical order. A file whose header cannot be
// read is still reported, with its name as title and no translator.
func (a *Auditor) AuditDocuments(dir string) ([]AuditRow, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read document directory: %w", err)
	}

	var rows []AuditRow
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			return nil
		}

		header, _, err := corpus.ReadDocumentFile(path)
		if err != nil {
			a.logger.Warn("invalid document header", "file", d.Name(), "error", err)
			rows = append(rows, a.Assess(d.Name(), model.Metadata{Title: d.Name()}))
			return nil
		}
		rows = append(rows, a.Assess(d.Name(), header.Metadata()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk document directory: %w", err)
	}
	return rows, nil
}

// AuditRecords assesses every record in a JSON Lines record stream. The
// filename column is the record's archive filename when it has one and its
// per-document file name otherwise.
func (a *Auditor) AuditRecords(path string) ([]AuditRow, error) {
	var rows []AuditRow
	err := corpus.ReadRecords(path, func(rec *model.CorpusRecord) error {
		name := rec.Metadata.Filename
		if name == "" {
			name = corpus.DocumentFilename(rec)
		}
		rows = append(rows, a.Assess(name, rec.Metadata))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// WriteAuditCSV writes rows as CSV with a header line.
func WriteAuditCSV(w io.Writer, rows []AuditRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditColumns); err != nil {
		return fmt.Errorf("failed to write audit header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("failed to write audit row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAuditFile replaces the file at path with the CSV report of rows.
func WriteAuditFile(path string, rows []AuditRow) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path is user-specified report destination
	if err != nil {
		return fmt.Errorf("failed to create audit report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return WriteAuditCSV(f, rows)
}
