package report

import (
	"io"
	"time"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// AuditSummary is an audit run ready for display: the rows plus counts per
// risk status.
type AuditSummary struct {
	// Input is the directory or record stream that was audited.
	Input string `json:"input"`

	GeneratedAt time.Time `json:"generated_at"`

	Safe   int `json:"safe"`
	Review int `json:"review"`
	High   int `json:"high_risk"`

	Rows []AuditRow `json:"rows"`
}

// NewAuditSummary counts rows by status.
func NewAuditSummary(input string, rows []AuditRow) *AuditSummary {
	s := &AuditSummary{
		Input:       input,
		GeneratedAt: time.Now(),
		Rows:        rows,
	}
	for _, r := range rows {
		switch r.Assessment.Status {
		case model.RiskSafe:
			s.Safe++
		case model.RiskReview:
			s.Review++
		case model.RiskHigh:
			s.High++
		}
	}
	return s
}

// Total returns the number of audited documents.
func (s *AuditSummary) Total() int {
	return len(s.Rows)
}

// ByStatus returns the rows with status, in input order.
func (s *AuditSummary) ByStatus(status model.RiskStatus) []AuditRow {
	var out []AuditRow
	for _, r := range s.Rows {
		if r.Assessment.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// Writer defines the interface for audit summary output.
//
// Design decision: We use an interface so the audit command can print to
// the terminal and write a file with the same call.
type Writer interface {
	// Write outputs the summary and returns the number of bytes written.
	Write(summary *AuditSummary) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to every Writer and stops on the first error.
func (m *MultiWriter) Write(summary *AuditSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
