package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// SimpleWriter outputs a human-readable audit summary for the terminal.
//
// Design decision: We use plain text with ASCII rules rather than ANSI
// colors because the summary is often piped into a file next to the CSV.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints status sections that have no rows.
	showEmpty bool

	// verbose lists SAFE rows too.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose lists every row, including SAFE ones.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *AuditSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCounts(&sb, summary)

	w.writeSection(&sb, model.RiskHigh, summary.ByStatus(model.RiskHigh))
	w.writeSection(&sb, model.RiskReview, summary.ByStatus(model.RiskReview))
	if w.verbose {
		w.writeSection(&sb, model.RiskSafe, summary.ByStatus(model.RiskSafe))
	}

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *AuditSummary) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       CORPUSCRAWL COPYRIGHT AUDIT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Input:     %s\n", summary.Input)
	fmt.Fprintf(sb, "Generated: %s\n\n", summary.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
}

func (w *SimpleWriter) writeCounts(sb *strings.Builder, summary *AuditSummary) {
	fmt.Fprintf(sb, "  SAFE:      %d\n", summary.Safe)
	fmt.Fprintf(sb, "  REVIEW:    %d\n", summary.Review)
	fmt.Fprintf(sb, "  HIGH_RISK: %d\n\n", summary.High)
	fmt.Fprintf(sb, "  TOTAL:     %d documents\n\n", summary.Total())
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, status model.RiskStatus, rows []AuditRow) {
	if len(rows) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(status.String())
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(rows) == 0 {
		sb.WriteString("  No documents\n\n")
		return
	}
	for _, r := range rows {
		fmt.Fprintf(sb, "  * %s\n", r.Filename)
		fmt.Fprintf(sb, "    Reason: %s\n", r.Assessment.Reason)
		if r.Translator != "" {
			fmt.Fprintf(sb, "    Translator: %s\n", r.Translator)
		}
	}
	sb.WriteString("\n")
}
