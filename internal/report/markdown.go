package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// MarkdownWriter outputs audit summaries in Markdown format for sharing
// with whoever reviews the flagged documents.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Tables and mermaid charts without hand-built strings
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *AuditSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Copyright Audit")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Input", "`" + summary.Input + "`"},
			{"Generated", summary.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Documents", strconv.Itoa(summary.Total())},
		},
	})
	md.PlainText("")

	w.writeCounts(md, summary)
	w.writeRows(md, "High Risk", summary.ByStatus(model.RiskHigh))
	w.writeRows(md, "Needs Review", summary.ByStatus(model.RiskReview))

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Generated by corpuscrawl. Risk scores are heuristics, not legal advice.*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeCounts(md *markdown.Markdown, summary *AuditSummary) {
	md.H2("Risk Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows: [][]string{
			{"🟢 SAFE", strconv.Itoa(summary.Safe)},
			{"🟡 REVIEW", strconv.Itoa(summary.Review)},
			{"🔴 HIGH_RISK", strconv.Itoa(summary.High)},
			{"**Total**", "**" + strconv.Itoa(summary.Total()) + "**"},
		},
	})
	md.PlainText("")

	if summary.Total() > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Risk Distribution"),
			piechart.WithShowData(true),
		)
		if summary.Safe > 0 {
			chart.LabelAndIntValue("Safe", uint64(summary.Safe))
		}
		if summary.Review > 0 {
			chart.LabelAndIntValue("Review", uint64(summary.Review))
		}
		if summary.High > 0 {
			chart.LabelAndIntValue("High risk", uint64(summary.High))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case summary.High > 0:
		md.Warningf("%d document(s) are likely still under copyright and should not be published.", summary.High)
	case summary.Review > 0:
		md.Importantf("%d document(s) need a human decision.", summary.Review)
	default:
		md.Tip("Every audited document matched a safe rule.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeRows(md *markdown.Markdown, title string, rows []AuditRow) {
	if len(rows) == 0 {
		return
	}
	md.H2(title)
	md.PlainText("")

	table := make([][]string, len(rows))
	for i, r := range rows {
		rec := r.Record()
		table[i] = []string{
			truncateString(rec[0], 50),
			truncateString(rec[1], 30),
			truncateString(rec[2], 30),
			rec[3],
			rec[5],
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"File", "Author", "Translator", "Year", "Reason"},
		Rows:   table,
	})
	md.PlainText("")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
