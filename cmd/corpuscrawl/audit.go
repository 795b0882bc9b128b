package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/corpuscrawl/internal/assemble"
	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/report"
	"github.com/spf13/cobra"
)

// Summary formats accepted by --summary.
const (
	summaryText     = "text"
	summaryMarkdown = "markdown"
	summaryJSON     = "json"
	summaryNone     = "none"
)

// defaultAuditFile is the CSV report written by audit.
const defaultAuditFile = "copyright_audit.csv"

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [document-dir]",
		Short: "Classify harvested documents by copyright risk",
		Long: `Audit classifies every harvested document as SAFE, REVIEW or HIGH_RISK
from its translator and publication year, and writes a CSV report
(filename, author, translator, year, risk_score, reason). The report is
replaced on every run.

The rules, first match wins:
  1. translator matches the blocked list   -> HIGH_RISK
  2. translator matches the safe list      -> SAFE
  3. published before 1930                 -> SAFE
  4. published in or after --threshold     -> HIGH_RISK
  5. anything else                         -> REVIEW

The translator lists are JSON arrays of name fragments, matched
case-insensitively. A missing list is treated as empty.

With a directory argument, the per-document text files in it are audited.
Without one, the record stream is audited.

Examples:
  # Audit per-document files
  corpuscrawl audit texts/

  # Audit a record stream and print a Markdown summary
  corpuscrawl audit --records corpus.jsonl --summary markdown

  # Use custom translator lists
  corpuscrawl audit texts/ --safe-list safe.json --blocked-list blocked.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAuditCmd,
	}

	defaults := config.NewConfig()
	cmd.Flags().StringP("records", "r", defaults.OutputPath,
		"Record stream to audit when no document directory is given")
	cmd.Flags().StringP("output", "o", defaultAuditFile,
		"CSV report path")
	cmd.Flags().String("safe-list", defaults.SafeListPath,
		"JSON array of safe translator name fragments")
	cmd.Flags().String("blocked-list", defaults.BlockedListPath,
		"JSON array of blocked translator name fragments")
	cmd.Flags().Int("threshold", config.DefaultModernThreshold,
		"First publication year classified as HIGH_RISK")
	cmd.Flags().StringP("summary", "s", summaryText,
		"Summary printed to stdout: text, markdown, json or none")

	return cmd
}

// runAuditCmd executes the audit command.
func runAuditCmd(cmd *cobra.Command, args []string) error {
	recordsPath, err := cmd.Flags().GetString("records")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	safePath, err := cmd.Flags().GetString("safe-list")
	if err != nil {
		return err
	}
	blockedPath, err := cmd.Flags().GetString("blocked-list")
	if err != nil {
		return err
	}
	threshold, err := cmd.Flags().GetInt("threshold")
	if err != nil {
		return err
	}
	summaryFormat, err := cmd.Flags().GetString("summary")
	if err != nil {
		return err
	}

	verbose := getVerboseFlag(cmd)
	out := cmd.OutOrStdout()
	writer, err := newSummaryWriter(out, summaryFormat, verbose)
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	cfg.ModernThreshold = threshold
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := setupLogger(cmd, verbose)
	if err != nil {
		return err
	}
	classifier, err := assemble.LoadClassifier(safePath, blockedPath, threshold, logger)
	if err != nil {
		return err
	}
	auditor := report.NewAuditor(classifier, report.WithAuditLogger(logger))

	var (
		rows  []report.AuditRow
		input string
	)
	if len(args) > 0 {
		input = args[0]
		rows, err = auditor.AuditDocuments(input)
	} else {
		input = recordsPath
		if _, serr := os.Stat(recordsPath); serr != nil {
			return fmt.Errorf("record stream not found: %s", recordsPath)
		}
		rows, err = auditor.AuditRecords(input)
	}
	if err != nil {
		return err
	}

	if err := report.WriteAuditFile(outputPath, rows); err != nil {
		return err
	}
	logger.Info("audit report written", "path", outputPath, "rows", len(rows))

	if writer != nil {
		summary := report.NewAuditSummary(filepath.Clean(input), rows)
		if _, err := writer.Write(summary); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	if summaryFormat != summaryJSON {
		fmt.Fprintf(out, "\nAudit report saved to %s\n", outputPath)
	}
	return nil
}

// newSummaryWriter returns the writer for format, or nil for "none".
func newSummaryWriter(out io.Writer, format string, verbose bool) (report.Writer, error) {
	switch format {
	case summaryText:
		return report.NewSimpleWriter(out, report.WithVerbose(verbose)), nil
	case summaryMarkdown:
		return report.NewMarkdownWriter(out), nil
	case summaryJSON:
		return report.NewJSONWriter(out, report.WithPrettyPrint()), nil
	case summaryNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown summary format %q (want text, markdown, json or none)", format)
	}
}
