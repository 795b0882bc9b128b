package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/database"
	"github.com/spf13/cobra"
)

// timeFormat is used for timestamps in listings.
const timeFormat = "2006-01-02 15:04:05"

// NewFailuresCmd creates the failures command.
func NewFailuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures [source]",
		Short: "List URLs that failed in earlier runs",
		Long: `Failures lists the URLs whose latest fetch attempt failed, as recorded in
the crawl database. A URL fetched successfully by a later run is no longer
listed. Use the list to retry by hand or to add ignore patterns.

Examples:
  # All outstanding failures
  corpuscrawl failures

  # Failures of one source, as JSON
  corpuscrawl failures sacred-texts --json

  # Show the runs of a source, then the failures of one run
  corpuscrawl failures sacred-texts --runs
  corpuscrawl failures --run 3f0c...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFailuresCmd,
	}

	cmd.Flags().StringP("data-dir", "D", "",
		"Directory holding the crawl database (default: XDG data directory)")
	cmd.Flags().String("run", "",
		"Only list failures of this run ID")
	cmd.Flags().BoolP("runs", "l", false,
		"List runs instead of failures")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")

	return cmd
}

// runFailuresCmd executes the failures command.
func runFailuresCmd(cmd *cobra.Command, args []string) error {
	var source string
	if len(args) > 0 {
		source = args[0]
	}
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = config.XDGDataDir()
	}
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	listRuns, err := cmd.Flags().GetBool("runs")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// The listing commands never create a database.
	db, err := database.Open(dataDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()
	if listRuns {
		return printRuns(ctx, out, db, source, jsonOutput)
	}
	return printFailures(ctx, out, db, source, runID, jsonOutput)
}

// printFailures lists outstanding failures.
func printFailures(ctx context.Context, out io.Writer, db *database.CrawlDB, source, runID string, jsonOutput bool) error {
	failures, err := db.ListFailures(ctx, source, runID)
	if err != nil {
		return err
	}

	if jsonOutput {
		if failures == nil {
			failures = []database.FetchRecord{}
		}
		return writeJSON(out, failures)
	}

	if len(failures) == 0 {
		fmt.Fprintln(out, "No outstanding failures.")
		return nil
	}

	fmt.Fprintf(out, "Outstanding failures (%d):\n\n", len(failures))
	fmt.Fprintf(out, "  %-19s  %-10s  %-6s  %s\n", "Date", "Role", "Status", "URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 72))
	for _, f := range failures {
		status := "-"
		if f.StatusCode > 0 {
			status = fmt.Sprintf("%d", f.StatusCode)
		}
		fmt.Fprintf(out, "  %-19s  %-10s  %-6s  %s\n", f.Timestamp.Format(timeFormat), f.Role, status, f.URL)
		fmt.Fprintf(out, "  %19s  %s\n", "", f.Error)
	}
	return nil
}

// printRuns lists stored runs, newest first.
func printRuns(ctx context.Context, out io.Writer, db *database.CrawlDB, source string, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, source)
	if err != nil {
		return err
	}

	if jsonOutput {
		if runs == nil {
			runs = []database.Run{}
		}
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(out, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-36s  %-16s  %-19s  %-11s  %s\n", "ID", "Source", "Started", "Status", "Fetched/Failed/Records")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 110))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-16s  %-19s  %-11s  %d/%d/%d\n",
			r.ID, r.Source, r.StartedAt.Format(timeFormat), r.Status, r.Fetched, r.Failed, r.Records)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
