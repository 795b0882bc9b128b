package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nao1215/corpuscrawl/internal/assemble"
	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/corpus"
	"github.com/nao1215/corpuscrawl/internal/crawler"
	"github.com/nao1215/corpuscrawl/internal/database"
	"github.com/nao1215/corpuscrawl/internal/pipeline"
	"github.com/spf13/cobra"
)

// crawlOptions are the crawl-only settings not carried by config.Config.
type crawlOptions struct {
	retries    int
	retryDelay time.Duration
	maxPages   int
}

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <source>",
		Short: "Harvest a configured source into the corpus",
		Long: `Crawl harvests one source from the configuration file.

A crawl source is walked from its start URLs. Index pages are mined for
links, work indexes are expanded into their chapters, and leaf pages become
records. Multi-chapter works are stitched into one record in chapter order;
chapters that fail are left out rather than failing the work.

A catalog source runs the catalog, download and extract phases in order.

Records are appended to the output stream. Records already present (by
identifier) are not written again, so an interrupted crawl can be resumed by
running it again. On Ctrl-C no new page is requested, pages already being
fetched finish, and works in progress are written with the chapters that
completed (see --no-flush-partial).

Examples:
  # Crawl a source described in .corpuscrawl
  corpuscrawl crawl sacred-texts

  # Write records to a specific file and per-document text files
  corpuscrawl crawl sacred-texts -o corpus.jsonl --documents texts/

  # Retry failed pages up to 3 times
  corpuscrawl crawl sacred-texts --retries 3`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	addSourceFlags(cmd)
	cmd.Flags().Bool("no-flush-partial", false,
		"Drop works still being stitched when the crawl is interrupted")
	cmd.Flags().Int("retries", 1,
		"Total attempts per page, including the first")
	cmd.Flags().Duration("retry-delay", 5*time.Second,
		"Delay before the first retry; doubles per attempt")
	cmd.Flags().Int("max-pages", 0,
		"Listing pages walked per subject for catalog sources (0 = unlimited)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	noFlush, err := cmd.Flags().GetBool("no-flush-partial")
	if err != nil {
		return err
	}
	cfg.FlushPartial = !noFlush

	var opts crawlOptions
	if opts.retries, err = cmd.Flags().GetInt("retries"); err != nil {
		return err
	}
	if opts.retryDelay, err = cmd.Flags().GetDuration("retry-delay"); err != nil {
		return err
	}
	if opts.maxPages, err = cmd.Flags().GetInt("max-pages"); err != nil {
		return err
	}

	source, err := selectSource(cfg)
	if err != nil {
		return err
	}

	logger, err := setupLogger(cmd, cfg.Verbose)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	if source.IsCatalog() {
		phases := []string{pipeline.PhaseCatalog, pipeline.PhaseDownload, pipeline.PhaseExtract}
		return runHarvest(ctx, cmd.OutOrStdout(), cfg, source, phases, opts.maxPages, logger)
	}
	return runCrawl(ctx, cmd.OutOrStdout(), cfg, source, opts, logger)
}

// runCrawl crawls source with a Session and records the run.
func runCrawl(ctx context.Context, out io.Writer, cfg *config.Config, source config.SourceConfig, opts crawlOptions, logger *slog.Logger) (err error) {
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	var runID string
	if db != nil {
		defer db.Close()
		if runID, err = db.StartRun(ctx, source.Name, source.Kind); err != nil {
			return err
		}
	}

	sinks, err := openRecordSinks(ctx, cfg, db, runID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sinks.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	titles, err := crawlTitleFilter(ctx, cfg, source, db, logger)
	if err != nil {
		return err
	}

	sessionOpts := []crawler.SessionOption{
		crawler.WithWorkers(cfg.Workers),
		crawler.WithFlushPartial(cfg.FlushPartial),
		crawler.WithTitleFilter(titles),
		crawler.WithLogger(logger),
	}
	if opts.retries > 1 {
		sessionOpts = append(sessionOpts, crawler.WithRetryPolicy(crawler.Backoff{
			MaxAttempts: opts.retries,
			Base:        opts.retryDelay,
			Max:         8 * opts.retryDelay,
		}))
	}
	if db != nil {
		sessionOpts = append(sessionOpts, crawler.WithFetchHook(fetchRecorder(db, runID, logger)))
	}

	logger.Info("starting crawl",
		"source", source.Name,
		"startURLs", source.StartURLs,
		"workers", cfg.Workers,
		"output", cfg.OutputPath,
	)
	fmt.Fprintf(out, "Crawling %s...\n", source.Name)
	startTime := time.Now()

	session := crawler.NewSession(newFetcher(cfg, source), source, sinks.sink, sessionOpts...)
	stats, runErr := session.Run(ctx)

	if db != nil {
		summary := database.RunSummary{
			Status:  finishStatus(runErr),
			Fetched: stats.Fetched,
			Failed:  stats.Failed,
			Records: stats.Records,
			Skipped: stats.Skipped,
		}
		if ferr := db.FinishRun(context.WithoutCancel(ctx), runID, summary); ferr != nil {
			logger.Error("failed to finish run", "run", runID, "error", ferr)
		}
	}

	printCrawlStats(out, stats, time.Since(startTime))
	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(out, "Crawl interrupted; run it again to resume.")
		return nil
	}
	return runErr
}

// crawlTitleFilter collects the titles a crawl skips: the dedup catalog,
// titles already in the output stream and titles the database recorded for
// the source.
func crawlTitleFilter(ctx context.Context, cfg *config.Config, source config.SourceConfig, db *database.CrawlDB, logger *slog.Logger) (*assemble.TitleBlockList, error) {
	list, err := dedupTitles(source, logger)
	if err != nil {
		return nil, err
	}
	existing, err := corpus.ReadTitles(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing records: %w", err)
	}
	for _, t := range existing {
		list.Add(t)
	}
	if db != nil {
		ingested, err := db.IngestedTitles(ctx, source.Name)
		if err != nil {
			return nil, err
		}
		for _, t := range ingested {
			list.Add(t)
		}
	}
	logger.Debug("title filter ready", "titles", list.Len())
	return list, nil
}

// fetchRecorder returns a fetch hook storing every attempt in db.
func fetchRecorder(db *database.CrawlDB, runID string, logger *slog.Logger) func(context.Context, crawler.FetchEvent) {
	return func(ctx context.Context, ev crawler.FetchEvent) {
		rec := &database.FetchRecord{
			RunID:      runID,
			URL:        ev.URL,
			Role:       ev.Role.String(),
			StatusCode: ev.Status,
			Bytes:      ev.Bytes,
			Duration:   ev.Duration,
		}
		if ev.Err != nil {
			rec.Error = ev.Err.Error()
		}
		// Attempts finishing during shutdown are still worth keeping.
		if err := db.RecordFetch(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("failed to record fetch", "url", ev.URL, "error", err)
		}
	}
}

func printCrawlStats(out io.Writer, stats crawler.Stats, elapsed time.Duration) {
	fmt.Fprintf(out, "\nCrawl finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  Visited: %d\n", stats.Visited)
	fmt.Fprintf(out, "  Fetched: %d\n", stats.Fetched)
	fmt.Fprintf(out, "  Failed:  %d\n", stats.Failed)
	fmt.Fprintf(out, "  Skipped: %d\n", stats.Skipped)
	fmt.Fprintf(out, "  Records: %d\n", stats.Records)
	if stats.Works > 0 {
		fmt.Fprintf(out, "  Works:   %d (%d partial, %d dropped)\n", stats.Works, stats.Partial, stats.Dropped)
	}
}
