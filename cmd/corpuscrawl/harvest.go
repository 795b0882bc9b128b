package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/crawler"
	"github.com/nao1215/corpuscrawl/internal/database"
	"github.com/nao1215/corpuscrawl/internal/model"
	"github.com/nao1215/corpuscrawl/internal/pipeline"
	"github.com/spf13/cobra"
)

// phaseHelp holds the descriptions of the single-phase commands.
var phaseHelp = map[string]struct{ short, long string }{
	pipeline.PhaseCatalog: {
		short: "Build the catalog of a catalog source",
		long: `Catalog walks the subject listings of a catalog source and writes the
catalog file (<data-dir>/catalog.json).

Each new work's detail page is fetched once for its word count and reading
ease. A work listed under several subjects is stored once with every
subject. An existing catalog is extended, not rebuilt, so running the
command twice over an unchanged site leaves the catalog as it was.`,
	},
	pipeline.PhaseDownload: {
		short: "Download the archives listed in the catalog",
		long: `Download fetches the archive of every catalog entry into the archive
directory (<data-dir>/archives). Archives already on disk are skipped, so an
interrupted download can be resumed by running it again.`,
	},
	pipeline.PhaseExtract: {
		short: "Turn downloaded archives into corpus records",
		long: `Extract reads every archive in the archive directory, assembles its text
in reading order, and appends one record per archive to the output stream.

Title, author, subjects and readability metrics come from the catalog;
translator and publication year are recovered from the opening of the text
when the catalog has none.`,
	},
}

// NewPhaseCmd creates the command running a single harvest phase.
func NewPhaseCmd(phase string) *cobra.Command {
	help := phaseHelp[phase]
	cmd := &cobra.Command{
		Use:   phase + " <source>",
		Short: help.short,
		Long:  help.long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPhaseCmd(cmd, args, phase)
		},
	}

	addSourceFlags(cmd)
	if phase == pipeline.PhaseCatalog {
		cmd.Flags().Int("max-pages", 0,
			"Listing pages walked per subject (0 = unlimited)")
	}
	return cmd
}

// runPhaseCmd executes a single-phase command.
func runPhaseCmd(cmd *cobra.Command, args []string, phase string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	maxPages := 0
	if cmd.Flags().Lookup("max-pages") != nil {
		if maxPages, err = cmd.Flags().GetInt("max-pages"); err != nil {
			return err
		}
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

	return runHarvest(ctx, cmd.OutOrStdout(), cfg, source, []string{phase}, maxPages, logger)
}

// runHarvest runs the given phases of a catalog source in order and
// records the run.
func runHarvest(ctx context.Context, out io.Writer, cfg *config.Config, source config.SourceConfig, phases []string, maxPages int, logger *slog.Logger) (err error) {
	if !source.IsCatalog() {
		return fmt.Errorf("source %s is not a catalog source (kind %q); use 'corpuscrawl crawl'", source.Name, source.Kind)
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	if db != nil {
		defer db.Close()
		if runID, err = db.StartRun(ctx, source.Name, source.Kind); err != nil {
			return err
		}
	}

	blocked, err := dedupTitles(source, logger)
	if err != nil {
		return err
	}

	fetcher := newFetcher(cfg, source)
	governor := crawler.NewGovernor(
		crawler.WithDelay(source.MinDelay, source.MaxDelay),
		crawler.WithCourtesyPause(source.PauseEvery, source.PauseDuration),
		crawler.WithGovernorLogger(logger),
	)
	stepOpts := []pipeline.StepOption{
		pipeline.WithStepLogger(logger),
		pipeline.WithBatch(pipeline.NewBatchProcessor(
			pipeline.WithConcurrency(cfg.Workers),
			pipeline.WithBatchLogger(logger),
		)),
		pipeline.WithBlockList(blocked),
		pipeline.WithMaxPages(maxPages),
		pipeline.WithMetadataWindow(source.MetadataWindow),
	}

	p := pipeline.New(pipeline.WithLogger(logger))
	for _, phase := range phases {
		switch phase {
		case pipeline.PhaseCatalog:
			p.AddStep(pipeline.NewCatalogStep(fetcher, governor, source, cfg.CatalogPath, stepOpts...))
		case pipeline.PhaseDownload:
			p.AddStep(pipeline.NewDownloadStep(fetcher, governor, cfg.ArchiveDir, cfg.CatalogPath, stepOpts...))
		case pipeline.PhaseExtract:
			sinks, serr := openRecordSinks(ctx, cfg, db, runID)
			if serr != nil {
				return serr
			}
			defer func() {
				if cerr := sinks.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			p.AddStep(pipeline.NewExtractStep(cfg.ArchiveDir, cfg.CatalogPath, source.Name, sinks.sink, stepOpts...))
		default:
			return fmt.Errorf("unknown phase %q", phase)
		}
	}

	logger.Info("starting harvest", "source", source.Name, "phases", p.StepNames(), "run", runID)
	fmt.Fprintf(out, "Harvesting %s (%v)...\n", source.Name, p.StepNames())
	startTime := time.Now()

	run := model.NewHarvestRun(runID, source.Name)
	runErr := p.Execute(ctx, run)

	if db != nil {
		finishHarvestRun(ctx, db, run, runErr, logger)
	}

	printHarvestStats(out, run, time.Since(startTime))
	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(out, "Harvest interrupted; run it again to resume.")
		return nil
	}
	return runErr
}

// finishHarvestRun stores per-item failures in the fetch ledger, so the
// failures command lists them next to crawl failures, and closes the run.
func finishHarvestRun(ctx context.Context, db *database.CrawlDB, run *model.HarvestRun, runErr error, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range run.Failures {
		rec := &database.FetchRecord{
			RunID: run.ID,
			URL:   f.Item,
			Role:  f.Phase,
			Error: f.Reason,
		}
		if err := db.RecordFetch(ctx, rec); err != nil {
			logger.Warn("failed to record failure", "item", f.Item, "error", err)
		}
	}

	summary := database.RunSummary{
		Status:  finishStatus(runErr),
		Fetched: len(run.Downloaded),
		Failed:  len(run.Failures),
		Records: run.Records,
		Skipped: run.Skipped,
	}
	if err := db.FinishRun(ctx, run.ID, summary); err != nil {
		logger.Error("failed to finish run", "run", run.ID, "error", err)
	}
}

func printHarvestStats(out io.Writer, run *model.HarvestRun, elapsed time.Duration) {
	fmt.Fprintf(out, "\nHarvest finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  Phases:     %v\n", run.PerformedPhases)
	fmt.Fprintf(out, "  Catalog:    %d entries\n", len(run.Catalog))
	fmt.Fprintf(out, "  Downloaded: %d\n", len(run.Downloaded))
	fmt.Fprintf(out, "  Records:    %d\n", run.Records)
	fmt.Fprintf(out, "  Skipped:    %d\n", run.Skipped)
	fmt.Fprintf(out, "  Failures:   %d\n", len(run.Failures))
	for _, f := range run.Failures {
		fmt.Fprintf(out, "    [%s] %s: %s\n", f.Phase, f.Item, f.Reason)
	}
}
