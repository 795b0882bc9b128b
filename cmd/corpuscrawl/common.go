package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/nao1215/corpuscrawl/internal/assemble"
	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/corpus"
	"github.com/nao1215/corpuscrawl/internal/crawler"
	"github.com/nao1215/corpuscrawl/internal/database"
	corpuslog "github.com/nao1215/corpuscrawl/internal/log"
	"github.com/spf13/cobra"
)

// addSourceFlags registers the flags shared by every command that harvests
// a configured source.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .corpuscrawl in current or home directory)")
	cmd.Flags().StringP("data-dir", "D", "",
		"Directory for catalog, archives, records and the crawl database (default: XDG data directory)")
	cmd.Flags().StringP("output", "o", "",
		"JSON Lines record stream to append to (default: <data-dir>/corpus.jsonl)")
	cmd.Flags().String("documents", "",
		"Also write one header+text file per record into this directory")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent workers")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int("split-limit", config.DefaultOversizeLimit,
		"Split records whose text exceeds this many bytes into two parts (0 disables)")
	cmd.Flags().Bool("no-db", false,
		"Do not record the run in the crawl database")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// Values of the --log-format flag.
const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// getLogFormatFlag retrieves the log format from the command or its parent.
func getLogFormatFlag(cmd *cobra.Command) string {
	format, err := cmd.Flags().GetString("log-format")
	if err != nil {
		format, err = cmd.Root().PersistentFlags().GetString("log-format")
		if err != nil {
			return logFormatText
		}
	}
	return format
}

// setupLogger creates the process logger in the format chosen by
// --log-format, writing to the command's error stream, and installs it as
// the default.
func setupLogger(cmd *cobra.Command, verbose bool) (*slog.Logger, error) {
	var logger *slog.Logger
	switch format := getLogFormatFlag(cmd); format {
	case logFormatText, "":
		logger = corpuslog.NewLogger(cmd.ErrOrStderr(), verbose)
	case logFormatJSON:
		logger = corpuslog.NewJSONLogger(cmd.ErrOrStderr(), verbose)
	default:
		return nil, fmt.Errorf("invalid log format %q (want %s or %s)", format, logFormatText, logFormatJSON)
	}
	slog.SetDefault(logger)
	return logger, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. A second
// signal is not intercepted, so it terminates the process.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, finishing in-flight work...")
			signal.Stop(sigCh)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigCh)
		}
	}()
	return ctx, cancel
}

// buildConfig creates a Config from cobra command flags. args[0], when
// present, names the source.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	if len(args) > 0 {
		cfg.Source = args[0]
	}

	var err error
	cfg.Verbose = getVerboseFlag(cmd)

	cfg.Workers, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, err
	}
	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}
	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}
	cfg.OversizeLimit, err = cmd.Flags().GetInt("split-limit")
	if err != nil {
		return nil, err
	}

	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}
	if output != "" {
		cfg.OutputPath = output
	}
	cfg.DocumentDir, err = cmd.Flags().GetString("documents")
	if err != nil {
		return nil, err
	}
	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	if noDB {
		cfg.DBDir = ""
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg.Sources, err = loadSources(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSources loads the configuration file. If the user explicitly
// specified a path, a missing file is an error; otherwise an empty
// configuration is used.
func loadSources(path string) (*config.File, error) {
	found := config.FindConfigFile(path)
	if found == "" {
		if path != "" {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return &config.File{Sources: make(map[string]config.SourceConfig)}, nil
	}
	file, err := config.LoadConfigFile(found)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
	}
	return file, nil
}

// selectSource validates cfg and returns its merged source configuration.
func selectSource(cfg *config.Config) (config.SourceConfig, error) {
	if err := cfg.Validate(); err != nil {
		return config.SourceConfig{}, fmt.Errorf("configuration error: %w", err)
	}
	source, err := cfg.SelectedSource()
	if err != nil {
		if errors.Is(err, config.ErrNoSource) && cfg.Sources != nil && len(cfg.Sources.Sources) > 0 {
			return config.SourceConfig{}, fmt.Errorf("%w (configured: %v)", err, sortedNames(cfg.Sources))
		}
		return config.SourceConfig{}, err
	}
	if err := source.Validate(); err != nil {
		return config.SourceConfig{}, fmt.Errorf("source %s: %w", cfg.Source, err)
	}
	return source, nil
}

func sortedNames(f *config.File) []string {
	names := f.SourceNames()
	sort.Strings(names)
	return names
}

// newFetcher builds the HTTP fetcher for source.
func newFetcher(cfg *config.Config, source config.SourceConfig) *crawler.Fetcher {
	opts := []crawler.FetcherOption{
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithTimeout(cfg.Timeout),
	}
	if len(source.Headers) > 0 {
		opts = append(opts, crawler.WithHeaders(source.Headers))
	}
	if source.Cookie != "" {
		opts = append(opts, crawler.WithCookie(source.Cookie))
	}
	return crawler.NewFetcher(nil, opts...)
}

// openDatabase opens the crawl database, or returns nil when it is
// disabled.
func openDatabase(cfg *config.Config, logger *slog.Logger) (*database.CrawlDB, error) {
	if cfg.DBDir == "" {
		return nil, nil
	}
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", db.Path())
	return db, nil
}

// dedupTitles returns the titles a source must skip: those in its
// higher-priority catalog, if it names one.
func dedupTitles(source config.SourceConfig, logger *slog.Logger) (*assemble.TitleBlockList, error) {
	list := assemble.NewTitleBlockList()
	if source.DedupCatalog == "" {
		return list, nil
	}
	titles, err := corpus.CatalogTitles(source.DedupCatalog)
	if err != nil {
		return nil, fmt.Errorf("failed to read dedup catalog: %w", err)
	}
	for _, t := range titles {
		list.Add(t)
	}
	logger.Info("loaded dedup catalog", "path", source.DedupCatalog, "titles", list.Len())
	return list, nil
}

// recordSinks is the sink chain of a harvest: oversized records are split,
// identifiers already in the output are dropped, and what remains goes to
// the record stream and the optional document directory and run ledger.
type recordSinks struct {
	writer *corpus.RecordWriter
	sink   corpus.Sink
}

func openRecordSinks(ctx context.Context, cfg *config.Config, db *database.CrawlDB, runID string) (*recordSinks, error) {
	seen, err := corpus.ReadIdentifiers(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing records: %w", err)
	}
	writer, err := corpus.OpenRecordWriter(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	targets := corpus.MultiSink{writer}
	if cfg.DocumentDir != "" {
		targets = append(targets, corpus.NewDocumentSink(cfg.DocumentDir))
	}
	if db != nil && runID != "" {
		targets = append(targets, db.Ledger(ctx, runID))
	}

	return &recordSinks{
		writer: writer,
		sink:   corpus.NewSplittingSink(corpus.NewDedupSink(targets, seen), cfg.OversizeLimit),
	}, nil
}

func (r *recordSinks) Close() error {
	return r.writer.Close()
}

// finishStatus maps the error that ended a run to its stored status.
func finishStatus(err error) string {
	switch {
	case err == nil:
		return database.StatusCompleted
	case errors.Is(err, context.Canceled):
		return database.StatusInterrupted
	default:
		return database.StatusFailed
	}
}
