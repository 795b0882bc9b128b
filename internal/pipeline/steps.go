package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/corpuscrawl/internal/assemble"
	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/corpus"
	"github.com/nao1215/corpuscrawl/internal/crawler"
	"github.com/nao1215/corpuscrawl/internal/extract"
	"github.com/nao1215/corpuscrawl/internal/model"
)

// Phase names, as recorded in HarvestRun.PerformedPhases.
const (
	PhaseCatalog  = "catalog"
	PhaseDownload = "download"
	PhaseExtract  = "extract"
)

// archiveExt is the extension of downloaded archives.
const archiveExt = ".epub"

// Fetcher retrieves one URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*crawler.Response, error)
}

// Authorizer blocks until a request may be sent. *crawler.Governor
// implements it.
type Authorizer interface {
	Authorize(ctx context.Context, rawURL string) (bool, error)
}

// stepConfig holds the settings shared by the harvest steps.
type stepConfig struct {
	logger   *slog.Logger
	batch    *BatchProcessor
	blocked  *assemble.TitleBlockList
	maxPages int
	window   int
}

// StepOption configures a harvest step.
type StepOption func(*stepConfig)

// WithStepLogger sets the logger of a step.
func WithStepLogger(logger *slog.Logger) StepOption {
	return func(c *stepConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBatch sets the processor used for per-item work.
func WithBatch(bp *BatchProcessor) StepOption {
	return func(c *stepConfig) {
		if bp != nil {
			c.batch = bp
		}
	}
}

// WithBlockList skips works whose title is on list, for example titles a
// higher-priority source already provides.
func WithBlockList(list *assemble.TitleBlockList) StepOption {
	return func(c *stepConfig) {
		c.blocked = list
	}
}

// WithMaxPages limits the listing pages walked per subject. Zero means no
// limit.
func WithMaxPages(n int) StepOption {
	return func(c *stepConfig) {
		c.maxPages = n
	}
}

// WithMetadataWindow sets how many leading characters of extracted text
// are searched for translator and year credits.
func WithMetadataWindow(n int) StepOption {
	return func(c *stepConfig) {
		c.window = n
	}
}

func newStepConfig(opts []StepOption) stepConfig {
	c := stepConfig{
		logger: slog.Default(),
		window: config.DefaultMetadataWindow,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.batch == nil {
		c.batch = NewBatchProcessor(WithBatchLogger(c.logger))
	}
	return c
}

// errRefused is returned by fetchPolitely when the governor declines a URL,
// for example one already visited. Callers skip it silently.
var errRefused = errors.New("request refused by governor")

// fetchPolitely waits for the governor, then fetches rawURL.
func fetchPolitely(ctx context.Context, gov Authorizer, f Fetcher, rawURL string) (*crawler.Response, error) {
	if gov != nil {
		ok, err := gov.Authorize(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errRefused
		}
	}
	return f.Fetch(ctx, rawURL)
}

// catalogFor returns the run's catalog, loading it from path when an
// earlier phase did not run in this process. A missing catalog is fatal.
func catalogFor(run *model.HarvestRun, path string) ([]model.CatalogEntry, error) {
	if len(run.Catalog) > 0 {
		return run.Catalog, nil
	}
	entries, err := corpus.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	run.Catalog = entries
	return entries, nil
}

// CatalogStep walks the paginated listings of a catalog source and writes
// the catalog file. Each new work's detail page is fetched once for its
// readability metrics; a work seen again under another subject only gains
// the subject.
//
// An existing catalog file is the starting point, so a second run over an
// unchanged source leaves the catalog as it was and fetches no detail page
// twice.
type CatalogStep struct {
	stepConfig
	fetcher  Fetcher
	governor Authorizer
	source   config.SourceConfig
	path     string
}

// NewCatalogStep creates a catalog step writing to path.
func NewCatalogStep(fetcher Fetcher, governor Authorizer, source config.SourceConfig, path string, opts ...StepOption) *CatalogStep {
	return &CatalogStep{
		stepConfig: newStepConfig(opts),
		fetcher:    fetcher,
		governor:   governor,
		source:     source,
		path:       path,
	}
}

// Name implements Step.
func (s *CatalogStep) Name() string { return PhaseCatalog }

type listing struct {
	url     string
	subject string
}

// listings returns the first listing page of every subject, or the start
// URLs when the source has no subject template.
func (s *CatalogStep) listings() []listing {
	var out []listing
	if s.source.SubjectURL != "" && len(s.source.Subjects) > 0 {
		for _, subject := range s.source.Subjects {
			out = append(out, listing{
				url:     strings.ReplaceAll(s.source.SubjectURL, "%s", subject),
				subject: subject,
			})
		}
		return out
	}
	for _, u := range s.source.StartURLs {
		out = append(out, listing{url: u})
	}
	return out
}

// Do implements Step.
func (s *CatalogStep) Do(ctx context.Context, run *model.HarvestRun) error {
	entries, err := corpus.LoadCatalog(s.path)
	if err != nil && !errors.Is(err, corpus.ErrCatalogNotFound) {
		return err
	}
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Slug] = i
	}
	found := 0

walk:
	for _, l := range s.listings() {
		seen := make(map[string]bool)
		pageURL := l.url
		for page := 1; pageURL != ""; page++ {
			if ctx.Err() != nil {
				break walk
			}
			if (s.maxPages > 0 && page > s.maxPages) || seen[pageURL] {
				break
			}
			seen[pageURL] = true

			s.logger.Info("fetching listing page", "subject", l.subject, "page", page, "url", pageURL)
			resp, err := fetchPolitely(ctx, s.governor, s.fetcher, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					break walk
				}
				if errors.Is(err, errRefused) {
					s.logger.Debug("listing page refused", "url", pageURL)
					break
				}
				s.logger.Error("listing page failed", "url", pageURL, "error", err)
				run.AddFailure(PhaseCatalog, pageURL, err.Error())
				break
			}
			listed, err := extract.ParseCatalogPage(resp.Body, pageURL)
			if err != nil {
				s.logger.Error("listing page unreadable", "url", pageURL, "error", err)
				run.AddFailure(PhaseCatalog, pageURL, err.Error())
				break
			}

			for _, item := range listed.Items {
				entry, ok := extract.NewCatalogEntry(item, pageURL, l.subject)
				if !ok {
					s.logger.Debug("skipping listing item without archive", "href", item.Href)
					continue
				}
				if i, ok := index[entry.Slug]; ok {
					entries[i].AddSubject(extract.SubjectLabel(l.subject))
					run.IncSkipped()
					continue
				}
				if s.blocked.Blocked(entry.Title) {
					s.logger.Info("skipping title from higher-priority source", "title", entry.Title)
					run.IncSkipped()
					continue
				}
				if !s.applyDetails(ctx, run, entry) {
					break walk
				}
				index[entry.Slug] = len(entries)
				entries = append(entries, *entry)
				found++
				s.logger.Info("found work", "title", entry.Title, "slug", entry.Slug)
			}
			pageURL = listed.Next
		}
	}

	if err := corpus.SaveCatalog(s.path, entries); err != nil {
		return err
	}
	run.Catalog = entries
	s.logger.Info("catalog saved", "path", s.path, "entries", len(entries), "new", found)
	return ctx.Err()
}

// applyDetails fetches the detail page of entry and copies its metrics. A
// failed detail page leaves the metrics empty. It returns false only when
// ctx ended.
func (s *CatalogStep) applyDetails(ctx context.Context, run *model.HarvestRun, entry *model.CatalogEntry) bool {
	resp, err := fetchPolitely(ctx, s.governor, s.fetcher, entry.DetailsURL)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, errRefused) {
			return true
		}
		s.logger.Warn("detail page failed", "slug", entry.Slug, "error", err)
		run.AddFailure(PhaseCatalog, entry.Slug, err.Error())
		return true
	}
	metrics, err := extract.ParseDetailMetrics(resp.Body)
	if err != nil {
		s.logger.Warn("detail page unreadable", "slug", entry.Slug, "error", err)
		run.AddFailure(PhaseCatalog, entry.Slug, err.Error())
		return true
	}
	extract.ApplyMetrics(entry, metrics)
	return true
}

// DownloadStep fetches the archive of every catalog entry into a directory.
// Archives already on disk are skipped, which makes the step resumable.
type DownloadStep struct {
	stepConfig
	fetcher     Fetcher
	governor    Authorizer
	dir         string
	catalogPath string
}

// NewDownloadStep creates a download step writing archives into dir.
func NewDownloadStep(fetcher Fetcher, governor Authorizer, dir, catalogPath string, opts ...StepOption) *DownloadStep {
	return &DownloadStep{
		stepConfig:  newStepConfig(opts),
		fetcher:     fetcher,
		governor:    governor,
		dir:         dir,
		catalogPath: catalogPath,
	}
}

// Name implements Step.
func (s *DownloadStep) Name() string { return PhaseDownload }

// Do implements Step.
func (s *DownloadStep) Do(ctx context.Context, run *model.HarvestRun) error {
	entries, err := catalogFor(run, s.catalogPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	return s.batch.Run(ctx, len(entries), func(ctx context.Context, i int) error {
		e := &entries[i]
		path := filepath.Join(s.dir, e.ArchiveFilename())
		if _, err := os.Stat(path); err == nil {
			s.logger.Debug("archive exists, skipping", "file", e.ArchiveFilename())
			run.IncSkipped()
			return nil
		}
		if s.blocked.Blocked(e.Title) {
			run.IncSkipped()
			return nil
		}

		resp, err := fetchPolitely(ctx, s.governor, s.fetcher, e.ArchiveURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, errRefused) {
				run.IncSkipped()
				return nil
			}
			s.logger.Error("download failed", "slug", e.Slug, "url", e.ArchiveURL, "error", err)
			run.AddFailure(PhaseDownload, e.Slug, err.Error())
			return nil
		}
		if err := corpus.WriteFileAtomic(path, resp.Body); err != nil {
			return err
		}
		run.AddDownloaded(path)
		s.logger.Info("downloaded", "file", e.ArchiveFilename(), "bytes", len(resp.Body))
		return nil
	})
}

// ExtractStep turns every archive in a directory into a record. Archives
// are matched to catalog entries by file name; catalog metadata wins over
// anything found in the text.
type ExtractStep struct {
	stepConfig
	dir         string
	catalogPath string
	source      string
	sink        corpus.Sink
}

// NewExtractStep creates an extract step reading archives from dir and
// writing records for source to sink.
func NewExtractStep(dir, catalogPath, source string, sink corpus.Sink, opts ...StepOption) *ExtractStep {
	return &ExtractStep{
		stepConfig:  newStepConfig(opts),
		dir:         dir,
		catalogPath: catalogPath,
		source:      source,
		sink:        sink,
	}
}

// Name implements Step.
func (s *ExtractStep) Name() string { return PhaseExtract }

// Do implements Step. Archives are extracted concurrently and records are
// written in file name order.
func (s *ExtractStep) Do(ctx context.Context, run *model.HarvestRun) error {
	entries, err := catalogFor(run, s.catalogPath)
	if err != nil {
		return err
	}
	byName := corpus.CatalogByFilename(entries)

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read archive directory: %w", err)
	}
	var names []string
	for _, d := range dirEntries {
		if !d.IsDir() && strings.HasSuffix(d.Name(), archiveExt) {
			names = append(names, d.Name())
		}
	}

	records, err := Map(ctx, s.batch, names, func(_ context.Context, name string) (*model.CorpusRecord, error) {
		return s.extract(run, name, byName[strings.TrimSuffix(name, archiveExt)]), nil
	})

	for _, rec := range records {
		if rec == nil {
			continue
		}
		if werr := s.sink.Write(rec); werr != nil {
			return fmt.Errorf("failed to write record: %w", werr)
		}
		run.IncRecords()
	}
	return err
}

// extract builds the record of one archive, or returns nil when the
// archive is skipped or yields no text.
func (s *ExtractStep) extract(run *model.HarvestRun, name string, entry *model.CatalogEntry) *model.CorpusRecord {
	meta := model.Metadata{Title: extract.UnknownValue, Author: extract.UnknownValue}
	key := strings.TrimSuffix(name, archiveExt)
	if entry != nil {
		if s.blocked.Blocked(entry.Title) {
			run.IncSkipped()
			return nil
		}
		meta = entry.Metadata()
		key = entry.Slug
	} else {
		s.logger.Warn("archive not in catalog", "file", name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		s.logger.Error("failed to read archive", "file", name, "error", err)
		run.AddFailure(PhaseExtract, name, err.Error())
		return nil
	}

	text, err := extract.ExtractArchive(data)
	if text != nil {
		for _, w := range text.Warnings {
			s.logger.Warn("archive entry skipped", "file", name, "reason", w)
		}
	}
	if err != nil {
		s.logger.Error("failed to extract archive", "file", name, "error", err)
		run.AddFailure(PhaseExtract, name, err.Error())
		return nil
	}

	meta = assemble.Merge(meta, extract.InlineMetadata(text.Text, s.window))
	meta.Filename = name
	s.logger.Info("extracted", "file", name, "parts", text.Parts, "words", text.WordCount)
	return model.NewCorpusRecord(s.source, key, meta, text.Text)
}
