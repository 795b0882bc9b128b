package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "corpuscrawl"

	// DefaultTimeout bounds a single HTTP request. Archives of a few
	// megabytes from slow mirrors still finish well inside it.
	DefaultTimeout = 60 * time.Second

	// DefaultWorkers is the number of concurrent fetch workers.
	// The Governor serializes requests per host, so extra workers only hide
	// parse and extraction latency; they never raise the request rate.
	DefaultWorkers = 4

	// DefaultUserAgent identifies corpuscrawl in HTTP requests so archive
	// operators can tell crawler traffic apart in their logs.
	DefaultUserAgent = "corpuscrawl/1.0 (+https://github.com/nao1215/corpuscrawl)"

	// DefaultMaxBodySize limits the response body size to read.
	// 50MB covers the largest EPUB archives while still bounding memory.
	DefaultMaxBodySize = 50 * 1024 * 1024 // 50MB

	// DefaultModernThreshold is the first year the classifier treats as
	// modern, and therefore high risk.
	DefaultModernThreshold = 1990

	// DefaultOversizeLimit is the record size above which the staging
	// split halves a record. Downstream document stores reject larger ones.
	DefaultOversizeLimit = 20 * 1024 * 1024 // 20MB

	// DefaultOutputFile is the record stream file name inside the data dir.
	DefaultOutputFile = "corpus.jsonl"

	// DefaultCatalogFile is the catalog file name inside the data dir.
	DefaultCatalogFile = "catalog.json"

	// DefaultArchiveDir is the archive download directory inside the data dir.
	DefaultArchiveDir = "archives"

	// DefaultDocumentDir is the per-document text directory inside the data dir.
	DefaultDocumentDir = "documents"
)

// Config holds the process-wide configuration for corpuscrawl.
// Per-source crawl behavior lives in SourceConfig.
//
// Design decision: We keep a single flat struct, populated from CLI flags
// and passed explicitly, rather than global state. Per-source settings are
// split out because one configuration file describes many sources.
type Config struct {
	// Source is the name of the source to harvest, a key of Sources.Sources.
	Source string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Workers is the number of concurrent fetch workers.
	Workers int

	// UserAgent is sent with every request unless a source overrides it
	// through its headers.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	// Set to 0 to use the default.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the configuration file. If empty, the
	// tool searches for .corpuscrawl in the current and home directories.
	ConfigFilePath string

	// Sources holds the source descriptions loaded from the config file.
	Sources *File

	// DataDir is the root for catalog, archives, documents and records.
	// Defaults to the XDG data directory.
	DataDir string

	// OutputPath is the JSON Lines record stream. Records are appended.
	OutputPath string

	// CatalogPath is the persisted catalog shared by the catalog, download
	// and extract phases.
	CatalogPath string

	// ArchiveDir receives downloaded archives.
	ArchiveDir string

	// DocumentDir receives per-document text files (header, blank line,
	// body). Empty disables per-document output.
	DocumentDir string

	// DBDir is the directory holding the crawl database.
	// Empty disables the database.
	DBDir string

	// FlushPartial decides what happens to multi-chapter works still being
	// stitched when a crawl is cancelled: true emits them with the chapters
	// that completed, false drops them.
	FlushPartial bool

	// ModernThreshold is the first year classified as HIGH_RISK.
	ModernThreshold int

	// SafeListPath and BlockedListPath point at JSON arrays of translator
	// name fragments. Missing files degrade to empty lists.
	SafeListPath    string
	BlockedListPath string

	// OversizeLimit is the text size in bytes above which records are split
	// in two when staged. Zero disables splitting.
	OversizeLimit int
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero. This also serves as
// documentation of what the defaults are.
func NewConfig() *Config {
	dataDir := XDGDataDir()
	return &Config{
		Timeout:         DefaultTimeout,
		Workers:         DefaultWorkers,
		UserAgent:       DefaultUserAgent,
		MaxBodySize:     DefaultMaxBodySize,
		DataDir:         dataDir,
		OutputPath:      filepath.Join(dataDir, DefaultOutputFile),
		CatalogPath:     filepath.Join(dataDir, DefaultCatalogFile),
		ArchiveDir:      filepath.Join(dataDir, DefaultArchiveDir),
		DBDir:           dataDir,
		FlushPartial:    true,
		ModernThreshold: DefaultModernThreshold,
		SafeListPath:    filepath.Join(XDGConfigDir(), "safe_translators.json"),
		BlockedListPath: filepath.Join(XDGConfigDir(), "blocked_translators.json"),
		OversizeLimit:   DefaultOversizeLimit,
	}
}

// SetDataDir moves every data path under dir. Paths that were set
// explicitly to somewhere else are left alone.
func (c *Config) SetDataDir(dir string) {
	old := c.DataDir
	rebase := func(p, name string) string {
		if p == "" || p == filepath.Join(old, name) {
			return filepath.Join(dir, name)
		}
		return p
	}
	c.OutputPath = rebase(c.OutputPath, DefaultOutputFile)
	c.CatalogPath = rebase(c.CatalogPath, DefaultCatalogFile)
	c.ArchiveDir = rebase(c.ArchiveDir, DefaultArchiveDir)
	if c.DocumentDir != "" {
		c.DocumentDir = rebase(c.DocumentDir, DefaultDocumentDir)
	}
	if c.DBDir == old {
		c.DBDir = dir
	}
	c.DataDir = dir
}

// XDGDataDir returns the XDG data directory for corpuscrawl.
// On Linux: ~/.local/share/corpuscrawl
// On macOS: ~/Library/Application Support/corpuscrawl
// On Windows: %LOCALAPPDATA%\corpuscrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for corpuscrawl.
// The translator lists live here by default.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for corpuscrawl.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	// Rules 3 and 4 of the classifier must not overlap
	if c.ModernThreshold <= 1930 {
		return ErrInvalidThreshold
	}

	if c.OutputPath == "" {
		return ErrNoOutput
	}

	return nil
}

// SelectedSource returns the SourceConfig named by c.Source, merged with
// the file defaults.
func (c *Config) SelectedSource() (SourceConfig, error) {
	if c.Source == "" || c.Sources == nil {
		return SourceConfig{}, ErrNoSource
	}
	if _, ok := c.Sources.Sources[c.Source]; !ok {
		return SourceConfig{}, ErrNoSource
	}
	return c.Sources.GetSourceConfig(c.Source), nil
}
