package model

import (
	"sync"
	"time"
)

// HarvestRun carries the state of one phased harvest (catalog, download,
// extract) through the pipeline. Each phase reads what earlier phases left
// and appends its own results.
type HarvestRun struct {
	// ID identifies the run in logs and in the crawl database.
	ID string

	// Source is the configured source name being harvested.
	Source string

	StartedAt time.Time

	// Catalog is populated by the catalog phase or loaded from disk by a
	// later phase.
	Catalog []CatalogEntry

	// Downloaded lists archive paths written by the download phase.
	Downloaded []string

	// Records counts records emitted by the extract phase.
	Records int

	// Skipped counts entries skipped as duplicates or already present.
	Skipped int

	// Failures lists per-item problems that did not stop the run.
	Failures []RunFailure

	// PerformedPhases are the phases that ran, in order.
	PerformedPhases []string

	// TimedOut is set when the run was cancelled between phases.
	TimedOut bool

	// Error is the error that stopped the run, if any.
	Error error

	mu sync.Mutex
}

// RunFailure is a non-fatal problem recorded against one item.
type RunFailure struct {
	Phase  string
	Item   string
	Reason string
}

// NewHarvestRun creates a run for source.
func NewHarvestRun(id, source string) *HarvestRun {
	return &HarvestRun{
		ID:        id,
		Source:    source,
		StartedAt: time.Now(),
	}
}

// AddFailure records a non-fatal failure. Safe for concurrent use.
func (r *HarvestRun) AddFailure(phase, item, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, RunFailure{Phase: phase, Item: item, Reason: reason})
}

// AddDownloaded records a downloaded archive path. Safe for concurrent use.
func (r *HarvestRun) AddDownloaded(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Downloaded = append(r.Downloaded, path)
}

// IncRecords increments the emitted record counter. Safe for concurrent use.
func (r *HarvestRun) IncRecords() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Records++
}

// IncSkipped increments the skip counter. Safe for concurrent use.
func (r *HarvestRun) IncSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped++
}
