package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/corpuscrawl/internal/assemble"
	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/corpus"
	"github.com/nao1215/corpuscrawl/internal/extract"
	"github.com/nao1215/corpuscrawl/internal/model"
)

var (
	// errNotQueued fills the slot of a chapter the frontier refused, because
	// it was already visited or queued for another work.
	errNotQueued = errors.New("chapter already visited or queued")

	// errNoText is recorded for pages that yield no text.
	errNoText = errors.New("no text extracted")

	// errUnsupported is recorded for leaves of a content kind the crawler
	// does not extract.
	errUnsupported = errors.New("unsupported content kind")
)

// FetchEvent describes one completed fetch attempt. Err is nil on success.
type FetchEvent struct {
	URL      string
	Role     model.Role
	Status   int
	Bytes    int
	Duration time.Duration
	Err      error
}

// Stats summarizes a crawl run.
type Stats struct {
	// Fetched counts successful fetches.
	Fetched int

	// Failed counts URLs marked visited-and-failed.
	Failed int

	// Skipped counts entries skipped as already visited, blocked by title
	// or empty.
	Skipped int

	// Records counts records written to the sink.
	Records int

	// Works counts stitched multi-chapter works; Partial counts the subset
	// flushed with chapters missing at cancellation. Dropped counts works
	// with no recovered chapter.
	Works   int
	Partial int
	Dropped int

	// Visited is the size of the frontier's visited set, failures included.
	Visited int
}

// State is the mutable state of one crawl run. It is owned by a Session
// and handed to every worker.
type State struct {
	Frontier *Frontier

	works *stitcher

	mu    sync.Mutex
	stats Stats
}

func newState(base string) *State {
	return &State{
		Frontier: NewFrontier(WithBaseURL(base)),
		works:    newStitcher(),
	}
}

// Stats returns a snapshot of the run counters.
func (st *State) Stats() Stats {
	st.mu.Lock()
	stats := st.stats
	st.mu.Unlock()

	stats.Visited = st.Frontier.VisitedCount()
	return stats
}

func (st *State) update(fn func(*Stats)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.stats)
}

// Session crawls one configured source into a record sink.
//
// Design decision: The session never holds package-level state. Everything
// a worker mutates lives in State, so two sessions can run side by side in
// one process (tests do exactly that).
type Session struct {
	fetcher  *Fetcher
	governor *Governor
	robots   *Robots
	source   config.SourceConfig
	sink     corpus.Sink
	state    *State

	// robotsSet is true once WithRobots was given, even with nil.
	robotsSet bool

	workers      int
	flushPartial bool
	backoff      Backoff
	titles       *assemble.TitleBlockList
	onFetch      func(ctx context.Context, ev FetchEvent)
	logger       *slog.Logger

	indexRules extract.IndexRules
	leafRules  extract.LeafRules
	hosts      map[string]bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithWorkers sets the number of concurrent fetch workers.
func WithWorkers(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFlushPartial decides whether works still being stitched at
// cancellation are emitted with the chapters they have (true, the default)
// or dropped.
func WithFlushPartial(flush bool) SessionOption {
	return func(s *Session) {
		s.flushPartial = flush
	}
}

// WithRetryPolicy enables explicit retries of retryable fetch failures.
func WithRetryPolicy(b Backoff) SessionOption {
	return func(s *Session) {
		s.backoff = b
	}
}

// WithTitleFilter skips works whose title is in list.
func WithTitleFilter(list *assemble.TitleBlockList) SessionOption {
	return func(s *Session) {
		s.titles = list
	}
}

// WithFetchHook sets a function called after every fetch attempt, for
// example to record it in the crawl database. It is called from worker
// goroutines and must be safe for concurrent use.
func WithFetchHook(fn func(ctx context.Context, ev FetchEvent)) SessionOption {
	return func(s *Session) {
		s.onFetch = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithGovernor replaces the governor built from the source's delays.
func WithGovernor(g *Governor) SessionOption {
	return func(s *Session) {
		s.governor = g
	}
}

// WithRobots replaces the robots.txt policy. A nil value disables the check.
func WithRobots(r *Robots) SessionOption {
	return func(s *Session) {
		s.robots = r
		s.robotsSet = true
	}
}

// NewSession creates a crawl session for source writing into sink.
// Unless replaced by options, the governor uses the source's delay band and
// pause cadence, and robots.txt is honored unless the source opts out.
func NewSession(fetcher *Fetcher, source config.SourceConfig, sink corpus.Sink, opts ...SessionOption) *Session {
	base := ""
	if len(source.StartURLs) > 0 {
		base = source.StartURLs[0]
	}

	s := &Session{
		fetcher:      fetcher,
		source:       source,
		sink:         sink,
		state:        newState(base),
		workers:      config.DefaultWorkers,
		flushPartial: true,
		logger:       slog.Default(),
		indexRules: extract.IndexRules{
			RoleRules:    source.RoleRules,
			ExcludeLinks: source.ExcludeLinks,
		},
		leafRules: extract.LeafRules{
			Exclusions:     source.ContentExclusions,
			MetadataWindow: source.MetadataWindow,
		},
		hosts: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, h := range source.Hosts() {
		s.hosts[h] = true
	}

	if s.governor == nil {
		s.governor = NewGovernor(
			WithDelay(source.MinDelay, source.MaxDelay),
			WithCourtesyPause(source.PauseEvery, source.PauseDuration),
			WithVisitedChecker(s.state.Frontier),
			WithGovernorLogger(s.logger),
		)
	}
	if !s.robotsSet && !source.RobotsIgnored() {
		s.robots = NewRobots(fetcher, s.governor, fetcher.userAgent, s.logger)
	}
	return s
}

// State returns the session's crawl state.
func (s *Session) State() *State {
	return s.state
}

// Run crawls until the frontier is exhausted or ctx is cancelled.
//
// On cancellation no new entry is dispatched, fetches already on the wire
// finish or time out, and works still being stitched are flushed or dropped
// according to WithFlushPartial; Run then returns ctx.Err(). A sink write
// failure stops the run and is returned.
func (s *Session) Run(ctx context.Context) (Stats, error) {
	st := s.state
	for _, u := range s.source.StartURLs {
		role, ok := config.ResolveRole(s.source.RoleRules, urlPath(u))
		if !ok {
			role = model.RoleIndex
		}
		st.Frontier.Enqueue(model.FrontierEntry{URL: u, Role: role})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for {
		changed := st.Frontier.Changed()
		if gctx.Err() != nil {
			break
		}
		e, ok := st.Frontier.Next()
		if !ok {
			if st.Frontier.Idle() {
				break
			}
			select {
			case <-gctx.Done():
			case <-changed:
			}
			continue
		}
		g.Go(func() error {
			defer st.Frontier.Done(e)
			return s.process(gctx, st, e)
		})
	}

	err := g.Wait()
	if err == nil {
		err = s.flush(ctx, st)
	}
	if err != nil {
		return st.Stats(), err
	}
	return st.Stats(), ctx.Err()
}

// flush settles works that are still open after the workers stopped.
func (s *Session) flush(ctx context.Context, st *State) error {
	if n := st.works.pending(); n > 0 {
		s.logger.Info("settling open works", "works", n, "flushPartial", s.flushPartial)
	}
	for _, w := range st.works.drain() {
		if ctx.Err() != nil && !s.flushPartial {
			s.logger.Warn("dropping partial work", "url", w.url, "missing", w.pending)
			st.update(func(c *Stats) { c.Dropped++ })
			continue
		}
		if err := s.finishWork(st, w, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) process(ctx context.Context, st *State, e model.FrontierEntry) error {
	// robots.txt is looked up first; its own request is governed, so the
	// page request below is spaced after it.
	if s.robots != nil && !s.robots.Allowed(ctx, e.URL) {
		s.logger.Info("skipping disallowed URL", "url", e.URL)
		st.Frontier.MarkFailed(e.URL, ErrDisallowed.Error())
		st.update(func(c *Stats) { c.Failed++ })
		s.hook(ctx, FetchEvent{URL: e.URL, Role: e.Role, Err: ErrDisallowed})
		return s.failChapter(st, e, ErrDisallowed)
	}

	ok, err := s.governor.Authorize(ctx, e.URL)
	if err != nil {
		// Cancelled before the request went out. An open chapter slot is
		// settled by flush.
		return nil
	}
	if !ok {
		st.update(func(c *Stats) { c.Skipped++ })
		return s.failChapter(st, e, errNotQueued)
	}

	start := time.Now()
	// In-flight requests are allowed to finish after cancellation; the
	// fetcher's own timeout still bounds them.
	resp, err := s.fetcher.Fetch(context.WithoutCancel(ctx), e.URL)
	ev := FetchEvent{URL: e.URL, Role: e.Role, Duration: time.Since(start), Err: err}
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			ev.Status = fe.Status
		}
		s.hook(ctx, ev)
		return s.fetchFailed(ctx, st, e, err)
	}
	ev.Status, ev.Bytes = resp.StatusCode, len(resp.Body)
	st.Frontier.MarkVisited(e.URL)
	st.update(func(c *Stats) { c.Fetched++ })
	s.hook(ctx, ev)

	s.logger.Debug("fetched", "url", e.URL, "role", e.Role, "bytes", len(resp.Body))

	switch e.Role {
	case model.RoleIndex:
		return s.handleIndex(st, e, resp)
	case model.RoleWorkIndex:
		return s.handleWorkIndex(st, e, resp)
	case model.RoleLeaf:
		return s.handleLeaf(ctx, st, e, resp)
	default:
		return nil
	}
}

// fetchFailed applies the failure policy: log, mark visited-and-failed, and
// requeue only when a Backoff allows it.
func (s *Session) fetchFailed(ctx context.Context, st *State, e model.FrontierEntry, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Retryable() {
		attempt := st.Frontier.Attempts(e.URL) + 1
		if s.backoff.Allows(attempt) {
			delay := s.backoff.Delay(attempt + 1)
			s.logger.Info("retrying fetch", "url", e.URL, "attempt", attempt+1, "delay", delay, "error", err)
			if sleepContext(ctx, delay) == nil {
				st.Frontier.Requeue(e)
				return nil
			}
		}
	}

	s.logger.Warn("fetch failed", "url", e.URL, "role", e.Role, "error", err)
	st.Frontier.MarkFailed(e.URL, err.Error())
	st.update(func(c *Stats) { c.Failed++ })
	return s.failChapter(st, e, err)
}

func (s *Session) handleIndex(st *State, e model.FrontierEntry, resp *Response) error {
	doc, err := extract.ParseHTML(resp.Body, resp.ContentType, resp.FinalURL)
	if err != nil {
		s.parseFailed(st, e, err)
		return nil
	}

	label := e.Context
	if label == "" {
		label = firstSegment(resp.FinalURL)
	}

	added := 0
	for _, d := range extract.DiscoverIndex(doc, s.indexRules) {
		if d.Role == model.RoleLeaf && !s.source.LeavesFollowed() {
			continue
		}
		if !s.allowed(d.URL, e.Depth+1) {
			continue
		}
		if st.Frontier.Enqueue(model.FrontierEntry{URL: d.URL, Role: d.Role, Context: label, Depth: e.Depth + 1}) {
			added++
		}
	}
	s.logger.Debug("index discovered", "url", e.URL, "context", label, "added", added)
	return nil
}

func (s *Session) handleWorkIndex(st *State, e model.FrontierEntry, resp *Response) error {
	doc, err := extract.ParseHTML(resp.Body, resp.ContentType, resp.FinalURL)
	if err != nil {
		s.parseFailed(st, e, err)
		return nil
	}
	if s.blocked(st, doc.Title, e.URL) {
		return nil
	}

	var chapters []string
	for _, c := range extract.ChapterLinks(doc) {
		if s.allowed(c, 0) {
			chapters = append(chapters, c)
		}
	}
	meta := model.Metadata{Title: doc.Title, Context: e.Context, SourceURL: resp.FinalURL}

	if len(chapters) == 0 {
		// A work index without chapters holds its text inline.
		leaf := extract.LeafText(doc, s.leafRules)
		return s.emitLeaf(st, e, leaf, meta)
	}

	workID := st.Frontier.Normalize(e.URL)
	st.works.start(workID, resp.FinalURL, meta, len(chapters))
	s.logger.Info("stitching work", "title", doc.Title, "url", e.URL, "chapters", len(chapters))

	for i, c := range chapters {
		entry := model.FrontierEntry{
			URL:     c,
			Role:    model.RoleLeaf,
			Context: e.Context,
			Depth:   e.Depth + 1,
			WorkID:  workID,
			Chapter: i,
		}
		if !st.Frontier.Enqueue(entry) {
			if err := s.failChapter(st, entry, errNotQueued); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) handleLeaf(ctx context.Context, st *State, e model.FrontierEntry, resp *Response) error {
	var leaf extract.Leaf
	switch kind := model.DetectContentKind(resp.ContentType, resp.FinalURL); kind {
	case model.ContentText:
		leaf = extract.PlainText(resp.Body, resp.FinalURL, s.source.MetadataWindow)
	case model.ContentHTML:
		doc, err := extract.ParseHTML(resp.Body, resp.ContentType, resp.FinalURL)
		if err != nil {
			s.parseFailed(st, e, err)
			return s.failChapter(st, e, err)
		}
		if s.source.TextDownloadPreferred() {
			if link := extract.TextDownloadLink(doc); link != "" {
				if body, ok := s.fetchInline(ctx, st, link); ok {
					leaf = extract.PlainText(body, resp.FinalURL, s.source.MetadataWindow)
					leaf.Title = doc.Title
				}
			}
		}
		if leaf.Text == "" {
			leaf = extract.LeafText(doc, s.leafRules)
		}
	default:
		s.logger.Warn("skipping leaf", "url", e.URL, "kind", kind, "error", errUnsupported)
		st.update(func(c *Stats) { c.Skipped++ })
		return s.failChapter(st, e, errUnsupported)
	}

	if s.source.GutenbergStripped() {
		leaf.Text = extract.StripGutenbergBoilerplate(leaf.Text)
	}

	if e.IsChapter() {
		res := ChapterResult{URL: e.URL, Text: leaf.Text}
		if strings.TrimSpace(leaf.Text) == "" {
			res.Err = errNoText
		}
		return s.fillChapter(st, e, res)
	}

	if s.blocked(st, leaf.Title, e.URL) {
		return nil
	}
	return s.emitLeaf(st, e, leaf, model.Metadata{Context: e.Context})
}

// fetchInline fetches a secondary resource of a leaf, such as its plain
// text edition, through the governor like any other request.
func (s *Session) fetchInline(ctx context.Context, st *State, link string) ([]byte, bool) {
	ok, err := s.governor.Authorize(ctx, link)
	if err != nil || !ok {
		return nil, false
	}
	start := time.Now()
	resp, err := s.fetcher.Fetch(context.WithoutCancel(ctx), link)
	ev := FetchEvent{URL: link, Role: model.RoleLeaf, Duration: time.Since(start), Err: err}
	if err != nil {
		s.hook(ctx, ev)
		s.logger.Warn("text download failed, using page text", "url", link, "error", err)
		st.Frontier.MarkFailed(link, err.Error())
		return nil, false
	}
	ev.Status, ev.Bytes = resp.StatusCode, len(resp.Body)
	s.hook(ctx, ev)
	st.Frontier.MarkVisited(link)
	st.update(func(c *Stats) { c.Fetched++ })
	return resp.Body, true
}

// emitLeaf writes a single-page work. meta fills fields the leaf itself
// does not carry.
func (s *Session) emitLeaf(st *State, e model.FrontierEntry, leaf extract.Leaf, meta model.Metadata) error {
	if strings.TrimSpace(leaf.Text) == "" {
		s.logger.Warn("skipping leaf", "url", e.URL, "error", errNoText)
		st.update(func(c *Stats) { c.Skipped++ })
		return nil
	}
	m := assemble.Merge(leaf.Meta, meta)
	if m.Title == "" {
		m.Title = leaf.Title
	}
	rec := model.NewCorpusRecord(s.source.Name, st.Frontier.Normalize(e.URL), m, leaf.Text)
	return s.emit(st, rec)
}

func (s *Session) failChapter(st *State, e model.FrontierEntry, err error) error {
	if !e.IsChapter() {
		return nil
	}
	return s.fillChapter(st, e, ChapterResult{URL: e.URL, Err: err})
}

func (s *Session) fillChapter(st *State, e model.FrontierEntry, res ChapterResult) error {
	if !res.OK() {
		s.logger.Warn("chapter failed", "work", e.WorkID, "chapter", e.Chapter+1, "url", e.URL, "error", res.Err)
	}
	w, done := st.works.fill(e.WorkID, e.Chapter, res)
	if !done {
		return nil
	}
	return s.finishWork(st, w, false)
}

func (s *Session) finishWork(st *State, w *work, partial bool) error {
	rec, used, ok := w.assemble(s.source.Name, s.source.MetadataWindow)
	if !ok {
		s.logger.Warn("dropping work", "url", w.url, "chapters", len(w.slots), "error", errNoText)
		st.update(func(c *Stats) { c.Dropped++ })
		return nil
	}
	if err := s.emit(st, rec); err != nil {
		return err
	}
	st.update(func(c *Stats) {
		c.Works++
		if partial {
			c.Partial++
		}
	})
	s.logger.Info("work stitched", "title", rec.Metadata.Title, "chapters", used, "of", len(w.slots), "partial", partial)
	return nil
}

func (s *Session) emit(st *State, rec *model.CorpusRecord) error {
	if err := s.sink.Write(rec); err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.Identifier, err)
	}
	st.update(func(c *Stats) { c.Records++ })
	return nil
}

func (s *Session) blocked(st *State, title, rawURL string) bool {
	if !s.titles.Blocked(title) {
		return false
	}
	s.logger.Info("skipping already ingested title", "title", title, "url", rawURL)
	st.update(func(c *Stats) { c.Skipped++ })
	return true
}

func (s *Session) parseFailed(st *State, e model.FrontierEntry, err error) {
	s.logger.Warn("parse failed", "url", e.URL, "role", e.Role, "error", err)
	st.Frontier.MarkFailed(e.URL, err.Error())
	st.update(func(c *Stats) { c.Failed++ })
}

// allowed applies host, ignore-pattern and depth limits to a discovered
// URL. depth 0 skips the depth check.
func (s *Session) allowed(rawURL string, depth int) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if len(s.hosts) > 0 && !s.hosts[strings.ToLower(u.Host)] {
		return false
	}
	for _, p := range s.source.IgnorePatterns {
		if config.MatchPattern(p, u.Path) {
			return false
		}
	}
	if depth > 0 && s.source.MaxDepth > 0 && depth > s.source.MaxDepth {
		return false
	}
	return true
}

func (s *Session) hook(ctx context.Context, ev FetchEvent) {
	if s.onFetch != nil {
		s.onFetch(ctx, ev)
	}
}

func urlPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	return rawURL
}

// firstSegment returns the first path segment of rawURL, the tradition
// label of an index page.
func firstSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if strings.Contains(seg, ".") {
		// A file at the root, not a directory.
		return ""
	}
	return seg
}
