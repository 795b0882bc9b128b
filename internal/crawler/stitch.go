package crawler

import (
	"strings"
	"sync"

	"github.com/nao1215/corpuscrawl/internal/assemble"
	"github.com/nao1215/corpuscrawl/internal/extract"
	"github.com/nao1215/corpuscrawl/internal/model"
)

// chapterSeparator joins the text of consecutive chapters.
const chapterSeparator = "\n\n"

// ChapterResult is the outcome of one chapter slot of a multi-chapter work.
type ChapterResult struct {
	URL  string
	Text string

	// Err is non-nil when the chapter could not be fetched or had no text.
	Err error
}

// OK reports whether the chapter produced text.
func (r ChapterResult) OK() bool {
	return r.Err == nil && strings.TrimSpace(r.Text) != ""
}

// StitchChapters folds the successful chapters, in slot order, into one text
// and returns it with the number of chapters used. Failed chapters leave no
// trace in the text.
func StitchChapters(results []ChapterResult) (string, int) {
	var b strings.Builder
	used := 0
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if used > 0 {
			b.WriteString(chapterSeparator)
		}
		b.WriteString(r.Text)
		used++
	}
	return b.String(), used
}

// work is a multi-chapter work waiting for its chapter slots to fill.
type work struct {
	id  string
	url string

	// meta comes from the work index page.
	meta model.Metadata

	slots   []ChapterResult
	filled  []bool
	pending int
}

// assemble builds the record for w. It returns false when no chapter
// produced text, in which case the work is dropped.
func (w *work) assemble(source string, window int) (*model.CorpusRecord, int, bool) {
	text, used := StitchChapters(w.slots)
	if used == 0 {
		return nil, 0, false
	}
	meta := assemble.Merge(w.meta, extract.InlineMetadata(text, window))
	return model.NewCorpusRecord(source, w.url, meta, text), used, true
}

// stitcher tracks the works being stitched in a run.
type stitcher struct {
	mu    sync.Mutex
	works map[string]*work
}

func newStitcher() *stitcher {
	return &stitcher{works: make(map[string]*work)}
}

// start registers a work with n chapter slots.
func (s *stitcher) start(id, workURL string, meta model.Metadata, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.works[id] = &work{
		id:      id,
		url:     workURL,
		meta:    meta,
		slots:   make([]ChapterResult, n),
		filled:  make([]bool, n),
		pending: n,
	}
}

// fill stores the result of slot idx. When it was the last open slot the
// work is removed and returned.
func (s *stitcher) fill(id string, idx int, res ChapterResult) (*work, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.works[id]
	if !ok || idx < 0 || idx >= len(w.slots) || w.filled[idx] {
		return nil, false
	}
	w.slots[idx] = res
	w.filled[idx] = true
	w.pending--
	if w.pending > 0 {
		return nil, false
	}
	delete(s.works, id)
	return w, true
}

// pending returns the number of works still open.
func (s *stitcher) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.works)
}

// drain removes and returns every open work. Unfilled slots stay empty and
// are treated as failed chapters.
func (s *stitcher) drain() []*work {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*work, 0, len(s.works))
	for id, w := range s.works {
		out = append(out, w)
		delete(s.works, id)
	}
	return out
}
