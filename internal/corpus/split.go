package corpus

import (
	"fmt"
	"unicode/utf8"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// SplitOversized splits a record whose text is larger than limit bytes into
// ceil(size/limit) parts of about equal size, cutting on whitespace where
// possible.
// Parts carry SectionPart "i/n" and identifiers suffixed "-part<i>".
// Records within the limit, and any record when limit <= 0, are returned
// unchanged as the only element.
func SplitOversized(rec *model.CorpusRecord, limit int) []*model.CorpusRecord {
	if limit <= 0 || len(rec.Text) <= limit {
		return []*model.CorpusRecord{rec}
	}

	n := (len(rec.Text) + limit - 1) / limit
	chunks := make([]string, 0, n)
	text := rec.Text
	for i := n; i > 1; i-- {
		cut := cutPoint(text, len(text)/i)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	chunks = append(chunks, text)

	out := make([]*model.CorpusRecord, 0, len(chunks))
	for i, chunk := range chunks {
		meta := rec.Metadata
		meta.SectionPart = fmt.Sprintf("%d/%d", i+1, len(chunks))
		out = append(out, &model.CorpusRecord{
			Source:     rec.Source,
			Identifier: fmt.Sprintf("%s-part%d", rec.Identifier, i+1),
			Metadata:   meta,
			Text:       chunk,
			WordCount:  model.WordCount(chunk),
		})
	}
	return out
}

// cutPoint moves target back to just after the nearest whitespace within
// a short window, then to a rune boundary.
func cutPoint(text string, target int) int {
	const window = 4096
	for i := target; i > 0 && target-i < window; i-- {
		if c := text[i-1]; c == ' ' || c == '\n' || c == '\t' {
			return i
		}
	}
	for target > 0 && !utf8.RuneStart(text[target]) {
		target--
	}
	return target
}

// SplittingSink splits oversized records before passing them on.
type SplittingSink struct {
	next  Sink
	limit int
}

// NewSplittingSink wraps next. limit <= 0 disables splitting.
func NewSplittingSink(next Sink, limit int) *SplittingSink {
	return &SplittingSink{next: next, limit: limit}
}

// Write implements Sink.
func (s *SplittingSink) Write(rec *model.CorpusRecord) error {
	for _, part := range SplitOversized(rec, s.limit) {
		if err := s.next.Write(part); err != nil {
			return err
		}
	}
	return nil
}
