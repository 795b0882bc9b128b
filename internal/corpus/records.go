package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// Sink receives finished records.
type Sink interface {
	Write(rec *model.CorpusRecord) error
}

// RecordWriter appends records to a JSON Lines stream.
// It is safe for concurrent use; each Write issues a single write of one
// complete line, so lines never interleave.
type RecordWriter struct {
	mu    sync.Mutex
	w     io.Writer
	c     io.Closer
	count int
}

// NewRecordWriter writes records to w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: w}
}

// OpenRecordWriter opens path for appending, creating it and its parent
// directory if needed.
func OpenRecordWriter(path string) (*RecordWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // Output path is user-provided
	if err != nil {
		return nil, fmt.Errorf("failed to open record stream: %w", err)
	}
	return &RecordWriter{w: f, c: f}, nil
}

// Write appends rec as one line.
func (rw *RecordWriter) Write(rec *model.CorpusRecord) error {
	line, err := encodeLine(rec)
	if err != nil {
		return err
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if _, err := rw.w.Write(line); err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.Identifier, err)
	}
	rw.count++
	return nil
}

// Count returns the number of records written by this writer.
func (rw *RecordWriter) Count() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.count
}

// Close closes the underlying file, if the writer owns one.
func (rw *RecordWriter) Close() error {
	if rw.c == nil {
		return nil
	}
	return rw.c.Close()
}

func encodeLine(rec *model.CorpusRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode appends the trailing newline.
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.Identifier, err)
	}
	return buf.Bytes(), nil
}

// ReadRecords calls fn for every record in the stream at path, in order.
// A missing file is an empty stream. A malformed line is an error naming
// its line number.
func ReadRecords(path string, fn func(*model.CorpusRecord) error) error {
	f, err := os.Open(path) //nolint:gosec // Output path is user-provided
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open record stream: %w", err)
	}
	defer f.Close()

	// Records can be many megabytes, so read whole lines without a cap.
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var rec model.CorpusRecord
			if jerr := json.Unmarshal(line, &rec); jerr != nil {
				return fmt.Errorf("%s:%d: %w", path, lineNo, jerr)
			}
			if ferr := fn(&rec); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record stream: %w", err)
		}
	}
}

// ReadTitles returns the titles already present in the stream at path.
func ReadTitles(path string) ([]string, error) {
	var titles []string
	err := ReadRecords(path, func(rec *model.CorpusRecord) error {
		if rec.Metadata.Title != "" {
			titles = append(titles, rec.Metadata.Title)
		}
		return nil
	})
	return titles, err
}

// ReadIdentifiers returns the set of identifiers present in the stream.
func ReadIdentifiers(path string) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := ReadRecords(path, func(rec *model.CorpusRecord) error {
		ids[rec.Identifier] = true
		return nil
	})
	return ids, err
}

// MultiSink writes every record to each sink in order and stops at the
// first error.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(rec *model.CorpusRecord) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// DedupSink drops records whose identifier was already written, either in
// this process or by an earlier run found in the stream.
type DedupSink struct {
	mu   sync.Mutex
	next Sink
	seen map[string]bool
}

// NewDedupSink wraps next. seen may be nil.
func NewDedupSink(next Sink, seen map[string]bool) *DedupSink {
	if seen == nil {
		seen = make(map[string]bool)
	}
	return &DedupSink{next: next, seen: seen}
}

// Write implements Sink.
func (d *DedupSink) Write(rec *model.CorpusRecord) error {
	d.mu.Lock()
	if d.seen[rec.Identifier] {
		d.mu.Unlock()
		return nil
	}
	d.seen[rec.Identifier] = true
	d.mu.Unlock()
	return d.next.Write(rec)
}
