package model

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Metadata holds the descriptive fields of a work. Fields recovered by
// heuristics may be empty; consumers must treat empty as unknown.
type Metadata struct {
	Title      string `json:"title"`
	Author     string `json:"author,omitempty"`
	Translator string `json:"translator,omitempty"`

	// Date is a free-text publication or edition signal, such as
	// "1962" or "360 B.C.; published 1962".
	Date string `json:"date,omitempty"`

	// Context is the tradition or category label from discovery.
	Context string `json:"tradition,omitempty"`

	SourceURL string   `json:"url,omitempty"`
	Path      string   `json:"path,omitempty"`
	Subjects  []string `json:"subjects,omitempty"`

	// Catalog metrics, present for records built from a catalog.
	ReadingEase     *float64 `json:"reading_ease,omitempty"`
	Difficulty      string   `json:"difficulty,omitempty"`
	SourceWordCount *int     `json:"source_word_count,omitempty"`
	Filename        string   `json:"filename,omitempty"`

	// SectionPart is set on records produced by splitting an oversized
	// record, e.g. "1/2".
	SectionPart string `json:"section_part,omitempty"`
}

// CorpusRecord is the terminal artifact of the pipeline: one JSON line in
// the record stream. Records are never modified after they are written.
type CorpusRecord struct {
	Source     string   `json:"source"`
	Identifier string   `json:"identifier"`
	Metadata   Metadata `json:"metadata"`
	Text       string   `json:"text"`
	WordCount  int      `json:"word_count"`
}

// NewCorpusRecord builds a record and derives its identifier and word count.
// key is the most stable handle the source offers (slug, URL or path).
func NewCorpusRecord(source, key string, meta Metadata, text string) *CorpusRecord {
	return &CorpusRecord{
		Source:     source,
		Identifier: NewIdentifier(source, key),
		Metadata:   meta,
		Text:       text,
		WordCount:  WordCount(text),
	}
}

// NewIdentifier returns a stable identifier for key within source.
//
// Design decision: We hash instead of using the key directly so identifiers
// have a fixed shape regardless of how long or odd a source's URLs are.
// SHA3-256 truncated to 128 bits is far beyond what a corpus needs to stay
// collision free.
func NewIdentifier(source, key string) string {
	sum := sha3.Sum256([]byte(source + "\x00" + key))
	return hex.EncodeToString(sum[:16])
}

// WordCount returns the number of whitespace-delimited tokens in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// DocumentHeader is the JSON block written in front of a per-document text
// file. A blank line ("\n\n") separates it from the raw text.
type DocumentHeader struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	Translator string `json:"translator"`
	Date       string `json:"date"`
	SourceURL  string `json:"source_url"`
}

// Header projects metadata onto the per-document header fields.
func (m Metadata) Header() DocumentHeader {
	return DocumentHeader{
		Title:      m.Title,
		Author:     m.Author,
		Translator: m.Translator,
		Date:       m.Date,
		SourceURL:  m.SourceURL,
	}
}

// Metadata converts a header back into metadata.
func (h DocumentHeader) Metadata() Metadata {
	return Metadata{
		Title:      h.Title,
		Author:     h.Author,
		Translator: h.Translator,
		Date:       h.Date,
		SourceURL:  h.SourceURL,
	}
}
