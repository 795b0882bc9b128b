package model

import "strings"

// CatalogEntry is one work listed by a catalog site.
// The catalog phase writes entries to disk and the download and extract
// phases read them back unchanged, so the JSON layout is the contract
// between phases.
type CatalogEntry struct {
	// Slug is the unique key, derived from the work's listing href.
	Slug string `json:"slug"`

	// Title is the work title as shown in the listing.
	Title string `json:"title"`

	// Author is the primary author as shown in the listing.
	Author string `json:"author"`

	// Subjects is an ordered set. New subjects are appended, never reordered.
	Subjects []string `json:"subjects"`

	// ListingURL is the listing page the entry was first seen on.
	ListingURL string `json:"listing_url,omitempty"`

	// DetailsURL is the work's detail page.
	DetailsURL string `json:"details_url"`

	// ArchiveURL is the download URL of the work's archive.
	ArchiveURL string `json:"archive_url"`

	// FilenameBase is the archive file name without extension. The extract
	// phase maps archives back to entries by this value.
	FilenameBase string `json:"filename_base"`

	// ReadingEase is the Flesch reading ease score from the detail page.
	ReadingEase *float64 `json:"reading_ease"`

	// Difficulty is the label printed next to the reading ease score.
	Difficulty *string `json:"difficulty"`

	// SourceWordCount is the word count the catalog site declares.
	SourceWordCount *int `json:"source_word_count"`
}

// HasSubject reports whether subject is already listed.
func (e *CatalogEntry) HasSubject(subject string) bool {
	for _, s := range e.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// AddSubject appends subject unless it is already present.
// It returns true when the entry changed.
func (e *CatalogEntry) AddSubject(subject string) bool {
	subject = strings.TrimSpace(subject)
	if subject == "" || e.HasSubject(subject) {
		return false
	}
	e.Subjects = append(e.Subjects, subject)
	return true
}

// ArchiveFilename returns the on-disk name of the entry's archive.
func (e *CatalogEntry) ArchiveFilename() string {
	return e.FilenameBase + ".epub"
}

// Metadata converts the entry into record metadata. Catalog metadata is
// structured, so the assembler lets it win over extracted values.
func (e *CatalogEntry) Metadata() Metadata {
	m := Metadata{
		Title:           e.Title,
		Author:          e.Author,
		SourceURL:       e.DetailsURL,
		Subjects:        append([]string(nil), e.Subjects...),
		ReadingEase:     e.ReadingEase,
		SourceWordCount: e.SourceWordCount,
	}
	if e.Difficulty != nil {
		m.Difficulty = *e.Difficulty
	}
	return m
}
