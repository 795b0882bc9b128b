package assemble

import "github.com/nao1215/corpuscrawl/internal/model"

// Merge combines catalog metadata with metadata recovered at extraction
// time. A field set in catalog wins; extracted only fills the gaps.
func Merge(catalog, extracted model.Metadata) model.Metadata {
	m := catalog

	m.Title = first(catalog.Title, extracted.Title)
	m.Author = first(catalog.Author, extracted.Author)
	m.Translator = first(catalog.Translator, extracted.Translator)
	m.Date = first(catalog.Date, extracted.Date)
	m.Context = first(catalog.Context, extracted.Context)
	m.SourceURL = first(catalog.SourceURL, extracted.SourceURL)
	m.Path = first(catalog.Path, extracted.Path)
	m.Difficulty = first(catalog.Difficulty, extracted.Difficulty)
	m.Filename = first(catalog.Filename, extracted.Filename)
	m.SectionPart = first(catalog.SectionPart, extracted.SectionPart)

	if len(catalog.Subjects) == 0 && len(extracted.Subjects) > 0 {
		m.Subjects = append([]string(nil), extracted.Subjects...)
	}
	if catalog.ReadingEase == nil {
		m.ReadingEase = extracted.ReadingEase
	}
	if catalog.SourceWordCount == nil {
		m.SourceWordCount = extracted.SourceWordCount
	}
	return m
}

func first(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
