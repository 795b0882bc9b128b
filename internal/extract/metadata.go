package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nao1215/corpuscrawl/internal/model"
)

var (
	translatorPattern = regexp.MustCompile(`(?i)(?:translator|translated by):?[ \t]*([^\r\n]*)`)
	yearKeyword       = regexp.MustCompile(`(?i)published|copyright`)
	fourDigits        = regexp.MustCompile(`\b\d{4}\b`)
)

// Year bounds accepted by inline year recovery.
const (
	MinYear = 1000
	MaxYear = 2099
)

// InlineMetadata searches the first window characters of text for a
// translator credit and a publication year.
//
// The translator is the rest of the first line following "Translated by" or
// "Translator:". The year is the first four-digit number in
// [MinYear, MaxYear] that follows "published" or "copyright" on the same
// line. Anything not found is left empty rather than guessed.
func InlineMetadata(text string, window int) model.Metadata {
	head := leadingRunes(text, window)

	var meta model.Metadata
	for _, m := range translatorPattern.FindAllStringSubmatch(head, -1) {
		name := strings.TrimRight(strings.TrimSpace(m[1]), ".,;:")
		if name != "" {
			meta.Translator = name
			break
		}
	}
	if year, ok := PublicationYear(head); ok {
		meta.Date = strconv.Itoa(year)
	}
	return meta
}

// PublicationYear returns the first year in range mentioned after a
// "published" or "copyright" keyword on the same line.
func PublicationYear(text string) (int, bool) {
	for _, loc := range yearKeyword.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		for _, d := range fourDigits.FindAllString(rest, -1) {
			y, err := strconv.Atoi(d)
			if err == nil && y >= MinYear && y <= MaxYear {
				return y, true
			}
		}
	}
	return 0, false
}

// leadingRunes returns at most n runes from the start of s.
func leadingRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
