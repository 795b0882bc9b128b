package extract

import (
	"regexp"
	"strings"
)

var (
	gutenbergStart = regexp.MustCompile(`(?i)\*\*\* ?START OF (?:THIS|THE) PROJECT GUTENBERG EBOOK`)
	gutenbergEnd   = regexp.MustCompile(`(?i)\*\*\* ?END OF (?:THIS|THE) PROJECT GUTENBERG EBOOK`)
)

// StripGutenbergBoilerplate removes the Project Gutenberg license envelope.
// Text before the line carrying the START marker and from the END marker
// onwards is dropped. Text without markers is only trimmed.
func StripGutenbergBoilerplate(text string) string {
	start, end := 0, len(text)

	if loc := gutenbergStart.FindStringIndex(text); loc != nil {
		start = loc[1]
		if i := strings.IndexByte(text[start:], '\n'); i >= 0 {
			start += i
		}
	}
	if loc := gutenbergEnd.FindStringIndex(text[start:]); loc != nil {
		end = start + loc[0]
	}
	return strings.TrimSpace(text[start:end])
}
