package extract

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/model"
)

// leafExtensions are the path suffixes a chapter link may carry.
var leafExtensions = []string{".htm", ".html", ".txt"}

// IndexRules controls link discovery on index pages.
type IndexRules struct {
	// RoleRules assign a role to each link path. Links no rule accepts are
	// dropped.
	RoleRules []config.RoleRule

	// ExcludeLinks are substrings; a link whose href or text contains one,
	// ignoring case, is dropped.
	ExcludeLinks []string
}

// DiscoverIndex returns the (role, URL) tuples found on an index page in
// document order, without duplicates. Host and depth limits are applied by
// the caller.
func DiscoverIndex(doc *Document, rules IndexRules) []model.Discovery {
	var out []model.Discovery
	seen := make(map[string]bool)

	for _, l := range links(doc.Root) {
		if excluded(l, rules.ExcludeLinks) {
			continue
		}
		u := doc.Resolve(l.href)
		if u == nil {
			continue
		}
		role, ok := config.ResolveRole(rules.RoleRules, u.Path)
		if !ok {
			continue
		}
		key := u.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.Discovery{Role: role, URL: key})
	}
	return out
}

func excluded(l link, markers []string) bool {
	href := strings.ToLower(l.href)
	text := strings.ToLower(l.text)
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if strings.Contains(href, m) || strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// ChapterLinks returns the chapters of a work index page: links into the
// page's own directory (or below it) ending in a leaf extension, in the
// order they appear, each once. Parent links ("../"), site-absolute links
// ("/...") and links to other index pages are not chapters.
func ChapterLinks(doc *Document) []string {
	dir := path.Dir(doc.URL.Path)
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	self := doc.URL.String()

	var out []string
	seen := make(map[string]bool)
	for _, l := range links(doc.Root) {
		href := strings.TrimSpace(l.href)
		if strings.HasPrefix(href, "..") || strings.HasPrefix(href, "/") || strings.Contains(strings.ToLower(href), "index.htm") {
			continue
		}
		u := doc.Resolve(href)
		if u == nil || !strings.EqualFold(u.Host, doc.URL.Host) {
			continue
		}
		if !strings.HasPrefix(u.Path, dir) || !hasLeafExtension(u.Path) {
			continue
		}
		key := u.String()
		if key == self || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func hasLeafExtension(p string) bool {
	lower := strings.ToLower(p)
	for _, ext := range leafExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// LeafRules controls text extraction from leaf pages.
type LeafRules struct {
	// Exclusions remove matching elements, with their subtrees, before
	// text is collected.
	Exclusions []config.ElementRule

	// MetadataWindow is how many leading characters are searched for
	// inline metadata. Zero uses config.DefaultMetadataWindow.
	MetadataWindow int
}

// Leaf is the result of extracting a leaf page.
type Leaf struct {
	Text  string
	Title string

	// Meta holds the inline metadata found in the text. Fields that could
	// not be recovered are empty.
	Meta model.Metadata
}

// LeafText extracts the plain text of a leaf page with structural noise
// removed, plus whatever translator and year credits appear near the top.
// The document is not modified.
func LeafText(doc *Document, rules LeafRules) Leaf {
	var parts []string
	walk(doc.Body(), func(n *html.Node) bool {
		switch n.Type {
		case html.ElementNode:
			class := getAttr(n, "class")
			for _, r := range rules.Exclusions {
				if r.Matches(n.Data, class) {
					return false
				}
			}
			switch n.Data {
			case "script", "style", "noscript", "template":
				return false
			}
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				parts = append(parts, n.Data)
			}
		}
		return true
	})

	text := CleanText(strings.Join(parts, "\n"))
	window := rules.MetadataWindow
	if window <= 0 {
		window = config.DefaultMetadataWindow
	}

	meta := InlineMetadata(text, window)
	meta.Title = doc.Title
	meta.SourceURL = doc.URL.String()
	return Leaf{Text: text, Title: doc.Title, Meta: meta}
}

var (
	asciiBorderPattern = regexp.MustCompile(`(?m)^[=\-]{5,}`)
	blankRunPattern    = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// CleanText removes ASCII border runs ("=====", "-----") at line starts,
// squeezes runs of blank lines down to one and trims the result.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = asciiBorderPattern.ReplaceAllString(text, "")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// TextDownloadLink returns the absolute URL of a plain-text edition offered
// by a work page: a link to a ".txt" file whose text mentions "download",
// "text-only" or "available". It returns "" when there is none.
func TextDownloadLink(doc *Document) string {
	for _, l := range links(doc.Root) {
		if !strings.Contains(strings.ToLower(l.href), ".txt") {
			continue
		}
		text := strings.ToLower(l.text)
		if !strings.Contains(text, "download") && !strings.Contains(text, "text-only") && !strings.Contains(text, "available") {
			continue
		}
		if u := doc.Resolve(l.href); u != nil {
			return u.String()
		}
	}
	return ""
}

// PlainText builds a Leaf from a text file body.
func PlainText(body []byte, sourceURL string, window int) Leaf {
	text := CleanText(string(body))
	if window <= 0 {
		window = config.DefaultMetadataWindow
	}
	meta := InlineMetadata(text, window)
	meta.SourceURL = sourceURL
	return Leaf{Text: text, Meta: meta}
}
