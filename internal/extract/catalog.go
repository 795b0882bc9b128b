package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// UnknownValue fills listing fields that could not be found.
const UnknownValue = "Unknown"

// CatalogItem is one work as shown on a listing page.
type CatalogItem struct {
	// Href is the site-relative link to the work's detail page,
	// e.g. "/ebooks/plato/the-republic/benjamin-jowett".
	Href   string
	Title  string
	Author string
}

// CatalogPage is a parsed listing page.
type CatalogPage struct {
	Items []CatalogItem

	// Next is the absolute URL of the following page, or "" on the last.
	Next string
}

// ParseCatalogPage reads the work list and the rel="next" link of a listing
// page. Items without a detail link are skipped.
func ParseCatalogPage(body []byte, pageURL string) (*CatalogPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Kind: MalformedMarkup, Path: pageURL, Err: err}
	}

	page := &CatalogPage{}
	doc.Find("ol.ebooks-list li").Each(func(_ int, li *goquery.Selection) {
		var href string
		li.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			h, _ := a.Attr("href")
			if strings.HasPrefix(h, "/ebooks/") && !strings.HasPrefix(h, "/ebooks/?") {
				href = h
				return false
			}
			return true
		})
		if href == "" {
			return
		}

		item := CatalogItem{Href: href, Title: UnknownValue, Author: UnknownValue}
		if name := li.Find(`span[property="schema:name"]`).First(); name.Length() > 0 {
			item.Title = strings.TrimSpace(name.Text())
		}
		if p := li.Find("p.author").First(); p.Length() > 0 {
			if name := p.Find(`span[property="schema:name"]`).First(); name.Length() > 0 {
				item.Author = strings.TrimSpace(name.Text())
			} else {
				item.Author = collapseSpace(p.Text())
			}
		}
		page.Items = append(page.Items, item)
	})

	if next, ok := doc.Find(`a[rel="next"]`).First().Attr("href"); ok && strings.TrimSpace(next) != "" {
		if base, err := url.Parse(pageURL); err == nil {
			if ref, err := url.Parse(strings.TrimSpace(next)); err == nil {
				page.Next = base.ResolveReference(ref).String()
			}
		}
	}
	return page, nil
}

var detailMetricsPattern = regexp.MustCompile(`(?is)([\d,]+)\s+words.*?reading ease of\s+([\d.]+)\s*\((.*?)\)`)

// DetailMetrics are the readability figures printed on a detail page.
// Nil fields were not found.
type DetailMetrics struct {
	WordCount   *int
	ReadingEase *float64
	Difficulty  *string
}

// ParseDetailMetrics finds "N words ... reading ease of X (label)" in the
// text of a detail page.
func ParseDetailMetrics(body []byte) (DetailMetrics, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return DetailMetrics{}, &ParseError{Kind: MalformedMarkup, Err: err}
	}

	var text string
	if len(doc.Nodes) > 0 {
		text = textContent(doc.Nodes[0], " ", true)
	}

	var m DetailMetrics
	match := detailMetricsPattern.FindStringSubmatch(text)
	if match == nil {
		return m, nil
	}
	if n, err := strconv.Atoi(strings.ReplaceAll(match[1], ",", "")); err == nil {
		m.WordCount = &n
	}
	if f, err := strconv.ParseFloat(strings.TrimRight(match[2], "."), 64); err == nil {
		m.ReadingEase = &f
	}
	label := strings.TrimSpace(match[3])
	m.Difficulty = &label
	return m, nil
}

// SubjectLabel formats a subject slug for display ("speculative-philosophy"
// becomes "Speculative Philosophy").
func SubjectLabel(subject string) string {
	s := strings.ReplaceAll(strings.TrimSpace(subject), "-", " ")
	return cases.Title(language.English).String(s)
}

// NewCatalogEntry builds the entry for item first seen on listingURL under
// subject. It returns false when the href does not have the
// "/ebooks/<author>/<title>..." shape an archive URL can be derived from.
func NewCatalogEntry(item CatalogItem, listingURL, subject string) (*model.CatalogEntry, bool) {
	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, false
	}
	trimmed := strings.Trim(item.Href, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[0] != "ebooks" {
		return nil, false
	}

	ref, err := url.Parse(item.Href)
	if err != nil {
		return nil, false
	}
	origin := base.Scheme + "://" + base.Host
	filenameBase := strings.Join(parts[1:], "_")

	entry := &model.CatalogEntry{
		Slug:         strings.ReplaceAll(trimmed, "/", "_"),
		Title:        item.Title,
		Author:       item.Author,
		ListingURL:   listingURL,
		DetailsURL:   base.ResolveReference(ref).String(),
		ArchiveURL:   origin + "/" + trimmed + "/downloads/" + filenameBase + ".epub?source=download",
		FilenameBase: filenameBase,
	}
	entry.AddSubject(SubjectLabel(subject))
	return entry, true
}

// ApplyMetrics copies detail metrics onto entry.
func ApplyMetrics(entry *model.CatalogEntry, m DetailMetrics) {
	entry.SourceWordCount = m.WordCount
	entry.ReadingEase = m.ReadingEase
	entry.Difficulty = m.Difficulty
}
