package model

import "strings"

// ExcludedHrefMarkers are path substrings of archive parts that carry front
// or back matter rather than the work's text.
var ExcludedHrefMarkers = []string{
	"cover", "titlepage", "imprint", "uncopyright", "colophon", "toc",
}

// ManifestItem is one (id, href) pair from a package descriptor.
type ManifestItem struct {
	ID   string
	Href string
}

// ArchiveManifest is the parsed package descriptor of an archive.
//
// The spine is authoritative: text is assembled in spine order only, never
// in the order the container happens to list its files.
type ArchiveManifest struct {
	// Items are the manifest entries in declaration order.
	Items []ManifestItem

	// Spine is the reading order as a sequence of item ids.
	Spine []string

	// Excluded holds the ids skipped by the href marker convention.
	Excluded map[string]bool

	// BaseDir is the descriptor's directory inside the archive. Hrefs are
	// relative to it.
	BaseDir string
}

// NewArchiveManifest builds a manifest and computes its exclusion set.
func NewArchiveManifest(baseDir string, items []ManifestItem, spine []string) *ArchiveManifest {
	m := &ArchiveManifest{
		Items:    items,
		Spine:    spine,
		Excluded: make(map[string]bool),
		BaseDir:  baseDir,
	}
	for _, item := range items {
		if IsExcludedHref(item.Href) {
			m.Excluded[item.ID] = true
		}
	}
	return m
}

// IsExcludedHref reports whether href matches an exclusion marker.
func IsExcludedHref(href string) bool {
	lower := strings.ToLower(href)
	for _, marker := range ExcludedHrefMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Href returns the href declared for id.
func (m *ArchiveManifest) Href(id string) (string, bool) {
	for _, item := range m.Items {
		if item.ID == id {
			return item.Href, true
		}
	}
	return "", false
}

// ReadingOrder returns the hrefs to visit, in spine order, with excluded
// and undeclared ids removed.
func (m *ArchiveManifest) ReadingOrder() []string {
	hrefs := make([]string, 0, len(m.Spine))
	for _, id := range m.Spine {
		if m.Excluded[id] {
			continue
		}
		href, ok := m.Href(id)
		if !ok || href == "" {
			continue
		}
		hrefs = append(hrefs, href)
	}
	return hrefs
}
