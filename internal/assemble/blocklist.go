package assemble

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// TitleBlockList holds titles already ingested from a higher-priority
// source. Matching is exact after trimming and Unicode case folding, so
// "THE REPUBLIC" blocks "The Republic" but "Republic" does not.
// It is safe for concurrent use.
type TitleBlockList struct {
	mu     sync.RWMutex
	titles map[string]struct{}
}

// NewTitleBlockList creates a block list holding titles.
func NewTitleBlockList(titles ...string) *TitleBlockList {
	b := &TitleBlockList{
		titles: make(map[string]struct{}, len(titles)),
	}
	for _, t := range titles {
		b.Add(t)
	}
	return b
}

// Add blocks title. Empty titles are ignored.
func (b *TitleBlockList) Add(title string) {
	key := b.key(title)
	if key == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.titles[key] = struct{}{}
}

// Blocked reports whether title matches a blocked title.
func (b *TitleBlockList) Blocked(title string) bool {
	if b == nil {
		return false
	}
	key := b.key(title)
	if key == "" {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.titles[key]
	return ok
}

// Len returns the number of blocked titles.
func (b *TitleBlockList) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.titles)
}

func (b *TitleBlockList) key(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Fold().String(title)
}
