package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// ErrCatalogNotFound is returned when a phase needs the catalog file and it
// does not exist. Phases run in order, so this means the catalog phase has
// not run yet.
var ErrCatalogNotFound = errors.New("catalog file not found: run the catalog phase first")

// LoadCatalog reads the catalog file at path.
func LoadCatalog(path string) ([]model.CatalogEntry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Catalog path is user-provided
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, path)
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var entries []model.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return entries, nil
}

// SaveCatalog writes entries to path as an indented JSON array, replacing
// any previous catalog.
func SaveCatalog(path string, entries []model.CatalogEntry) error {
	if entries == nil {
		entries = []model.CatalogEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// CatalogTitles returns the titles of the catalog at path. A missing file
// yields no titles; the catalog is optional when used as a block list.
func CatalogTitles(path string) ([]string, error) {
	entries, err := LoadCatalog(path)
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			return nil, nil
		}
		return nil, err
	}
	titles := make([]string, 0, len(entries))
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	return titles, nil
}

// CatalogByFilename indexes entries by archive filename base.
func CatalogByFilename(entries []model.CatalogEntry) map[string]*model.CatalogEntry {
	m := make(map[string]*model.CatalogEntry, len(entries))
	for i := range entries {
		m[entries[i].FilenameBase] = &entries[i]
	}
	return m
}
