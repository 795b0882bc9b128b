package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nao1215/corpuscrawl/internal/extract"
	"github.com/nao1215/corpuscrawl/internal/model"
)

// ErrManifestNotFound is returned when the manifest file does not exist.
var ErrManifestNotFound = errors.New("manifest file not found")

// LoadManifest reads a directory manifest.
func LoadManifest(path string) (*model.DirectoryManifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Manifest path is user-provided
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m := model.NewDirectoryManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Repositories == nil {
		m.Repositories = make(map[string]model.RepositoryStats)
	}
	return m, nil
}

// SaveManifest writes m to path as indented JSON.
func SaveManifest(path string, m *model.DirectoryManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// BuildManifest inventories the TEI/XML files of a local mirror. Every
// visible subdirectory of root is a repository; its "data" directory is
// searched when present, otherwise the whole repository. Paths are
// relative to root and use forward slashes. Repositories without files are
// still listed.
func BuildManifest(root string) (*model.DirectoryManifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror root: %w", err)
	}

	m := model.NewDirectoryManifest()
	var repos []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			repos = append(repos, e.Name())
		}
	}
	sort.Strings(repos)

	for _, repo := range repos {
		m.AddRepository(repo)

		searchPath := filepath.Join(root, repo, "data")
		if info, err := os.Stat(searchPath); err != nil || !info.IsDir() {
			searchPath = filepath.Join(root, repo)
		}

		err := filepath.WalkDir(searchPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if path != searchPath && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || !strings.HasSuffix(strings.ToLower(name), ".xml") {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			header := readTEIHeader(path)
			m.Add(model.ManifestFile{
				Path:   filepath.ToSlash(rel),
				Repo:   repo,
				Title:  header.Title,
				Author: header.Author,
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk repository %s: %w", repo, err)
		}
	}
	return m, nil
}

// readTEIHeader reads title and author, falling back to the loose reader
// for files that are not well-formed XML. Unreadable files yield an empty
// header.
func readTEIHeader(path string) extract.TEIHeader {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from walking the mirror
	if err != nil {
		return extract.TEIHeader{}
	}
	h, err := extract.ParseTEIHeader(data)
	if err != nil {
		return extract.LooseTEIHeader(data)
	}
	return h
}

// RepairManifest fills in missing titles and authors by re-reading the
// files under root with the loose header reader. Fields already set are
// never changed. It returns the number of entries that changed.
func RepairManifest(root string, m *model.DirectoryManifest) int {
	repaired := 0
	for i := range m.Files {
		f := &m.Files[i]
		f.Title = strings.TrimSpace(f.Title)
		f.Author = strings.TrimSpace(f.Author)
		if f.Title != "" && f.Author != "" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path))) //nolint:gosec // Path comes from the manifest
		if err != nil {
			continue
		}
		h := extract.LooseTEIHeader(data)

		changed := false
		if f.Title == "" && h.Title != "" {
			f.Title = h.Title
			changed = true
		}
		if f.Author == "" && h.Author != "" {
			f.Author = h.Author
			changed = true
		}
		if changed {
			repaired++
		}
	}
	return repaired
}

// CleanManifest drops files whose path ends with one of suffixes and
// recounts every repository. Repositories left empty keep a zero count.
// It returns the number of files removed.
func CleanManifest(m *model.DirectoryManifest, suffixes ...string) int {
	kept := m.Files[:0]
	removed := 0
	for _, f := range m.Files {
		drop := false
		for _, s := range suffixes {
			if s != "" && strings.HasSuffix(f.Path, s) {
				drop = true
				break
			}
		}
		if drop {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	m.Files = kept
	m.TotalFiles = len(kept)

	counts := make(map[string]int)
	for _, f := range kept {
		counts[f.Repo]++
	}
	for repo := range m.Repositories {
		m.Repositories[repo] = model.RepositoryStats{Count: counts[repo]}
	}
	for repo, n := range counts {
		m.Repositories[repo] = model.RepositoryStats{Count: n}
	}
	return removed
}
