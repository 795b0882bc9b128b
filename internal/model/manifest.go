package model

// RepositoryStats is the per-repository entry of a directory manifest.
type RepositoryStats struct {
	Count int `json:"count"`
}

// ManifestFile is one file listed in a directory manifest.
type ManifestFile struct {
	// Path is relative to the mirror root.
	Path   string `json:"path"`
	Repo   string `json:"repo"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// DirectoryManifest is the inventory of a local text mirror.
// The auditor and the overview generator read it; only the build and repair
// commands write it.
type DirectoryManifest struct {
	Repositories map[string]RepositoryStats `json:"repositories"`
	TotalFiles   int                        `json:"total_files"`
	Files        []ManifestFile             `json:"files"`
}

// NewDirectoryManifest returns an empty manifest ready for Add.
func NewDirectoryManifest() *DirectoryManifest {
	return &DirectoryManifest{
		Repositories: make(map[string]RepositoryStats),
		Files:        make([]ManifestFile, 0),
	}
}

// AddRepository registers repo with a zero count so empty repositories
// still show up in the inventory.
func (m *DirectoryManifest) AddRepository(repo string) {
	if m.Repositories == nil {
		m.Repositories = make(map[string]RepositoryStats)
	}
	if _, ok := m.Repositories[repo]; !ok {
		m.Repositories[repo] = RepositoryStats{}
	}
}

// Add appends f and updates the counters.
func (m *DirectoryManifest) Add(f ManifestFile) {
	m.AddRepository(f.Repo)
	stats := m.Repositories[f.Repo]
	stats.Count++
	m.Repositories[f.Repo] = stats
	m.Files = append(m.Files, f)
	m.TotalFiles++
}
