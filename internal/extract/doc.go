// Package extract turns fetched bytes into text, links and metadata.
//
// Every function here is pure: it takes parsed content and returns a value,
// with no network or file access and no shared state, so callers may run
// extraction fully in parallel.
//
// The package covers four content kinds:
//
//   - HTML pages: index discovery, chapter links, leaf text (html.go)
//   - EPUB archives: manifest and spine driven text assembly (archive.go)
//   - Catalog listings and detail pages (catalog.go)
//   - TEI/XML headers (tei.go)
//
// Inline metadata recovery (metadata.go) is heuristic. Fields it cannot
// find are left empty and consumers must treat empty as unknown.
package extract
