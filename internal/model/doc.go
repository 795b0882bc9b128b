// Package model defines the core data structures used throughout corpuscrawl.
//
// This package contains the following main types:
//   - FrontierEntry: A discovery task waiting in the crawl frontier
//   - CatalogEntry: A work listed by a catalog site, persisted between phases
//   - ArchiveManifest: The reading order declared inside an EPUB-style archive
//   - CorpusRecord: The normalized output record, one JSON line each
//   - RiskAssessment: The triage verdict for a record's metadata
//   - DirectoryManifest: The inventory of a local text mirror
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, extract, assemble and corpus packages all pass
// these types between each other, so centralizing them prevents import cycles.
//
// Every type that reaches disk carries JSON tags matching its on-disk format.
package model
