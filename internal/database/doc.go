// Package database provides the SQLite-backed crawl ledger for corpuscrawl.
//
// The ledger stores:
//   - Runs, with their source, kind, status and final counters
//   - Fetch attempts, so failures can be listed and retried later
//   - Records written to the corpus, so a later run can skip known titles
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. The ledger is a single file next to the corpus output
// 2. The CGO-free driver keeps cross-compilation simple
// 3. WAL mode lets the failures command read while a crawl writes
package database
