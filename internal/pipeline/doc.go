// Package pipeline runs the phased harvest of a catalog source.
//
// A harvest has three phases: catalog (walk listing pages into a catalog
// file), download (fetch every entry's archive) and extract (turn archives
// into corpus records). Each phase is a Step that receives the shared
// HarvestRun, and each can also run alone because it reloads the catalog
// from disk when an earlier phase did not run in the same process.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. Phases can be run together or one at a time from the CLI
// 2. It provides consistent error handling and logging across phases
// 3. It supports cancellation via context between phases
//
// Per-item work inside a phase is bounded with errgroup through
// BatchProcessor.
package pipeline
