// Package crawler implements the polite, resumable traversal engine.
//
// # Architecture
//
// A crawl run is one Session. The Session owns a State (frontier, visited
// set, counters, works being stitched) and passes it explicitly to a
// bounded pool of workers; there is no package-level mutable state.
//
//   - Frontier: role-ordered queues plus the visited set, behind one mutex
//   - Governor: the gate in front of every fetch (per-host interval, jitter,
//     courtesy pauses, visited refusal)
//   - Fetcher: a single HTTP GET with typed failures and a body limit
//   - Robots: per-host robots.txt policy
//
// Fetched pages are handed to the extract package by role: index pages yield
// further frontier entries, work indexes yield ordered chapter entries, and
// leaves yield text. Chapter results are folded in discovered order into
// one record per work.
//
// # Politeness
//
// The Governor is the single serialization point per host. Raising the
// worker count hides parse and extraction latency but never raises the
// request rate seen by a site.
//
// # Failure policy
//
// A failed fetch is logged and its URL marked visited-and-failed; nothing is
// retried automatically. Callers that want retries opt into a Backoff.
//
// # Usage
//
//	session := crawler.NewSession(fetcher, source, sink,
//	    crawler.WithWorkers(4),
//	    crawler.WithLogger(logger),
//	)
//	stats, err := session.Run(ctx)
package crawler
