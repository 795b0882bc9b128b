// Package main provides the entry point for the corpuscrawl CLI.
//
// corpuscrawl harvests public-domain texts from online archives into a
// JSON Lines corpus, and audits the result for copyright risk.
//
// Usage:
//
//	corpuscrawl crawl <source>
//	corpuscrawl catalog|download|extract <source>
//	corpuscrawl audit <document-dir>
//
// See --help for all available options.
package main

// main is the entry point for corpuscrawl.
func main() {
	Execute()
}
