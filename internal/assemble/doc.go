// Package assemble merges metadata fragments into records and triages them.
//
// Metadata arrives from two places: structured catalog data gathered before
// a work is fetched, and heuristics run over the extracted text. Merge
// combines them, catalog first. TitleBlockList drops works already ingested
// from a higher-priority source, and Classifier assigns a copyright risk
// status by a fixed rule chain.
package assemble
