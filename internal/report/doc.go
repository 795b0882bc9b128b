// Package report turns a finished corpus into reports for people:
//   - the copyright audit CSV, one row per document with a risk score
//   - audit summaries for the terminal (SimpleWriter), tools (JSONWriter)
//     and reviewers (MarkdownWriter)
//   - the Markdown content overview of a local mirror's manifest
//
// Design decision: We separate report writing from the classifier (which is
// in the assemble package) so the audit can be rerun over existing output
// with new translator lists without touching the crawl.
package report
