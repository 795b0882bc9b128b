// Package log builds the structured loggers used by corpuscrawl on top of
// the standard slog package.
//
// Source configurations may carry cookies and custom headers for archives
// that sit behind a login, and crawl logs are routinely attached to bug
// reports. The RedactingHandler masks those values before any handler
// formats them:
//   - attributes whose key names a credential (cookie, authorization, token)
//   - string values that look like bearer or basic credentials
//   - user info and credential query parameters embedded in URLs
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//	logger.Info("fetched", "url", u, "cookie", sc.Cookie) // cookie is masked
package log
