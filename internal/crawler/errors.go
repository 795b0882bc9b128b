package crawler

import (
	"errors"
	"fmt"
)

// ErrBodyTooLarge is wrapped by a FetchError when a response exceeds the
// fetcher's body limit. Truncating would corrupt archives, so the fetch fails.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// ErrDisallowed is recorded for URLs blocked by robots.txt.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// FetchErrorKind classifies a FetchError.
type FetchErrorKind int

const (
	// FetchStatus is a non-2xx HTTP response.
	FetchStatus FetchErrorKind = iota

	// FetchTransient is a network-level failure (DNS, refused, reset).
	FetchTransient

	// FetchTimeout is a request that ran past its deadline.
	FetchTimeout

	// FetchTooLarge is a response over the body limit.
	FetchTooLarge
)

// String returns a short name for the kind.
func (k FetchErrorKind) String() string {
	switch k {
	case FetchStatus:
		return "status"
	case FetchTransient:
		return "transient"
	case FetchTimeout:
		return "timeout"
	case FetchTooLarge:
		return "too-large"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure returned by Fetcher.Fetch.
type FetchError struct {
	Kind FetchErrorKind
	URL  string

	// Status is the HTTP status code for FetchStatus, otherwise 0.
	Status int

	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether trying again later could succeed.
// Server errors and rate limiting count; other statuses are definitive.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchTransient, FetchTimeout:
		return true
	case FetchStatus:
		return e.Status >= 500 || e.Status == 429
	default:
		return false
	}
}
