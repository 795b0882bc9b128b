package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors.
// These errors are returned by Config.Validate() and SourceConfig.Validate()
// and provide specific information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoSource is returned when no source name was selected or the
	// selected name is not present in the configuration file.
	ErrNoSource = errors.New("no source specified: name a source from the configuration file")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	// Zero workers would leave the frontier undrained forever.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to fall back to the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidThreshold is returned when the modern-risk threshold is not
	// above the pre-1930 safe boundary. The classifier's rules would overlap.
	ErrInvalidThreshold = errors.New("invalid modern threshold: must be greater than 1930")

	// ErrNoOutput is returned when no output path is configured.
	ErrNoOutput = errors.New("no output path specified")

	// ErrNoStartURL is returned when a crawl source has no start URL.
	ErrNoStartURL = errors.New("source has no start URL")

	// ErrInvalidDelay is returned when a delay is negative or the jitter band
	// is inverted (MinDelay > MaxDelay).
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative with minDelay <= maxDelay")

	// ErrInvalidPause is returned when the courtesy pause cadence is negative.
	ErrInvalidPause = errors.New("invalid pause: pauseEvery and pauseDuration must be non-negative")

	// ErrInvalidRoleRule is returned when a role rule has an empty pattern
	// or an inverted depth range.
	ErrInvalidRoleRule = errors.New("invalid role rule")
)

// ConfigErrorKind classifies a ConfigError.
type ConfigErrorKind int

const (
	// ConfigMissingListFile means an external list file does not exist.
	ConfigMissingListFile ConfigErrorKind = iota

	// ConfigMalformedList means a list file exists but is not a JSON array
	// of strings.
	ConfigMalformedList
)

// String returns a short name for the kind.
func (k ConfigErrorKind) String() string {
	switch k {
	case ConfigMissingListFile:
		return "missing-list-file"
	case ConfigMalformedList:
		return "malformed-list"
	default:
		return "unknown"
	}
}

// ConfigError reports a problem with an external configuration artifact.
// Callers usually degrade to an empty default and log a warning.
type ConfigError struct {
	Kind ConfigErrorKind
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
