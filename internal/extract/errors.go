package extract

import "fmt"

// ParseErrorKind classifies a ParseError.
type ParseErrorKind int

const (
	// MalformedMarkup is HTML or XML that could not be parsed at all.
	MalformedMarkup ParseErrorKind = iota

	// MalformedManifest is an archive package descriptor without a usable
	// manifest or spine.
	MalformedManifest

	// MalformedContainer is an archive that is not a readable zip file.
	MalformedContainer
)

// String returns a short name for the kind.
func (k ParseErrorKind) String() string {
	switch k {
	case MalformedMarkup:
		return "malformed-markup"
	case MalformedManifest:
		return "malformed-manifest"
	case MalformedContainer:
		return "malformed-container"
	default:
		return "unknown"
	}
}

// ParseError reports content that could not be parsed.
type ParseError struct {
	Kind ParseErrorKind

	// Path is the internal archive path or URL being parsed, if known.
	Path string

	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractionErrorKind classifies an ExtractionError.
type ExtractionErrorKind int

const (
	// MissingEntry is a part declared by the manifest but absent from the
	// archive. It is reported as a warning, never returned as fatal.
	MissingEntry ExtractionErrorKind = iota

	// EmptyContent means nothing could be assembled.
	EmptyContent
)

// String returns a short name for the kind.
func (k ExtractionErrorKind) String() string {
	switch k {
	case MissingEntry:
		return "missing-entry"
	case EmptyContent:
		return "empty-content"
	default:
		return "unknown"
	}
}

// ExtractionError reports a part of the content that yielded no text.
type ExtractionError struct {
	Kind ExtractionErrorKind
	Path string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Path == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}
