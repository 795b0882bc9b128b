package model

import (
	"fmt"
	"strings"
)

// Role is the kind of page a frontier entry points at.
// The crawler dispatches one handler per role.
//
// Design decision: We use iota-based constants so the frontier can keep one
// queue per role and drain them in priority order by index.
type Role int

const (
	// RoleIndex is a navigational index listing traditions or works.
	RoleIndex Role = iota

	// RoleWorkIndex is a table-of-contents page whose same-directory links
	// are the chapters of a single work.
	RoleWorkIndex

	// RoleLeaf is a page holding actual document text.
	RoleLeaf
)

// Roles lists every role in dispatch priority order.
var Roles = []Role{RoleIndex, RoleWorkIndex, RoleLeaf}

// String returns the role name used in logs and config files.
func (r Role) String() string {
	switch r {
	case RoleIndex:
		return "INDEX"
	case RoleWorkIndex:
		return "WORK_INDEX"
	case RoleLeaf:
		return "LEAF"
	default:
		return "UNKNOWN"
	}
}

// ParseRole converts a role name into a Role. Matching ignores case and
// accepts "-" in place of "_".
func ParseRole(s string) (Role, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "INDEX", "TRADITION":
		return RoleIndex, nil
	case "WORK_INDEX", "WORK":
		return RoleWorkIndex, nil
	case "LEAF", "POTENTIAL_WORK":
		return RoleLeaf, nil
	default:
		return RoleIndex, fmt.Errorf("unknown role %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so roles can be written
// by name in YAML and JSON.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// FrontierEntry is a single discovery task.
type FrontierEntry struct {
	// URL is the absolute URL as discovered. The frontier normalizes it
	// before using it as a deduplication key.
	URL string

	// Role decides which handler processes the fetched page.
	Role Role

	// Context is the parent label (tradition or category) inherited from
	// the index the entry was found on.
	Context string

	// Depth is the discovery depth counted from the start URLs.
	Depth int

	// WorkID links a chapter entry back to the work it belongs to.
	// Empty for entries that are not chapters.
	WorkID string

	// Chapter is the zero-based position of a chapter inside its work.
	Chapter int
}

// IsChapter reports whether the entry is one slot of a stitched work.
func (e FrontierEntry) IsChapter() bool {
	return e.WorkID != ""
}

// Discovery is a (role, URL) tuple produced by an index page.
type Discovery struct {
	Role Role
	URL  string
}

// ContentKind identifies the format of fetched content.
// Each kind maps to exactly one extractor.
type ContentKind int

const (
	// ContentHTML is an HTML or XHTML document.
	ContentHTML ContentKind = iota

	// ContentText is plain text served as-is.
	ContentText

	// ContentArchive is a zip container with a package descriptor (EPUB).
	ContentArchive

	// ContentXML is a TEI/XML document.
	ContentXML
)

// String returns a short name for the content kind.
func (k ContentKind) String() string {
	switch k {
	case ContentHTML:
		return "html"
	case ContentText:
		return "text"
	case ContentArchive:
		return "archive"
	case ContentXML:
		return "xml"
	default:
		return "unknown"
	}
}

// DetectContentKind picks a content kind from a Content-Type header value,
// falling back to the URL's extension when the header is missing or generic.
func DetectContentKind(contentType, rawURL string) ContentKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "epub"), strings.Contains(ct, "zip"):
		return ContentArchive
	case strings.Contains(ct, "html"):
		return ContentHTML
	case strings.Contains(ct, "text/plain"):
		return ContentText
	case strings.Contains(ct, "xml"):
		return ContentXML
	}

	path := strings.ToLower(rawURL)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	switch {
	case strings.HasSuffix(path, ".epub"), strings.HasSuffix(path, ".zip"):
		return ContentArchive
	case strings.HasSuffix(path, ".txt"):
		return ContentText
	case strings.HasSuffix(path, ".xml"):
		return ContentXML
	default:
		return ContentHTML
	}
}
