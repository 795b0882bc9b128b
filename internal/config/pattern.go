package config

import (
	"path/filepath"
	"strings"
)

// MatchPattern checks if a URL path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// A pattern without "/" is also tried against the last path segment, so
// "*index.htm" matches "/hin/rigveda/index.htm".
//
// Examples:
//   - "/cdshop/*" matches "/cdshop/index.htm", "/cdshop/cart"
//   - "*.txt" matches "/classics/Homer/iliad.mb.txt"
//   - "/hin/rv?" matches "/hin/rv1"
func MatchPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	// Directory prefix patterns like "/cdshop/*" match everything below
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	// Extension patterns like "*.txt"
	if strings.HasPrefix(pattern, "*.") && !strings.ContainsAny(pattern[2:], "*?[") {
		if strings.HasSuffix(strings.ToLower(path), strings.ToLower(pattern[1:])) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	if strings.ContainsAny(pattern, "*?") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}
