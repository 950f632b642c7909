package fs

import (
	"path/filepath"
	"strings"
)

// IgnoreMatcher hides files from mount listings by filename. Mounts are
// flat, so patterns are globs over the bare filename; patterns containing a
// path separator or with invalid glob syntax never match and are dropped.
type IgnoreMatcher struct {
	patterns []string
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank entries and entries starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []string
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") || strings.ContainsRune(raw, '/') {
			continue
		}
		if _, err := filepath.Match(raw, ""); err != nil {
			continue
		}
		patterns = append(patterns, raw)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether filename is hidden.
func (m *IgnoreMatcher) Match(filename string) bool {
	if filename == "" {
		return false
	}
	for _, p := range m.patterns {
		if ok, _ := filepath.Match(p, filename); ok {
			return true
		}
	}
	return false
}
