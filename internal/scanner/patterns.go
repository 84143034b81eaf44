package scanner

import (
	"fmt"
	"path"
	"strings"
)

// PatternMatcher decides which relative paths a scan keeps.
//
// Patterns follow a small gitignore-like syntax: a trailing "/" matches a
// directory and everything beneath it, "**" matches any number of path
// segments, and anything else is a path.Match glob. A glob without a "/"
// is also tried against the base name.
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// ShouldInclude reports whether relPath survives the exclude patterns.
func (pm *PatternMatcher) ShouldInclude(relPath string, exclude []string) bool {
	for _, pattern := range exclude {
		if pm.Matches(relPath, pattern) {
			return false
		}
	}
	return true
}

// Matches reports whether relPath matches pattern.
func (pm *PatternMatcher) Matches(relPath, pattern string) bool {
	if pattern == "" {
		return false
	}

	if dir, ok := strings.CutSuffix(pattern, "/"); ok {
		return relPath == dir || strings.HasPrefix(relPath, dir+"/")
	}

	if prefix, suffix, ok := strings.Cut(pattern, "**"); ok {
		return strings.HasPrefix(relPath, prefix) &&
			strings.HasSuffix(strings.TrimPrefix(relPath, prefix), suffix)
	}

	if match, err := path.Match(pattern, relPath); err == nil && match {
		return true
	}
	if !strings.Contains(pattern, "/") {
		match, err := path.Match(pattern, path.Base(relPath))
		return err == nil && match
	}
	return false
}

// Validate checks every pattern's glob syntax.
func (pm *PatternMatcher) Validate(patterns []string) error {
	for i, pattern := range patterns {
		if strings.Count(pattern, "**") > 1 {
			return &PatternError{Pattern: pattern, Index: i, Err: fmt.Errorf("at most one ** is supported")}
		}
		if _, err := path.Match(strings.ReplaceAll(pattern, "**", "*"), "x"); err != nil {
			return &PatternError{Pattern: pattern, Index: i, Err: err}
		}
	}
	return nil
}

// PatternError represents an error with a pattern.
type PatternError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern at index %d '%s': %v", e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}
