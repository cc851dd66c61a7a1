package filtering

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// NameFilter handles lender-name filtering using glob patterns
type NameFilter interface {
	// ShouldInclude determines if a lender name should be kept based on include/exclude patterns.
	// Returns (shouldInclude bool, reason string)
	ShouldInclude(name string, include, exclude []string) (bool, string)
}

// defaultNameFilter implements name filtering using gobwas/glob
type defaultNameFilter struct{}

var _ NameFilter = (*defaultNameFilter)(nil)

// NewDefaultNameFilter creates a new defaultNameFilter
func NewDefaultNameFilter() NameFilter {
	return &defaultNameFilter{}
}

// compilePattern compiles a single glob. filepath.Match rejects malformed
// brackets that gobwas/glob would accept. No separators are passed, so '*'
// matches across any character.
func compilePattern(pattern string) (glob.Glob, error) {
	if _, err := filepath.Match(pattern, "test"); err != nil {
		return nil, err
	}
	return glob.Compile(pattern)
}

// CompilePatterns compiles every pattern, failing on the first invalid one
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := compilePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

// matchAny returns the first pattern that matches name, case-insensitively
func matchAny(patterns []string, name string) (string, bool, error) {
	lowered := strings.ToLower(name)
	for _, pattern := range patterns {
		g, err := compilePattern(strings.ToLower(pattern))
		if err != nil {
			return pattern, false, err
		}
		if g.Match(lowered) {
			return pattern, true, nil
		}
	}
	return "", false, nil
}

// ShouldInclude determines if a lender name should be kept.
// Lender names come from free-form staff input, so matching ignores case.
func (*defaultNameFilter) ShouldInclude(name string, include, exclude []string) (bool, string) {
	pattern, matched, err := matchAny(exclude, name)
	if err != nil {
		return false, fmt.Sprintf("invalid exclude pattern '%s': %v", pattern, err)
	}
	if matched {
		return false, fmt.Sprintf("excluded by pattern '%s'", pattern)
	}

	if len(include) == 0 {
		return true, "no include patterns"
	}

	pattern, matched, err = matchAny(include, name)
	if err != nil {
		return false, fmt.Sprintf("invalid include pattern '%s': %v", pattern, err)
	}
	if matched {
		return true, fmt.Sprintf("included by pattern '%s'", pattern)
	}
	return false, fmt.Sprintf("no match found in include patterns %v", include)
}
