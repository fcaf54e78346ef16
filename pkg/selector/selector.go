// Package selector filters repository names with glob patterns, so a
// manifest can describe a repository selection ("acme/*", "!**/archive-*")
// instead of enumerating every name.
package selector

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Selector evaluates include/exclude patterns against repository names.
//
// A Selector is configured with include and exclude patterns:
//   - Include patterns: a name must match at least one. No include
//     patterns means every name is included.
//   - Exclude patterns: a name must not match any.
//
// The Selector is safe for concurrent use after creation.
type Selector struct {
	includes []string
	excludes []string
}

// Config configures a Selector.
type Config struct {
	// Includes are glob patterns that names must match (at least one).
	// Optional: empty means all names match.
	Includes []string

	// Excludes are glob patterns that names must not match (any).
	// Optional: if empty, no excludes are applied.
	Excludes []string
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Selector from the given configuration.
//
// Returns an error if any pattern is invalid (cannot be compiled).
func New(cfg Config) (*Selector, error) {
	for _, raw := range cfg.Includes {
		if !doublestar.ValidatePattern(raw) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
	}
	for _, raw := range cfg.Excludes {
		if !doublestar.ValidatePattern(raw) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
	}
	return &Selector{
		includes: append([]string(nil), cfg.Includes...),
		excludes: append([]string(nil), cfg.Excludes...),
	}, nil
}

// Match returns true if the name passes the include/exclude patterns.
//
// A name matches if:
//  1. It matches at least one include pattern (or none are configured)
//  2. It does not match any exclude pattern
func (s *Selector) Match(name string) bool {
	if len(s.includes) > 0 {
		matched := false
		for _, inc := range s.includes {
			if matchPattern(inc, name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, exc := range s.excludes {
		if matchPattern(exc, name) {
			return false
		}
	}
	return true
}

// Select filters names, preserving input order.
func (s *Selector) Select(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if s.Match(name) {
			out = append(out, name)
		}
	}
	return out
}

// IncludePatterns returns the raw include patterns.
func (s *Selector) IncludePatterns() []string {
	return append([]string(nil), s.includes...)
}

// ExcludePatterns returns the raw exclude patterns.
func (s *Selector) ExcludePatterns() []string {
	return append([]string(nil), s.excludes...)
}

// matchPattern matches a name against a doublestar pattern.
func matchPattern(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)
	if err != nil {
		// Pattern was validated at construction time, so this shouldn't happen
		return false
	}
	return matched
}
