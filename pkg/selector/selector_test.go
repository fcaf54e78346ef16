package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Config{Includes: []string{"acme/[unclosed"}})
	require.Error(t, err)

	var patternErr *PatternError
	require.True(t, errors.As(err, &patternErr))
	assert.Equal(t, "acme/[unclosed", patternErr.Pattern)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = New(Config{Excludes: []string{"[bad"}})
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		includes []string
		excludes []string
		key      string
		want     bool
	}{
		{"no patterns matches all", nil, nil, "acme/widgets", true},
		{"include match", []string{"acme/*"}, nil, "acme/widgets", true},
		{"include miss", []string{"acme/*"}, nil, "globex/widgets", false},
		{"doublestar spans segments", []string{"**/widgets"}, nil, "org/team/widgets", true},
		{"exclude wins", []string{"acme/*"}, []string{"acme/legacy"}, "acme/legacy", false},
		{"exclude glob", nil, []string{"**/archive-*"}, "acme/archive-2020", false},
		{"exclude miss", []string{"acme/*"}, []string{"acme/legacy"}, "acme/widgets", true},
		{"second include", []string{"acme/*", "globex/*"}, nil, "globex/api", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(Config{Includes: tt.includes, Excludes: tt.excludes})
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Match(tt.key))
		})
	}
}

func TestSelect_PreservesOrder(t *testing.T) {
	s, err := New(Config{Includes: []string{"acme/*"}, Excludes: []string{"acme/legacy"}})
	require.NoError(t, err)

	got := s.Select([]string{"acme/widgets", "globex/api", "acme/legacy", "acme/tools"})
	assert.Equal(t, []string{"acme/widgets", "acme/tools"}, got)
}

func TestSelect_EmptyConfigKeepsAll(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)

	names := []string{"a", "b", "c"}
	assert.Equal(t, names, s.Select(names))
}

func TestPatternAccessors(t *testing.T) {
	s, err := New(Config{Includes: []string{"a/*"}, Excludes: []string{"b/*"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a/*"}, s.IncludePatterns())
	assert.Equal(t, []string{"b/*"}, s.ExcludePatterns())
}
