package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `
name: nightly-analysis
backend:
  base_url: http://localhost:8080
  timeout_seconds: 10
  rate_limit: 5
repositories:
  - acme/widgets
  - acme/legacy
  - globex/api
select:
  includes:
    - "acme/*"
  excludes:
    - "acme/legacy"
phases:
  pattern_extraction: true
  dependency_discovery: false
poll:
  interval_ms: 2000
  max_polls: 100
output:
  destination: results.jsonl
`

func TestLoadFromBytes_Valid(t *testing.T) {
	m, err := LoadFromBytes([]byte(validManifest))
	require.NoError(t, err)

	assert.Equal(t, "nightly-analysis", m.Name)
	assert.Equal(t, "http://localhost:8080", m.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, m.Backend.Timeout())
	assert.Equal(t, 5.0, m.Backend.RateLimit)
	assert.Len(t, m.Repositories, 3)
	require.NotNil(t, m.Select)
	assert.Equal(t, []string{"acme/*"}, m.Select.Includes)
	require.NotNil(t, m.Phases.DependencyDiscovery)
	assert.False(t, *m.Phases.DependencyDiscovery)
	assert.Equal(t, 2*time.Second, m.Poll.Interval())
	assert.Equal(t, 100, m.Poll.MaxPolls)
	assert.Equal(t, "results.jsonl", m.Output.Destination)
}

func TestLoadFromBytes_Defaults(t *testing.T) {
	m, err := LoadFromBytes([]byte(`
backend:
  base_url: http://localhost:8080
repositories:
  - r1
`))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, m.Backend.Timeout())
	require.NotNil(t, m.Phases)
	assert.True(t, *m.Phases.PatternExtraction)
	assert.True(t, *m.Phases.DependencyDiscovery)
	require.NotNil(t, m.Poll)
	assert.Zero(t, m.Poll.MaxPolls, "polling is unbounded by default")
	assert.Zero(t, m.Poll.MaxDuration())
	assert.Equal(t, "-", m.Output.Destination)
}

func TestLoadFromBytes_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
backend:
  base_url: http://localhost:8080
  baseurl: typo
repositories:
  - r1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestLoadFromBytes_Empty(t *testing.T) {
	_, err := LoadFromBytes(nil)
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validManifest), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly-analysis", m.Name)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	off := false
	m := &Manifest{
		Backend: BackendConfig{BaseURL: "", RateLimit: -1},
		Phases:  &PhasesConfig{PatternExtraction: &off, DependencyDiscovery: &off},
		Poll:    &PollConfig{MaxPolls: -1},
	}

	err := Validate(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)

	var errs ValidationErrors
	require.True(t, errors.As(err, &errs))
	paths := make([]string, 0, len(errs))
	for _, e := range errs {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "backend.base_url")
	assert.Contains(t, paths, "backend.rate_limit")
	assert.Contains(t, paths, "repositories")
	assert.Contains(t, paths, "phases")
	assert.Contains(t, paths, "poll.max_polls")
}

func TestValidate_BaseURLMustBeAbsolute(t *testing.T) {
	m := &Manifest{
		Backend:      BackendConfig{BaseURL: "localhost:8080"},
		Repositories: []string{"r1"},
	}
	m.ApplyDefaults()

	err := Validate(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute URL")
}

func TestValidate_Archive(t *testing.T) {
	base := func() *Manifest {
		m := &Manifest{
			Backend:      BackendConfig{BaseURL: "http://localhost:8080"},
			Repositories: []string{"r1"},
		}
		m.ApplyDefaults()
		return m
	}

	m := base()
	m.Archive = &ArchiveConfig{Destination: "gs://bucket/prefix"}
	err := Validate(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://")

	m = base()
	m.Archive = &ArchiveConfig{Destination: "s3://bucket/reports", AccessKeyID: "AKIA..."}
	err = Validate(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set together")

	m = base()
	m.Archive = &ArchiveConfig{Destination: "s3://bucket/reports"}
	assert.NoError(t, Validate(m))
}

func TestValidationError_Formatting(t *testing.T) {
	e := ValidationError{Path: "backend.base_url", Message: "is required"}
	assert.Equal(t, "backend.base_url: is required", e.Error())

	assert.Equal(t, "is required", ValidationError{Message: "is required"}.Error())

	errs := ValidationErrors{e, {Path: "repositories", Message: "at least one repository is required"}}
	assert.Contains(t, errs.Error(), "2 errors")
}
