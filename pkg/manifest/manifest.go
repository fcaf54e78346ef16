// Package manifest defines the analysis run manifest: which backend to
// talk to, which repositories to analyze, which phases to run, and where
// the results go.
package manifest

import "time"

// Manifest is the top-level analysis run description.
type Manifest struct {
	// Name is an optional human-readable run name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Backend configures the analysis backend connection.
	Backend BackendConfig `json:"backend" yaml:"backend"`

	// Repositories is the candidate repository list.
	Repositories []string `json:"repositories" yaml:"repositories"`

	// Select narrows the repository list with glob patterns.
	Select *SelectConfig `json:"select,omitempty" yaml:"select,omitempty"`

	// Phases selects the analysis phases to run.
	Phases *PhasesConfig `json:"phases,omitempty" yaml:"phases,omitempty"`

	// Poll configures async workflow tracking.
	Poll *PollConfig `json:"poll,omitempty" yaml:"poll,omitempty"`

	// Output configures where run records are written.
	Output *OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`

	// Archive configures optional report upload to object storage.
	Archive *ArchiveConfig `json:"archive,omitempty" yaml:"archive,omitempty"`
}

// BackendConfig is the analysis backend connection.
type BackendConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:8080".
	BaseURL string `json:"base_url" yaml:"base_url"`

	// TimeoutSeconds bounds each request.
	// Default: 30
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`

	// RateLimit is the sustained request rate in requests per second.
	// Zero disables client-side limiting.
	// Default: 0
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// Timeout returns the configured request timeout as a duration.
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SelectConfig narrows the repository list with glob patterns.
type SelectConfig struct {
	// Includes are glob patterns repositories must match (at least one).
	// Empty means all repositories are included.
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`

	// Excludes are glob patterns repositories must not match.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`
}

// PhasesConfig selects the analysis phases. Nil pointers mean enabled.
type PhasesConfig struct {
	// PatternExtraction runs the pattern extraction phase.
	// Default: true
	PatternExtraction *bool `json:"pattern_extraction,omitempty" yaml:"pattern_extraction,omitempty"`

	// DependencyDiscovery runs the dependency discovery phase.
	// Default: true
	DependencyDiscovery *bool `json:"dependency_discovery,omitempty" yaml:"dependency_discovery,omitempty"`
}

// PollConfig bounds async workflow tracking. Both limits default to
// unbounded: the run polls until the workflow reaches a terminal state.
type PollConfig struct {
	// IntervalMs overrides the backend-suggested polling interval.
	// Zero means use the backend's suggestion.
	IntervalMs int `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`

	// MaxPolls bounds the number of status polls. Zero means unbounded.
	MaxPolls int `json:"max_polls,omitempty" yaml:"max_polls,omitempty"`

	// MaxDurationSeconds bounds total tracking time. Zero means unbounded.
	MaxDurationSeconds int `json:"max_duration_seconds,omitempty" yaml:"max_duration_seconds,omitempty"`
}

// MaxDuration returns the tracking time bound as a duration.
func (c PollConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationSeconds) * time.Second
}

// Interval returns the polling interval override as a duration.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// OutputConfig is where run records are written.
type OutputConfig struct {
	// Destination is "-" for stdout or a file path for JSONL output.
	// Default: "-"
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
}

// ArchiveConfig uploads the final report to S3-compatible storage.
type ArchiveConfig struct {
	// Destination is an s3://bucket/prefix URL.
	Destination string `json:"destination" yaml:"destination"`

	// Region is the bucket region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint for compatible stores.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey are static credentials. Both must
	// be set together; leave empty to use the ambient credential chain.
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
}

// ApplyDefaults fills in default values for optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Backend.TimeoutSeconds <= 0 {
		m.Backend.TimeoutSeconds = 30
	}
	if m.Phases == nil {
		m.Phases = &PhasesConfig{}
	}
	if m.Phases.PatternExtraction == nil {
		enabled := true
		m.Phases.PatternExtraction = &enabled
	}
	if m.Phases.DependencyDiscovery == nil {
		enabled := true
		m.Phases.DependencyDiscovery = &enabled
	}
	if m.Poll == nil {
		m.Poll = &PollConfig{}
	}
	if m.Output == nil {
		m.Output = &OutputConfig{}
	}
	if m.Output.Destination == "" {
		m.Output.Destination = "-"
	}
}
