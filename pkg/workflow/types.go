// Package workflow normalizes the backend's workflow status payloads into
// a single canonical per-repository progress model.
//
// The status endpoint is known to answer in two materially different
// shapes: a flat list of per-(repository, phase) result records, and an
// already-aggregated list of rich repository objects. Transform detects
// the shape once at ingress and produces one typed Status either way, so
// no downstream code probes raw maps.
package workflow

// PhaseState is the lifecycle state of one analysis phase on one
// repository.
type PhaseState string

const (
	PhasePending   PhaseState = "pending"
	PhaseRunning   PhaseState = "running"
	PhaseCompleted PhaseState = "completed"
	PhaseFailed    PhaseState = "failed"
)

// Well-known phase names reported by the backend.
const (
	PhasePatternExtraction   = "pattern_extraction"
	PhaseDependencyDiscovery = "dependency_discovery"
)

// RepoState is the derived per-repository state, reduced over all phases
// observed for that repository.
type RepoState string

const (
	RepoPending   RepoState = "pending"
	RepoRunning   RepoState = "running"
	RepoCompleted RepoState = "completed"
	RepoFailed    RepoState = "failed"
)

// PhaseResult is one observed phase record for a repository.
type PhaseResult struct {
	// Name is the phase name (e.g. "pattern_extraction").
	Name string `json:"name"`

	// Status is the reported phase state.
	Status PhaseState `json:"status"`

	// Error is the phase failure message, if any.
	Error string `json:"error,omitempty"`

	// PatternsExtracted is the pattern count reported by this phase record.
	PatternsExtracted int `json:"patterns_extracted,omitempty"`

	// DependenciesDiscovered is the dependency count reported by this
	// phase record.
	DependenciesDiscovered int `json:"dependencies_discovered,omitempty"`
}

// RepositoryStatus is the canonical per-repository progress record.
type RepositoryStatus struct {
	// Name is the repository name as submitted.
	Name string `json:"name"`

	// Status is derived by precedence over the observed phases:
	// failed > running > completed > pending. A repository with zero
	// observed phases is pending.
	Status RepoState `json:"status"`

	// PatternsExtracted is read from the pattern_extraction phase record.
	PatternsExtracted int `json:"patterns_extracted"`

	// DependenciesDiscovered is read from the dependency_discovery phase
	// record.
	DependenciesDiscovered int `json:"dependencies_discovered"`

	// Phases lists observed phases in the order first discovered.
	Phases []PhaseResult `json:"phases"`

	// Error is the failure message of the first failed phase, if any.
	Error string `json:"error,omitempty"`
}

// Status is the transformed view of one workflow status payload.
type Status struct {
	// WorkflowID identifies the tracked job.
	WorkflowID string `json:"workflow_id"`

	// Status is the job-level status string (queued, running, completed,
	// failed, partial_success).
	Status string `json:"status"`

	// OverallProgress is round(100 * completed repositories / total),
	// 0 when there are no repositories.
	OverallProgress int `json:"overall_progress"`

	// Repositories holds one entry per submitted repository, in input
	// order. Repositories without any observed results still appear,
	// as pending.
	Repositories []RepositoryStatus `json:"repositories"`
}

// CompletedCount returns the number of repositories whose derived status
// is completed.
func (s Status) CompletedCount() int {
	n := 0
	for _, repo := range s.Repositories {
		if repo.Status == RepoCompleted {
			n++
		}
	}
	return n
}

// FailedCount returns the number of repositories whose derived status is
// failed.
func (s Status) FailedCount() int {
	n := 0
	for _, repo := range s.Repositories {
		if repo.Status == RepoFailed {
			n++
		}
	}
	return n
}
