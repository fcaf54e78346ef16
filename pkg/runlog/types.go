package runlog

import "time"

// RunState is the lifecycle state of a recorded analysis run.
//
// NOTE: These values are persisted in run.json and are part of the stable
// on-disk contract.
type RunState string

const (
	RunStateQueued         RunState = "queued"
	RunStateRunning        RunState = "running"
	RunStateCompleted      RunState = "completed"
	RunStateFailed         RunState = "failed"
	RunStatePartialSuccess RunState = "partial_success"
	RunStateCancelled      RunState = "cancelled"
	RunStateUnknown        RunState = "unknown"
)

// Terminal reports whether the run can no longer change state.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStatePartialSuccess, RunStateCancelled:
		return true
	default:
		return false
	}
}

// RunRecord is the persistent record written to run.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type RunRecord struct {
	WorkflowID        string    `json:"workflow_id"`
	Name              string    `json:"name,omitempty"`
	State             RunState  `json:"state"`
	Repositories      []string  `json:"repositories"`
	PollingIntervalMs int       `json:"polling_interval_ms,omitempty"`
	OverallProgress   int       `json:"overall_progress"`
	ManifestPath      string    `json:"manifest_path,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	ResultPath   string     `json:"result_path,omitempty"`
}
