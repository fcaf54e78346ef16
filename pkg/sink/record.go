// Package sink provides JSONL output for analysis runs.
//
// Output is structured as typed record envelopes containing progress
// updates, per-repository outcomes, errors, and a final summary. Each
// line is a self-contained JSON object that can be parsed independently.
package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: patternscope.<type>.v<version>
const (
	// TypeProgress identifies workflow progress update records.
	TypeProgress = "patternscope.progress.v1"

	// TypeRepository identifies per-repository outcome records.
	TypeRepository = "patternscope.repository.v1"

	// TypeError identifies error records.
	TypeError = "patternscope.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "patternscope.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "patternscope.progress.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// WorkflowID is the correlation ID for this analysis run.
	WorkflowID string `json:"workflow_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ProgressRecord is the data payload for workflow progress updates.
type ProgressRecord struct {
	// State is the workflow state at the time of the update.
	State string `json:"state"`

	// OverallProgress is the 0-100 completion percentage.
	OverallProgress int `json:"overall_progress"`

	// CurrentStep names the phase the workflow is working on, if known.
	CurrentStep string `json:"current_step,omitempty"`

	// Polls is the number of status polls performed so far.
	Polls int `json:"polls,omitempty"`
}

// RepositoryRecord is the data payload for a single repository outcome.
type RepositoryRecord struct {
	// Repository is the repository name.
	Repository string `json:"repository"`

	// Status is the repository's final analysis status.
	Status string `json:"status"`

	// PatternsExtracted counts patterns found by the extraction phase.
	PatternsExtracted int `json:"patterns_extracted"`

	// DependenciesDiscovered counts dependencies found by discovery.
	DependenciesDiscovered int `json:"dependencies_discovered"`

	// Error is the failure message, if the repository failed.
	Error string `json:"error,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire run,
// allowing partial results when some operations fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Repository is the repository related to this error, if applicable.
	Repository string `json:"repository,omitempty"`
}

// SummaryRecord is the data payload for the final run summary.
type SummaryRecord struct {
	// Status is the job-level outcome.
	Status string `json:"status"`

	// RepositoriesTotal is the number of repositories submitted.
	RepositoriesTotal int `json:"repositories_total"`

	// RepositoriesCompleted counts repositories that finished cleanly.
	RepositoriesCompleted int `json:"repositories_completed"`

	// RepositoriesFailed counts repositories that failed.
	RepositoriesFailed int `json:"repositories_failed"`

	// PatternsExtracted is the total across all repositories.
	PatternsExtracted int `json:"patterns_extracted"`

	// DependenciesDiscovered is the total across all repositories.
	DependenciesDiscovered int `json:"dependencies_discovered"`

	// OverallProgress is the final 0-100 completion percentage.
	OverallProgress int `json:"overall_progress"`

	// DurationMs is the wall-clock run duration.
	DurationMs int64 `json:"duration_ms"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// WriteError describes a failed record write.
type WriteError struct {
	// Op is the operation that failed (e.g., "marshal_data", "write").
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
