package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternscope/patternscope/pkg/backend"
	"github.com/patternscope/patternscope/pkg/workflow"
)

// fakeBackend scripts backend replies for session tests.
type fakeBackend struct {
	mu          sync.Mutex
	submitRaw   map[string]any
	submitErr   error
	statusRaws  []map[string]any
	statusCalls int
	invoked     []string
	invokeErr   error

	// submitStarted/submitRelease, when set, gate SubmitAnalysis so a
	// test can observe the session mid-submission.
	submitStarted chan struct{}
	submitRelease chan struct{}
}

func (f *fakeBackend) SubmitAnalysis(ctx context.Context, req backend.SubmitRequest) (map[string]any, error) {
	if f.submitStarted != nil {
		close(f.submitStarted)
	}
	if f.submitRelease != nil {
		<-f.submitRelease
	}
	return f.submitRaw, f.submitErr
}

func (f *fakeBackend) WorkflowStatus(ctx context.Context, workflowID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.statusCalls
	if i >= len(f.statusRaws) {
		i = len(f.statusRaws) - 1
	}
	f.statusCalls++
	return f.statusRaws[i], nil
}

func (f *fakeBackend) Invoke(ctx context.Context, skillID string, payload map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, skillID)
	if f.invokeErr != nil {
		return nil, f.invokeErr
	}
	return map[string]any{
		"success":           true,
		"timestamp":         "2026-01-19T12:00:00Z",
		"execution_time_ms": float64(1),
	}, nil
}

func syncResultEnvelope() map[string]any {
	return map[string]any{
		"success":           true,
		"timestamp":         "2026-01-19T12:00:00Z",
		"execution_time_ms": float64(20),
		"data": map[string]any{
			"workflow_id":  "wf-sync",
			"repositories": []any{"r1"},
			"results": []any{
				map[string]any{
					"repository":         "r1",
					"phase":              "pattern_extraction",
					"status":             "completed",
					"patterns_extracted": float64(7),
				},
			},
		},
	}
}

func queuedEnvelope() map[string]any {
	return map[string]any{
		"success":             true,
		"timestamp":           "2026-01-19T12:00:00Z",
		"execution_time_ms":   float64(2),
		"state":               "async_queued",
		"workflow_id":         "wf-async",
		"polling_interval_ms": float64(10),
		"repositories_count":  float64(1),
	}
}

func runningStatusEnvelope() map[string]any {
	return map[string]any{
		"success":           true,
		"timestamp":         "2026-01-19T12:00:01Z",
		"execution_time_ms": float64(1),
		"workflow_id":       "wf-async",
		"metadata": map[string]any{
			"state":            "running",
			"progress_percent": float64(50),
			"current_step":     "pattern_extraction",
		},
	}
}

func completedStatusEnvelope() map[string]any {
	return map[string]any{
		"success":           true,
		"timestamp":         "2026-01-19T12:00:02Z",
		"execution_time_ms": float64(1),
		"workflow_id":       "wf-async",
		"repositories":      []any{"r1"},
		"results": []any{
			map[string]any{
				"repository":         "r1",
				"phase":              "pattern_extraction",
				"status":             "completed",
				"patterns_extracted": float64(4),
			},
		},
		"metadata": map[string]any{"state": "completed"},
	}
}

func waitResults(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not reach results in time")
	}
}

func TestSession_SynchronousRun(t *testing.T) {
	s := NewSession(Config{Backend: &fakeBackend{submitRaw: syncResultEnvelope()}})

	assert.Equal(t, PhaseConfigure, s.Status().Phase)
	require.NoError(t, s.SetRepositories([]string{"r1"}))
	require.NoError(t, s.Submit(context.Background()))

	st := s.Status()
	assert.Equal(t, PhaseResults, st.Phase)
	assert.False(t, st.Async)
	assert.Equal(t, 100, st.Progress)

	results, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, "wf-sync", results.WorkflowID)
	require.Len(t, results.Repositories, 1)
	assert.Equal(t, workflow.RepoCompleted, results.Repositories[0].Status)
	assert.Equal(t, 7, results.Repositories[0].PatternsExtracted)
}

func TestSession_AsyncRun(t *testing.T) {
	fb := &fakeBackend{
		submitRaw: queuedEnvelope(),
		statusRaws: []map[string]any{
			runningStatusEnvelope(),
			completedStatusEnvelope(),
		},
	}
	s := NewSession(Config{Backend: fb})

	require.NoError(t, s.SetRepositories([]string{"r1"}))
	require.NoError(t, s.Submit(context.Background()))

	st := s.Status()
	assert.True(t, st.Async)
	assert.Equal(t, "wf-async", st.WorkflowID)

	waitResults(t, s)

	st = s.Status()
	assert.Equal(t, PhaseResults, st.Phase)
	results, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, 4, results.Repositories[0].PatternsExtracted)
	assert.Equal(t, 100, results.OverallProgress)
}

func TestSession_SubmitFailureReturnsToConfigure(t *testing.T) {
	s := NewSession(Config{Backend: &fakeBackend{submitErr: errors.New("backend down")}})

	require.NoError(t, s.SetRepositories([]string{"r1"}))
	err := s.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")

	st := s.Status()
	assert.Equal(t, PhaseConfigure, st.Phase, "a failed submission is retryable")
	assert.Equal(t, "backend down", st.Error)
}

func TestSession_ConfigureHeldDuringSubmission(t *testing.T) {
	fb := &fakeBackend{
		submitErr:     errors.New("backend down"),
		submitStarted: make(chan struct{}),
		submitRelease: make(chan struct{}),
	}
	s := NewSession(Config{Backend: fb})
	require.NoError(t, s.SetRepositories([]string{"r1"}))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Submit(context.Background()) }()

	select {
	case <-fb.submitStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never reached the backend")
	}
	assert.Equal(t, PhaseConfigure, s.Status().Phase,
		"executing is reached only once the backend accepts the submission")
	close(fb.submitRelease)

	require.Error(t, <-errCh)
	st := s.Status()
	assert.Equal(t, PhaseConfigure, st.Phase)
	assert.Equal(t, "backend down", st.Error)
}

func TestSession_SubmitValidation(t *testing.T) {
	s := NewSession(Config{Backend: &fakeBackend{submitRaw: syncResultEnvelope()}})

	assert.ErrorIs(t, s.Submit(context.Background()), ErrNoRepositories)

	require.NoError(t, s.SetRepositories([]string{"r1"}))
	require.NoError(t, s.Submit(context.Background()))

	// No mutation or resubmission outside configure.
	assert.ErrorIs(t, s.SetRepositories([]string{"r2"}), ErrNotConfiguring)
	assert.ErrorIs(t, s.SetPhases(backend.PhaseConfig{}), ErrNotConfiguring)
	assert.ErrorIs(t, s.Submit(context.Background()), ErrNotConfiguring)
}

func TestSession_VerifyDependency(t *testing.T) {
	fb := &fakeBackend{submitRaw: syncResultEnvelope()}
	s := NewSession(Config{Backend: fb})

	assert.ErrorIs(t, s.VerifyDependency("r1", "lodash"), ErrNoResults)

	require.NoError(t, s.SetRepositories([]string{"r1"}))
	require.NoError(t, s.Submit(context.Background()))
	require.NoError(t, s.VerifyDependency("r1", "lodash"))

	st := s.Status()
	require.Len(t, st.Verifications, 1)
	assert.Equal(t, "r1", st.Verifications[0].Repository)
	assert.Equal(t, "lodash", st.Verifications[0].Dependency)

	require.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return len(fb.invoked) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSession_VerifyDependencyKeepsRecordOnBackendFailure(t *testing.T) {
	fb := &fakeBackend{submitRaw: syncResultEnvelope(), invokeErr: errors.New("unavailable")}
	s := NewSession(Config{Backend: fb})

	require.NoError(t, s.SetRepositories([]string{"r1"}))
	require.NoError(t, s.Submit(context.Background()))
	require.NoError(t, s.VerifyDependency("r1", "left-pad"))

	require.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return len(fb.invoked) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, s.Status().Verifications, 1)
}

func TestSession_Reset(t *testing.T) {
	fb := &fakeBackend{
		submitRaw:  queuedEnvelope(),
		statusRaws: []map[string]any{runningStatusEnvelope()},
	}
	s := NewSession(Config{Backend: fb})

	require.NoError(t, s.SetRepositories([]string{"r1"}))
	require.NoError(t, s.Submit(context.Background()))
	require.True(t, s.Status().Async)

	s.Reset()

	st := s.Status()
	assert.Equal(t, PhaseConfigure, st.Phase)
	assert.Empty(t, st.Repositories)
	assert.Empty(t, st.WorkflowID)
	assert.False(t, st.Async)
	_, err := s.Results()
	assert.ErrorIs(t, err, ErrNoResults)

	// The session is reusable after reset.
	fb.submitRaw = syncResultEnvelope()
	require.NoError(t, s.SetRepositories([]string{"r1"}))
	require.NoError(t, s.Submit(context.Background()))
	assert.Equal(t, PhaseResults, s.Status().Phase)
}

func TestSession_ResetDiscardsInFlightTerminalResult(t *testing.T) {
	fb := &fakeBackend{
		submitRaw:  queuedEnvelope(),
		statusRaws: []map[string]any{runningStatusEnvelope()},
	}
	s := NewSession(Config{Backend: fb})

	require.NoError(t, s.SetRepositories([]string{"r1"}))
	require.NoError(t, s.Submit(context.Background()))

	s.mu.Lock()
	detached := s.p
	s.mu.Unlock()
	require.NotNil(t, detached)

	s.Reset()

	// A terminal callback the detached poller still had in flight at
	// reset time must not land its result on the fresh session.
	completed := workflow.Transform(workflow.Payload(completedStatusEnvelope()))
	s.finishFrom(detached, &completed, "")

	st := s.Status()
	assert.Equal(t, PhaseConfigure, st.Phase)
	assert.Empty(t, st.WorkflowID)
	_, err := s.Results()
	assert.ErrorIs(t, err, ErrNoResults)
}
