// Package orchestrator drives an analysis run through its three phases:
// configure (pick repositories and analysis phases), executing (submitted,
// possibly tracked asynchronously), and results (canonical per-repository
// outcome available).
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patternscope/patternscope/pkg/backend"
	"github.com/patternscope/patternscope/pkg/poller"
	"github.com/patternscope/patternscope/pkg/skill"
	"github.com/patternscope/patternscope/pkg/workflow"
)

// Skill ids the orchestrator invokes on the backend.
const (
	SkillSubmitAnalysis   = "submit_analysis"
	SkillVerifyDependency = "verify_dependency"
)

// Phase is the session lifecycle phase.
type Phase string

const (
	PhaseConfigure Phase = "configure"
	PhaseExecuting Phase = "executing"
	PhaseResults   Phase = "results"
)

var (
	// ErrNotConfiguring rejects mutations and submission outside the
	// configure phase.
	ErrNotConfiguring = errors.New("session is not in the configure phase")

	// ErrNoRepositories rejects submission of an empty selection.
	ErrNoRepositories = errors.New("no repositories selected")

	// ErrNoResults rejects result-phase operations before results exist.
	ErrNoResults = errors.New("session has no results yet")
)

// Backend is the slice of the analysis client the session needs.
type Backend interface {
	SubmitAnalysis(ctx context.Context, req backend.SubmitRequest) (map[string]any, error)
	WorkflowStatus(ctx context.Context, workflowID string) (map[string]any, error)
	Invoke(ctx context.Context, skillID string, payload map[string]any) (map[string]any, error)
}

// DependencyCheck records a dependency verification requested from the
// results view. Verification is fire-and-forget: the record is kept
// locally regardless of how the backend call ends.
type DependencyCheck struct {
	Repository  string    `json:"repository"`
	Dependency  string    `json:"dependency"`
	RequestedAt time.Time `json:"requested_at"`
}

// Config configures a Session.
type Config struct {
	Backend  Backend
	Executor *skill.Executor

	// Tracker, when set, also registers async workflows for external
	// observation (the serve surface lists them).
	Tracker *poller.Tracker

	// Poll overrides the poller bounds for async workflows. A zero
	// Interval defers to the backend's suggested cadence.
	Poll poller.Config

	Logger *zap.Logger
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	Phase         Phase             `json:"phase"`
	Repositories  []string          `json:"repositories"`
	WorkflowID    string            `json:"workflow_id,omitempty"`
	Async         bool              `json:"async"`
	Progress      int               `json:"progress"`
	CurrentStep   string            `json:"current_step,omitempty"`
	Error         string            `json:"error,omitempty"`
	Results       *workflow.Status  `json:"results,omitempty"`
	Verifications []DependencyCheck `json:"verifications,omitempty"`
}

// Session is a single analysis run. Safe for concurrent use.
type Session struct {
	backend  Backend
	executor *skill.Executor
	tracker  *poller.Tracker
	pollCfg  poller.Config
	logger   *zap.Logger

	mu            sync.Mutex
	phase         Phase
	repositories  []string
	phases        backend.PhaseConfig
	workflowID    string
	async         bool
	p             *poller.Poller
	results       *workflow.Status
	errMsg        string
	verifications []DependencyCheck
	done          chan struct{}
}

// NewSession creates a session in the configure phase with both analysis
// phases enabled.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	executor := cfg.Executor
	if executor == nil {
		executor = skill.NewExecutor(nil, logger)
	}
	return &Session{
		backend:  cfg.Backend,
		executor: executor,
		tracker:  cfg.Tracker,
		pollCfg:  cfg.Poll,
		logger:   logger,
		phase:    PhaseConfigure,
		phases:   backend.PhaseConfig{PatternExtraction: true, DependencyDiscovery: true},
		done:     make(chan struct{}),
	}
}

// SetRepositories replaces the repository selection. Configure phase only.
func (s *Session) SetRepositories(repos []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseConfigure {
		return ErrNotConfiguring
	}
	s.repositories = append([]string(nil), repos...)
	return nil
}

// SetPhases replaces the analysis phase selection. Configure phase only.
func (s *Session) SetPhases(phases backend.PhaseConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseConfigure {
		return ErrNotConfiguring
	}
	s.phases = phases
	return nil
}

// Submit sends the configured selection for analysis.
//
// A synchronous reply carries the full result and lands the session in
// results immediately. An async_queued acknowledgment moves the session
// to executing and starts a poller at the server-suggested interval; the
// session reaches results when the workflow terminates. The session
// leaves configure only once the backend has accepted the submission, so
// a failed attempt can be adjusted and resubmitted in place.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseConfigure {
		s.mu.Unlock()
		return ErrNotConfiguring
	}
	if len(s.repositories) == 0 {
		s.mu.Unlock()
		return ErrNoRepositories
	}
	req := backend.SubmitRequest{
		Repositories: append([]string(nil), s.repositories...),
		Phases:       s.phases,
	}
	s.errMsg = ""
	s.mu.Unlock()

	raw, st := s.executor.Execute(ctx, SkillSubmitAnalysis, func(ctx context.Context) (map[string]any, error) {
		return s.backend.SubmitAnalysis(ctx, req)
	})

	if st.DidFail {
		s.mu.Lock()
		s.errMsg = st.Error
		s.mu.Unlock()
		return errors.New(st.Error)
	}

	if st.IsAsyncQueued {
		s.startPolling(st.Queued)
		return nil
	}

	results := workflow.Transform(workflow.Payload(raw))
	s.finishFrom(nil, &results, "")
	return nil
}

// startPolling begins async tracking from a queued acknowledgment. The
// acknowledgment's suggested interval is used unless the session config
// pins one.
func (s *Session) startPolling(ack *skill.QueuedAck) {
	cfg := s.pollCfg
	if cfg.Interval <= 0 {
		cfg.Interval = time.Duration(ack.PollingIntervalMs) * time.Millisecond
	}
	cfg.Logger = s.logger

	p := poller.New(ack.WorkflowID, func(ctx context.Context) (map[string]any, error) {
		return s.backend.WorkflowStatus(ctx, ack.WorkflowID)
	}, cfg)

	p.OnUpdate(func(st poller.Status) {
		if !st.State.Terminal() {
			return
		}
		if payload := p.LastPayload(); payload != nil {
			results := workflow.Transform(workflow.Payload(payload))
			s.finishFrom(p, &results, st.Error)
			return
		}
		s.finishFrom(p, nil, st.Error)
	})

	s.mu.Lock()
	s.phase = PhaseExecuting
	s.workflowID = ack.WorkflowID
	s.async = true
	s.p = p
	s.mu.Unlock()

	if s.tracker != nil {
		s.tracker.Add(p)
	}
	s.logger.Info("tracking async workflow",
		zap.String("workflow_id", ack.WorkflowID),
		zap.Int("polling_interval_ms", ack.PollingIntervalMs))
	p.Start(context.Background())
}

// finishFrom lands the session in the results phase exactly once per
// run. The firing poller must still be the session's current one: a
// terminal callback that was in flight when Reset detached its poller is
// discarded rather than resurrecting the old run's result.
func (s *Session) finishFrom(from *poller.Poller, results *workflow.Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p != from || s.phase == PhaseResults {
		return
	}
	s.phase = PhaseResults
	s.results = results
	if errMsg != "" {
		s.errMsg = errMsg
	}
	close(s.done)
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Phase:         s.phase,
		Repositories:  append([]string(nil), s.repositories...),
		WorkflowID:    s.workflowID,
		Async:         s.async,
		Error:         s.errMsg,
		Results:       s.results,
		Verifications: append([]DependencyCheck(nil), s.verifications...),
	}
	if s.p != nil {
		ps := s.p.Status()
		st.Progress = ps.ProgressPercent
		st.CurrentStep = ps.CurrentStep
	}
	if s.phase == PhaseResults && s.results != nil {
		st.Progress = s.results.OverallProgress
	}
	return st
}

// Results returns the canonical outcome once the session reached the
// results phase.
func (s *Session) Results() (*workflow.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseResults || s.results == nil {
		return nil, ErrNoResults
	}
	return s.results, nil
}

// Done is closed when the session reaches the results phase.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// VerifyDependency requests verification of a discovered dependency.
// Results phase only. The request is recorded locally and sent to the
// backend without waiting for the reply; a backend failure does not
// remove the local record.
func (s *Session) VerifyDependency(repository, dependency string) error {
	s.mu.Lock()
	if s.phase != PhaseResults {
		s.mu.Unlock()
		return ErrNoResults
	}
	check := DependencyCheck{
		Repository:  repository,
		Dependency:  dependency,
		RequestedAt: time.Now().UTC(),
	}
	s.verifications = append(s.verifications, check)
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, st := s.executor.Execute(ctx, SkillVerifyDependency, func(ctx context.Context) (map[string]any, error) {
			return s.backend.Invoke(ctx, SkillVerifyDependency, map[string]any{
				"repository": repository,
				"dependency": dependency,
			})
		})
		if st.DidFail {
			s.logger.Warn("dependency verification failed",
				zap.String("repository", repository),
				zap.String("dependency", dependency),
				zap.String("error", st.Error))
		}
	}()
	return nil
}

// Reset stops any active tracking and returns the session to a clean
// configure phase. The previous run's results are discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	p := s.p
	s.phase = PhaseConfigure
	s.repositories = nil
	s.phases = backend.PhaseConfig{PatternExtraction: true, DependencyDiscovery: true}
	s.workflowID = ""
	s.async = false
	s.p = nil
	s.results = nil
	s.errMsg = ""
	s.verifications = nil
	s.done = make(chan struct{})
	s.mu.Unlock()

	if p != nil {
		p.Stop()
		if s.tracker != nil {
			s.tracker.Remove(p.WorkflowID())
		}
	}
}
