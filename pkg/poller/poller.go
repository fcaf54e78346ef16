// Package poller tracks asynchronously executing analysis workflows by
// polling the backend status endpoint until a terminal state is reached.
//
// Each Poller owns the polling loop for a single job: an immediate poll on
// start, then recurring polls at the server-suggested interval. The loop is
// modeled as a small explicit state machine (idle, polling, stopped) with a
// generation counter so that a poll still in flight when Stop is called can
// never resurrect a cancelled job's state.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/patternscope/patternscope/pkg/envelope"
)

// DefaultInterval is the poll cadence used when the backend does not
// suggest one.
const DefaultInterval = 5 * time.Second

// JobState is the client-observed lifecycle state of a tracked workflow.
type JobState string

const (
	JobQueued         JobState = "queued"
	JobRunning        JobState = "running"
	JobCompleted      JobState = "completed"
	JobFailed         JobState = "failed"
	JobPartialSuccess JobState = "partial_success"
	JobCancelled      JobState = "cancelled"
)

// Terminal reports whether no further polls can change the state.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobPartialSuccess, JobCancelled:
		return true
	default:
		return false
	}
}

// PollFunc fetches the current raw status envelope for a workflow.
type PollFunc func(ctx context.Context) (map[string]any, error)

// Config configures a Poller.
type Config struct {
	// Interval is the poll cadence.
	// Default: DefaultInterval (5s).
	Interval time.Duration

	// MaxPolls bounds the number of polls for a job that never reaches a
	// terminal state. Zero means unbounded.
	// Default: 0
	MaxPolls int

	// MaxDuration bounds the total tracking time for a job. Zero means
	// unbounded.
	// Default: 0
	MaxDuration time.Duration

	// Logger receives poll-cycle diagnostics. Nil uses a no-op logger.
	Logger *zap.Logger
}

// Status is a point-in-time snapshot of a tracked job.
type Status struct {
	WorkflowID      string    `json:"workflow_id"`
	State           JobState  `json:"state"`
	ProgressPercent int       `json:"progress_percent"`
	CurrentStep     string    `json:"current_step,omitempty"`
	Error           string    `json:"error,omitempty"`
	Polls           int       `json:"polls"`
	LastPolledAt    time.Time `json:"last_polled_at,omitzero"`
}

// runPhase is the poller's own loop state, separate from the job state.
type runPhase int

const (
	phaseIdle runPhase = iota
	phasePolling
	phaseStopped
)

// Poller drives the polling loop for one workflow.
//
// A Poller is safe for single use: once it reaches a terminal job state or
// is stopped, Start becomes a no-op.
type Poller struct {
	workflowID  string
	poll        PollFunc
	interval    time.Duration
	maxPolls    int
	maxDuration time.Duration
	logger      *zap.Logger
	onUpdate    func(Status)

	mu           sync.Mutex
	phase        runPhase
	generation   int
	state        JobState
	progress     int
	currentStep  string
	errMsg       string
	polls        int
	startedAt    time.Time
	lastPolledAt time.Time
	lastPayload  map[string]any

	stopCh chan struct{}
	done   chan struct{}
}

// New creates a poller for the given workflow.
func New(workflowID string, poll PollFunc, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		workflowID:  workflowID,
		poll:        poll,
		interval:    cfg.Interval,
		maxPolls:    cfg.MaxPolls,
		maxDuration: cfg.MaxDuration,
		logger:      logger,
		state:       JobQueued,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// OnUpdate registers a callback invoked after every applied poll result.
// Must be set before Start; the callback runs on the polling goroutine
// without the poller lock held.
func (p *Poller) OnUpdate(fn func(Status)) {
	p.onUpdate = fn
}

// WorkflowID returns the tracked workflow id.
func (p *Poller) WorkflowID() string {
	return p.workflowID
}

// Interval returns the effective poll cadence.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start begins polling: one immediate poll, then recurring polls at the
// configured interval until a terminal state or Stop.
//
// Start is idempotent against double-start: if a poll cycle is already
// active, or the poller was already stopped, it logs and no-ops.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	switch p.phase {
	case phasePolling:
		p.mu.Unlock()
		p.logger.Warn("poller already active", zap.String("workflow_id", p.workflowID))
		return
	case phaseStopped:
		p.mu.Unlock()
		p.logger.Warn("poller already stopped", zap.String("workflow_id", p.workflowID))
		return
	}
	p.phase = phasePolling
	p.startedAt = time.Now().UTC()
	gen := p.generation
	p.mu.Unlock()

	go p.run(ctx, gen)
}

// Stop cancels tracking. Safe to call multiple times. A poll already in
// flight is allowed to complete, but its result is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.phase == phaseStopped {
		p.mu.Unlock()
		return
	}
	neverStarted := p.phase == phaseIdle
	p.phase = phaseStopped
	p.generation++
	if !p.state.Terminal() {
		p.state = JobCancelled
	}
	close(p.stopCh)
	if neverStarted {
		close(p.done)
	}
	p.mu.Unlock()
}

// IsPolling reports whether the polling loop is active.
func (p *Poller) IsPolling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase == phasePolling
}

// Done is closed once the polling loop has fully wound down, including
// any poll that was in flight at stop time.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Status returns a snapshot of the tracked job.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

// LastPayload returns the most recent raw status payload that passed
// envelope validation, or nil. Callers must treat it as read-only.
func (p *Poller) LastPayload() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPayload
}

func (p *Poller) statusLocked() Status {
	return Status{
		WorkflowID:      p.workflowID,
		State:           p.state,
		ProgressPercent: p.progress,
		CurrentStep:     p.currentStep,
		Error:           p.errMsg,
		Polls:           p.polls,
		LastPolledAt:    p.lastPolledAt,
	}
}

func (p *Poller) run(ctx context.Context, gen int) {
	defer close(p.done)

	p.cycle(ctx, gen)
	if p.finished() {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.cancelOnContext(gen, ctx.Err())
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.cycle(ctx, gen)
			if p.finished() {
				return
			}
		}
	}
}

func (p *Poller) finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase != phasePolling
}

// cycle performs one poll and applies its result, then fires the update
// callback outside the lock.
func (p *Poller) cycle(ctx context.Context, gen int) {
	raw, err := p.poll(ctx)
	snap, notify := p.apply(gen, raw, err)
	if notify && p.onUpdate != nil {
		p.onUpdate(snap)
	}
}

// apply folds one poll outcome into the job state. Stale results (a Stop
// or supersede bumped the generation while the poll was in flight) are
// discarded without touching state.
func (p *Poller) apply(gen int, raw map[string]any, pollErr error) (Status, bool) {
	now := time.Now().UTC()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != gen || p.phase != phasePolling {
		return Status{}, false
	}

	p.polls++
	p.lastPolledAt = now

	if pollErr != nil {
		// The UI cannot distinguish "job failed" from "we can't find
		// out"; a failure to reach the backend terminates tracking.
		p.state = JobFailed
		p.errMsg = pollErr.Error()
		p.phase = phaseStopped
		return p.statusLocked(), true
	}

	res := envelope.Validate(raw)
	if !res.Valid {
		p.logger.Warn("discarding invalid status envelope",
			zap.String("workflow_id", p.workflowID),
			zap.Strings("errors", res.Errors))
		p.enforceBoundsLocked(now)
		return p.statusLocked(), true
	}
	for _, warning := range res.Warnings {
		p.logger.Debug("status envelope warning",
			zap.String("workflow_id", p.workflowID),
			zap.String("warning", warning))
	}

	p.lastPayload = raw
	resp := envelope.FromRaw(raw)
	meta := decodeMetadata(resp.Metadata)

	if meta.State != "" {
		p.state = JobState(meta.State)
	} else if resp.Success {
		p.state = JobCompleted
	} else {
		p.state = JobFailed
	}
	if meta.ProgressPercent > 0 {
		p.progress = meta.ProgressPercent
	}
	if meta.CurrentStep != "" {
		p.currentStep = meta.CurrentStep
	}
	if p.state == JobFailed || p.state == JobPartialSuccess {
		if resp.Error != "" {
			p.errMsg = resp.Error
		}
	}

	if p.state.Terminal() {
		p.progress = terminalProgress(p.state, p.progress)
		p.phase = phaseStopped
		return p.statusLocked(), true
	}
	if p.state == JobQueued {
		// First successful poll of a queued job moves it to running on
		// the client side; the backend may keep reporting queued.
		p.state = JobRunning
	}

	p.enforceBoundsLocked(now)
	return p.statusLocked(), true
}

func (p *Poller) cancelOnContext(gen int, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != gen || p.phase != phasePolling {
		return
	}
	p.phase = phaseStopped
	if !p.state.Terminal() {
		p.state = JobCancelled
		if cause != nil {
			p.errMsg = cause.Error()
		}
	}
}

// enforceBoundsLocked applies the optional poll-count and duration limits.
// Both default to unbounded, preserving the poll-until-terminal behavior.
func (p *Poller) enforceBoundsLocked(now time.Time) {
	if p.maxPolls > 0 && p.polls >= p.maxPolls {
		p.state = JobFailed
		p.errMsg = fmt.Sprintf("no terminal state after %d polls", p.polls)
		p.phase = phaseStopped
		return
	}
	if p.maxDuration > 0 && now.Sub(p.startedAt) >= p.maxDuration {
		p.state = JobFailed
		p.errMsg = fmt.Sprintf("no terminal state after %s", p.maxDuration)
		p.phase = phaseStopped
	}
}

func terminalProgress(state JobState, progress int) int {
	if state == JobCompleted {
		return 100
	}
	return progress
}

// pollMetadata is the workflow sub-state carried in the envelope's
// metadata bag.
type pollMetadata struct {
	State           string `mapstructure:"state"`
	ProgressPercent int    `mapstructure:"progress_percent"`
	CurrentStep     string `mapstructure:"current_step"`
}

func decodeMetadata(m map[string]any) pollMetadata {
	var meta pollMetadata
	if m == nil {
		return meta
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &meta,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return meta
	}
	// Decode failures leave the zero value; metadata is advisory.
	_ = dec.Decode(m)
	return meta
}
