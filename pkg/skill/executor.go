// Package skill wraps backend skill invocations with lifecycle tracking:
// a per-skill running flag, response validation, execution metrics, and
// detection of asynchronously queued workflows.
package skill

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/patternscope/patternscope/pkg/envelope"
)

// DefaultPollingIntervalMs is assumed when an async acknowledgment does
// not suggest a polling cadence.
const DefaultPollingIntervalMs = 5000

// CallFunc performs the actual backend invocation for a skill.
type CallFunc func(ctx context.Context) (map[string]any, error)

// QueuedAck is the acknowledgment payload of an asynchronously queued
// workflow.
type QueuedAck struct {
	WorkflowID        string `mapstructure:"workflow_id" json:"workflow_id"`
	PollingIntervalMs int    `mapstructure:"polling_interval_ms" json:"polling_interval_ms"`
	RepositoriesCount int    `mapstructure:"repositories_count" json:"repositories_count"`
}

// State is the outcome of one wrapped skill execution.
type State struct {
	SkillID          string                     `json:"skill_id"`
	IsRunning        bool                       `json:"is_running"`
	DidSucceed       bool                       `json:"did_succeed"`
	DidFail          bool                       `json:"did_fail"`
	IsAsyncQueued    bool                       `json:"is_async_queued"`
	ValidationErrors []string                   `json:"validation_errors,omitempty"`
	Error            string                     `json:"error,omitempty"`
	Metrics          *envelope.ExecutionMetrics `json:"metrics,omitempty"`
	Queued           *QueuedAck                 `json:"queued,omitempty"`
}

// Executor runs skill calls and tracks their lifecycle and metrics.
// Concurrent executions of different skills are independent; a second
// execution of a skill already running is rejected.
type Executor struct {
	logger  *zap.Logger
	metrics *MetricsTracker

	mu      sync.Mutex
	running map[string]bool
	last    map[string]State
}

// NewExecutor creates an executor recording into the given tracker.
// A nil tracker gets a private one; a nil logger is replaced by a no-op.
func NewExecutor(metrics *MetricsTracker, logger *zap.Logger) *Executor {
	if metrics == nil {
		metrics = NewMetricsTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		logger:  logger,
		metrics: metrics,
		running: make(map[string]bool),
		last:    make(map[string]State),
	}
}

// Metrics returns the tracker executions are recorded into.
func (e *Executor) Metrics() *MetricsTracker {
	return e.metrics
}

// IsRunning reports whether an execution of the skill is in flight.
func (e *Executor) IsRunning(skillID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[skillID]
}

// LastState returns the outcome of the skill's most recent execution.
func (e *Executor) LastState(skillID string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.last[skillID]
	return st, ok
}

// Execute runs a skill call and folds its response into a State.
//
// The running flag is set for the duration of the call and cleared on
// every exit path, including a panicking call. An invalid response
// envelope yields a failed State carrying the validation errors and a
// nil raw payload.
func (e *Executor) Execute(ctx context.Context, skillID string, call CallFunc) (map[string]any, State) {
	e.mu.Lock()
	if e.running[skillID] {
		e.mu.Unlock()
		st := State{
			SkillID: skillID,
			DidFail: true,
			Error:   fmt.Sprintf("skill %q is already running", skillID),
		}
		return nil, st
	}
	e.running[skillID] = true
	e.mu.Unlock()

	raw, st := e.execute(ctx, skillID, call)

	e.mu.Lock()
	e.running[skillID] = false
	e.last[skillID] = st
	e.mu.Unlock()
	return raw, st
}

func (e *Executor) execute(ctx context.Context, skillID string, call CallFunc) (raw map[string]any, st State) {
	st = State{SkillID: skillID}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("skill call panicked",
				zap.String("skill_id", skillID),
				zap.Any("panic", r))
			raw = nil
			st.DidSucceed = false
			st.DidFail = true
			st.Error = fmt.Sprintf("skill call panicked: %v", r)
		}
	}()

	raw, err := call(ctx)
	if err != nil {
		e.logger.Warn("skill call failed",
			zap.String("skill_id", skillID),
			zap.Error(err))
		st.DidFail = true
		st.Error = err.Error()
		return nil, st
	}

	res := envelope.Validate(raw)
	if !res.Valid {
		e.logger.Warn("skill returned invalid response envelope",
			zap.String("skill_id", skillID),
			zap.Strings("errors", res.Errors))
		st.DidFail = true
		st.ValidationErrors = res.Errors
		st.Error = "invalid response envelope"
		return nil, st
	}
	for _, warning := range res.Warnings {
		e.logger.Debug("response envelope warning",
			zap.String("skill_id", skillID),
			zap.String("warning", warning))
	}

	metrics := envelope.ExtractMetrics(raw)
	st.Metrics = &metrics
	e.metrics.Record(skillID, metrics.ExecutionTimeMs, metrics.Success, metrics.Timestamp)

	resp := envelope.FromRaw(raw)
	st.DidSucceed = resp.Success
	st.DidFail = !resp.Success
	if resp.Error != "" {
		st.Error = resp.Error
	}

	if resp.State() == envelope.StateAsyncQueued {
		st.IsAsyncQueued = true
		st.Queued = decodeQueuedAck(raw)
		e.logger.Info("workflow queued for async execution",
			zap.String("skill_id", skillID),
			zap.String("workflow_id", st.Queued.WorkflowID),
			zap.Int("polling_interval_ms", st.Queued.PollingIntervalMs),
			zap.Int("repositories_count", st.Queued.RepositoriesCount))
	}
	return raw, st
}

// decodeQueuedAck reads the async acknowledgment fields, falling back to
// the default polling interval when the backend omits one.
func decodeQueuedAck(raw map[string]any) *QueuedAck {
	ack := &QueuedAck{PollingIntervalMs: DefaultPollingIntervalMs}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           ack,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return ack
	}
	_ = dec.Decode(raw)
	if ack.PollingIntervalMs <= 0 {
		ack.PollingIntervalMs = DefaultPollingIntervalMs
	}
	return ack
}
