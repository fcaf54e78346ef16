package poller

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Tracker manages a keyed collection of concurrently tracked workflows.
//
// Each entry owns its own polling goroutine; removing an entry stops its
// poller so no background polling leaks past the entry's lifetime.
type Tracker struct {
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]*Poller
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger: logger,
		jobs:   make(map[string]*Poller),
	}
}

// Add registers a poller under its workflow id. A previously tracked job
// with the same id is stopped and superseded.
func (t *Tracker) Add(p *Poller) {
	if p == nil {
		return
	}
	t.mu.Lock()
	old, existed := t.jobs[p.WorkflowID()]
	t.jobs[p.WorkflowID()] = p
	t.mu.Unlock()

	if existed {
		t.logger.Info("superseding tracked workflow", zap.String("workflow_id", p.WorkflowID()))
		old.Stop()
	}
}

// Remove stops and forgets a tracked job. It reports whether the id was
// tracked.
func (t *Tracker) Remove(workflowID string) bool {
	t.mu.Lock()
	p, ok := t.jobs[workflowID]
	delete(t.jobs, workflowID)
	t.mu.Unlock()

	if ok {
		p.Stop()
	}
	return ok
}

// Get returns the poller tracked under the given id.
func (t *Tracker) Get(workflowID string) (*Poller, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.jobs[workflowID]
	return p, ok
}

// All returns every tracked poller, sorted by workflow id.
func (t *Tracker) All() []*Poller {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Poller, 0, len(t.jobs))
	for _, p := range t.jobs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WorkflowID() < out[j].WorkflowID()
	})
	return out
}

// Active returns the tracked pollers whose loop is still running.
func (t *Tracker) Active() []*Poller {
	var out []*Poller
	for _, p := range t.All() {
		if p.IsPolling() {
			out = append(out, p)
		}
	}
	return out
}

// Completed returns the tracked pollers that reached a terminal state.
func (t *Tracker) Completed() []*Poller {
	var out []*Poller
	for _, p := range t.All() {
		if p.Status().State.Terminal() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// StopAll stops every tracked poller without forgetting it.
func (t *Tracker) StopAll() {
	for _, p := range t.All() {
		p.Stop()
	}
}
