package skill

import (
	"sort"
	"sync"
	"time"
)

// SkillMetrics accumulates execution statistics for one skill.
type SkillMetrics struct {
	SkillID       string    `json:"skill_id"`
	Count         int       `json:"count"`
	SuccessCount  int       `json:"success_count"`
	FailureCount  int       `json:"failure_count"`
	TotalMs       int64     `json:"total_ms"`
	MinMs         int64     `json:"min_ms"`
	MaxMs         int64     `json:"max_ms"`
	LastTimestamp time.Time `json:"last_timestamp"`
}

// AvgMs returns the mean execution time across recorded calls.
func (m SkillMetrics) AvgMs() float64 {
	if m.Count == 0 {
		return 0
	}
	return float64(m.TotalMs) / float64(m.Count)
}

// MetricsTracker aggregates per-skill execution metrics across goroutines.
type MetricsTracker struct {
	mu     sync.Mutex
	skills map[string]*SkillMetrics
}

// NewMetricsTracker creates an empty tracker.
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{skills: make(map[string]*SkillMetrics)}
}

// Record folds one execution into the skill's running statistics.
func (t *MetricsTracker) Record(skillID string, durationMs int64, success bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.skills[skillID]
	if !ok {
		m = &SkillMetrics{SkillID: skillID, MinMs: durationMs, MaxMs: durationMs}
		t.skills[skillID] = m
	}
	m.Count++
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}
	m.TotalMs += durationMs
	if durationMs < m.MinMs {
		m.MinMs = durationMs
	}
	if durationMs > m.MaxMs {
		m.MaxMs = durationMs
	}
	if at.After(m.LastTimestamp) {
		m.LastTimestamp = at
	}
}

// Get returns a copy of one skill's metrics.
func (t *MetricsTracker) Get(skillID string) (SkillMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.skills[skillID]
	if !ok {
		return SkillMetrics{}, false
	}
	return *m, true
}

// Snapshot returns a copy of all recorded metrics, sorted by skill id.
func (t *MetricsTracker) Snapshot() []SkillMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SkillMetrics, 0, len(t.skills))
	for _, m := range t.skills {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out
}

// Reset drops all recorded metrics.
func (t *MetricsTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skills = make(map[string]*SkillMetrics)
}
