package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatPayload() map[string]any {
	return map[string]any{
		"workflow_id":  "wf-1",
		"repositories": []any{"r1", "r2"},
		"results": []any{
			map[string]any{
				"repository":         "r1",
				"phase":              "pattern_extraction",
				"status":             "completed",
				"patterns_extracted": float64(5),
			},
			map[string]any{
				"repository": "r2",
				"phase":      "pattern_extraction",
				"status":     "failed",
				"error":      "timeout",
			},
		},
	}
}

func TestTransform_FlatResults(t *testing.T) {
	got := Transform(flatPayload())

	assert.Equal(t, "wf-1", got.WorkflowID)
	require.Len(t, got.Repositories, 2)

	r1 := got.Repositories[0]
	assert.Equal(t, "r1", r1.Name)
	assert.Equal(t, RepoCompleted, r1.Status)
	assert.Equal(t, 5, r1.PatternsExtracted)
	assert.Empty(t, r1.Error)

	r2 := got.Repositories[1]
	assert.Equal(t, "r2", r2.Name)
	assert.Equal(t, RepoFailed, r2.Status)
	assert.Equal(t, "timeout", r2.Error)

	assert.Equal(t, 50, got.OverallProgress)
}

func TestTransform_EmptyRepositories(t *testing.T) {
	got := Transform(map[string]any{
		"workflow_id":  "wf-2",
		"repositories": []any{},
		"results":      []any{},
	})

	assert.Empty(t, got.Repositories)
	assert.Equal(t, 0, got.OverallProgress)
}

func TestTransform_Idempotent(t *testing.T) {
	raw := flatPayload()

	first := Transform(raw)
	second := Transform(raw)

	assert.Equal(t, first, second)
}

func TestTransform_DuplicatePhaseRecordsLastWriteWins(t *testing.T) {
	raw := map[string]any{
		"repositories": []any{"r1"},
		"results": []any{
			map[string]any{
				"repository":         "r1",
				"phase":              "pattern_extraction",
				"status":             "running",
				"patterns_extracted": float64(1),
			},
			map[string]any{
				"repository":         "r1",
				"phase":              "pattern_extraction",
				"status":             "completed",
				"patterns_extracted": float64(9),
			},
		},
	}

	got := Transform(raw)

	require.Len(t, got.Repositories, 1)
	r1 := got.Repositories[0]
	require.Len(t, r1.Phases, 1, "duplicates must collapse to one phase entry")
	assert.Equal(t, PhaseCompleted, r1.Phases[0].Status)
	assert.Equal(t, 9, r1.PatternsExtracted)
	assert.Equal(t, RepoCompleted, r1.Status)
}

func TestTransform_RepositoryWithoutResultsIsPending(t *testing.T) {
	raw := map[string]any{
		"repositories": []any{"r1", "r2"},
		"results": []any{
			map[string]any{
				"repository": "r1",
				"phase":      "pattern_extraction",
				"status":     "completed",
			},
		},
	}

	got := Transform(raw)

	require.Len(t, got.Repositories, 2, "repositories without results must not be dropped")
	r2 := got.Repositories[1]
	assert.Equal(t, "r2", r2.Name)
	assert.Equal(t, RepoPending, r2.Status)
	assert.Empty(t, r2.Phases)
	assert.Zero(t, r2.PatternsExtracted)
	assert.Zero(t, r2.DependenciesDiscovered)
}

func TestTransform_StatusPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     RepoState
	}{
		{"failed beats running", []string{"running", "failed"}, RepoFailed},
		{"failed beats completed", []string{"completed", "failed"}, RepoFailed},
		{"running beats completed", []string{"completed", "running"}, RepoRunning},
		{"completed beats pending", []string{"pending", "completed"}, RepoCompleted},
		{"all pending", []string{"pending", "pending"}, RepoPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]any, 0, len(tt.statuses))
			for i, status := range tt.statuses {
				results = append(results, map[string]any{
					"repository": "r1",
					"phase":      []string{"pattern_extraction", "dependency_discovery"}[i%2],
					"status":     status,
				})
			}
			got := Transform(map[string]any{
				"repositories": []any{"r1"},
				"results":      results,
			})

			require.Len(t, got.Repositories, 1)
			assert.Equal(t, tt.want, got.Repositories[0].Status)
		})
	}
}

func TestTransform_PhaseOrderIsFirstDiscovered(t *testing.T) {
	raw := map[string]any{
		"repositories": []any{"r1"},
		"results": []any{
			map[string]any{"repository": "r1", "phase": "dependency_discovery", "status": "running"},
			map[string]any{"repository": "r1", "phase": "pattern_extraction", "status": "running"},
			map[string]any{"repository": "r1", "phase": "dependency_discovery", "status": "completed"},
		},
	}

	got := Transform(raw)

	require.Len(t, got.Repositories, 1)
	phases := got.Repositories[0].Phases
	require.Len(t, phases, 2)
	assert.Equal(t, "dependency_discovery", phases[0].Name)
	assert.Equal(t, PhaseCompleted, phases[0].Status)
	assert.Equal(t, "pattern_extraction", phases[1].Name)
}

func TestTransform_DependencyCounts(t *testing.T) {
	raw := map[string]any{
		"repositories": []any{"r1"},
		"results": []any{
			map[string]any{
				"repository":              "r1",
				"phase":                   "dependency_discovery",
				"status":                  "completed",
				"dependencies_discovered": float64(12),
			},
		},
	}

	got := Transform(raw)

	require.Len(t, got.Repositories, 1)
	assert.Equal(t, 12, got.Repositories[0].DependenciesDiscovered)
	assert.Zero(t, got.Repositories[0].PatternsExtracted)
}

func TestTransform_AggregatedShapePassthrough(t *testing.T) {
	raw := map[string]any{
		"workflow_id":      "wf-3",
		"status":           "partial_success",
		"overall_progress": float64(67),
		"repositories": []any{
			map[string]any{
				"name":                    "r1",
				"status":                  "completed",
				"patterns_extracted":      float64(3),
				"dependencies_discovered": float64(4),
				"phases": []any{
					map[string]any{"name": "pattern_extraction", "status": "completed"},
				},
			},
			map[string]any{
				"name":   "r2",
				"status": "failed",
				"error":  "clone failed",
			},
		},
	}

	got := Transform(raw)

	assert.Equal(t, "wf-3", got.WorkflowID)
	assert.Equal(t, "partial_success", got.Status)
	assert.Equal(t, 67, got.OverallProgress)
	require.Len(t, got.Repositories, 2)
	assert.Equal(t, RepoCompleted, got.Repositories[0].Status)
	assert.Equal(t, 3, got.Repositories[0].PatternsExtracted)
	assert.Equal(t, 4, got.Repositories[0].DependenciesDiscovered)
	assert.Equal(t, "clone failed", got.Repositories[1].Error)
}

func TestTransform_OverallProgressRounding(t *testing.T) {
	// 1 of 3 completed: round(33.33) = 33; 2 of 3: round(66.67) = 67.
	build := func(completed int) map[string]any {
		repos := []any{"a", "b", "c"}
		results := make([]any, 0, completed)
		for i := 0; i < completed; i++ {
			results = append(results, map[string]any{
				"repository": []string{"a", "b", "c"}[i],
				"phase":      "pattern_extraction",
				"status":     "completed",
			})
		}
		return map[string]any{"repositories": repos, "results": results}
	}

	assert.Equal(t, 33, Transform(build(1)).OverallProgress)
	assert.Equal(t, 67, Transform(build(2)).OverallProgress)
	assert.Equal(t, 100, Transform(build(3)).OverallProgress)
}

func TestTransform_DerivedJobStatus(t *testing.T) {
	raw := flatPayload() // r1 completed, r2 failed, no status field
	assert.Equal(t, "partial_success", Transform(raw).Status)

	raw["status"] = "running"
	assert.Equal(t, "running", Transform(raw).Status, "explicit status wins")
}

func TestTransform_AllPendingIsQueued(t *testing.T) {
	got := Transform(map[string]any{
		"workflow_id":  "wf-3",
		"repositories": []any{"r1", "r2"},
		"results":      []any{},
	})

	require.Len(t, got.Repositories, 2)
	assert.Equal(t, RepoPending, got.Repositories[0].Status)
	assert.Equal(t, "queued", got.Status, "no phase has started anywhere")
}

func TestTransform_NilInput(t *testing.T) {
	got := Transform(nil)
	assert.Empty(t, got.Repositories)
	assert.Zero(t, got.OverallProgress)
}

func TestPayload(t *testing.T) {
	inner := map[string]any{"workflow_id": "wf-9"}
	assert.Equal(t, inner, Payload(map[string]any{"data": inner}))

	flat := map[string]any{"workflow_id": "wf-9"}
	assert.Equal(t, flat, Payload(flat))
}
