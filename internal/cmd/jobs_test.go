package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternscope/patternscope/pkg/runlog"
)

func newTestStore(t *testing.T) *runlog.Store {
	t.Helper()
	return runlog.NewStore(filepath.Join(t.TempDir(), "runs"))
}

func writeRun(t *testing.T, store *runlog.Store, workflowID string, state runlog.RunState) {
	t.Helper()
	require.NoError(t, store.Write(&runlog.RunRecord{
		WorkflowID:   workflowID,
		State:        state,
		Repositories: []string{"org/app"},
		CreatedAt:    time.Now().UTC(),
	}))
}

func TestResolveWorkflowID(t *testing.T) {
	store := newTestStore(t)
	writeRun(t, store, "wf-aaaa-1111", runlog.RunStateCompleted)
	writeRun(t, store, "wf-bbbb-2222", runlog.RunStateCompleted)
	writeRun(t, store, "wf-bbbb-3333", runlog.RunStateFailed)

	t.Run("exact match", func(t *testing.T) {
		id, err := resolveWorkflowID(store, "wf-aaaa-1111")
		require.NoError(t, err)
		assert.Equal(t, "wf-aaaa-1111", id)
	})

	t.Run("unique prefix", func(t *testing.T) {
		id, err := resolveWorkflowID(store, "wf-aaaa")
		require.NoError(t, err)
		assert.Equal(t, "wf-aaaa-1111", id)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := resolveWorkflowID(store, "wf-bbbb")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ambiguous")
	})

	t.Run("no match", func(t *testing.T) {
		_, err := resolveWorkflowID(store, "wf-zzzz")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := resolveWorkflowID(store, "  ")
		assert.Error(t, err)
	})
}

func TestShortWorkflowID(t *testing.T) {
	assert.Equal(t, "wf-123", shortWorkflowID("wf-123"))
	assert.Equal(t, "wf-123456789", shortWorkflowID("wf-123456789"))
	assert.Equal(t, "wf-123456789", shortWorkflowID("wf-123456789-overflow"))
}

func TestFormatOptionalTime(t *testing.T) {
	assert.Equal(t, "-", formatOptionalTime(nil))

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01T12:00:00Z", formatOptionalTime(&ts))
}

func TestDefaultDataDir(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		dir, err := defaultDataDir("/tmp/custom")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/custom", dir)
	})

	t.Run("falls back to home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		dir, err := defaultDataDir("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".patternscope"), dir)
	})
}
