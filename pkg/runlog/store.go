// Package runlog is the on-disk record of analysis runs, so past and
// in-flight workflows survive process restarts and stay inspectable from
// the CLI.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultStaleAfter is how long a run may claim running without a poll
// before a read demotes it to unknown.
const DefaultStaleAfter = 10 * time.Minute

// Store persists and loads RunRecords from an on-disk directory.
//
// Directory layout:
//
//	<root>/<workflow_id>/run.json
//	<root>/<workflow_id>/result.json
//
// Root is expected to be under the app data dir.
type Store struct {
	root       string
	staleAfter time.Duration
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root), staleAfter: DefaultStaleAfter}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) RunDir(workflowID string) string {
	return filepath.Join(s.root, workflowID)
}

func (s *Store) RunPath(workflowID string) string {
	return filepath.Join(s.RunDir(workflowID), "run.json")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("run log root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

func (s *Store) Write(record *RunRecord) error {
	if record == nil {
		return fmt.Errorf("run record is nil")
	}
	workflowID := strings.TrimSpace(record.WorkflowID)
	if workflowID == "" {
		return fmt.Errorf("workflow_id is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	runDir := s.RunDir(workflowID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(runDir, "run.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp run file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp run file: %w", err)
	}

	finalPath := s.RunPath(workflowID)
	if err := os.Rename(tmpName, finalPath); err != nil {
		return fmt.Errorf("rename run file: %w", err)
	}
	return nil
}

func (s *Store) Get(workflowID string) (*RunRecord, error) {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return nil, fmt.Errorf("workflow_id is required")
	}
	path := s.RunPath(workflowID)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("run.json is empty")
	}

	var record RunRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse run.json: %w", err)
	}

	// Stale detection: the tracking process is gone if a run claims
	// running but nothing has polled it for a while. Mark it unknown so
	// listings do not show phantom activity.
	if record.State == RunStateRunning && s.isStale(&record) {
		record.State = RunStateUnknown
		_ = s.Write(&record)
	}

	return &record, nil
}

func (s *Store) isStale(record *RunRecord) bool {
	if s.staleAfter <= 0 {
		return false
	}
	last := record.CreatedAt
	if record.LastPolledAt != nil {
		last = *record.LastPolledAt
	} else if record.StartedAt != nil {
		last = *record.StartedAt
	}
	return time.Since(last) > s.staleAfter
}

func (s *Store) List() ([]RunRecord, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs root: %w", err)
	}

	out := make([]RunRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return runSortTime(out[i]).After(runSortTime(out[j]))
	})

	return out, nil
}

// Remove deletes a run record and everything under its directory.
func (s *Store) Remove(workflowID string) error {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return fmt.Errorf("workflow_id is required")
	}
	if _, err := os.Stat(s.RunPath(workflowID)); err != nil {
		return err
	}
	return os.RemoveAll(s.RunDir(workflowID))
}

// GC removes terminal runs that ended before the cutoff. It returns the
// removed workflow ids.
func (s *Store) GC(olderThan time.Duration) ([]string, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	var removed []string
	for _, r := range records {
		if !r.State.Terminal() {
			continue
		}
		ended := r.CreatedAt
		if r.EndedAt != nil {
			ended = *r.EndedAt
		}
		if ended.After(cutoff) {
			continue
		}
		if err := s.Remove(r.WorkflowID); err != nil {
			continue
		}
		removed = append(removed, r.WorkflowID)
	}
	return removed, nil
}

func runSortTime(r RunRecord) time.Time {
	if r.StartedAt != nil {
		return r.StartedAt.UTC()
	}
	return r.CreatedAt.UTC()
}
