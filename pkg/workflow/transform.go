package workflow

import (
	"math"

	"github.com/patternscope/patternscope/pkg/envelope"
)

// shape discriminates the two payload variants the backend emits.
type shape int

const (
	// shapeFlatResults carries repositories as a list of names plus a
	// flat results array tagged with repository/phase keys.
	shapeFlatResults shape = iota

	// shapeAggregated carries rich repository objects and a numeric
	// overall_progress; it only needs field renaming.
	shapeAggregated
)

// detectShape discriminates on the presence of results-as-flat-array.
func detectShape(raw map[string]any) shape {
	if _, ok := envelope.AsSlice(raw["results"]); ok {
		return shapeFlatResults
	}
	return shapeAggregated
}

// Payload unwraps the workflow payload from an envelope: synchronous
// submission replies nest it under "data", status replies carry it at the
// top level.
func Payload(raw map[string]any) map[string]any {
	if data, ok := envelope.AsMap(raw["data"]); ok {
		return data
	}
	return raw
}

// Transform normalizes a raw workflow status payload into the canonical
// Status model.
//
// Transform is idempotent over the same input and never fails: malformed
// entries are skipped field by field rather than aborting the whole
// payload.
func Transform(raw map[string]any) Status {
	var out Status
	if raw == nil {
		return out
	}
	out.WorkflowID, _ = envelope.AsString(raw["workflow_id"])

	switch detectShape(raw) {
	case shapeAggregated:
		out.Repositories = transformAggregated(raw)
		if progress, ok := envelope.AsInt(raw["overall_progress"]); ok {
			out.OverallProgress = progress
		} else {
			out.OverallProgress = overallProgress(out.Repositories)
		}
	case shapeFlatResults:
		out.Repositories = transformFlatResults(raw)
		out.OverallProgress = overallProgress(out.Repositories)
	}

	if status, ok := envelope.AsString(raw["status"]); ok && status != "" {
		out.Status = status
	} else {
		out.Status = deriveJobStatus(out.Repositories)
	}
	return out
}

// transformFlatResults groups flat result records by repository, then by
// phase name. Duplicate (repository, phase) records resolve to the last
// entry seen in input order (last-write-wins); phase order is the order
// each phase was first discovered.
func transformFlatResults(raw map[string]any) []RepositoryStatus {
	names := repositoryNames(raw)
	results, _ := envelope.AsSlice(raw["results"])

	type repoGroup struct {
		phaseOrder []string
		phases     map[string]PhaseResult
	}
	groups := make(map[string]*repoGroup, len(names))
	order := make([]string, 0, len(names))

	groupFor := func(name string) *repoGroup {
		g, ok := groups[name]
		if !ok {
			g = &repoGroup{phases: make(map[string]PhaseResult)}
			groups[name] = g
			order = append(order, name)
		}
		return g
	}

	// Every submitted repository appears in the output, even with no
	// observed results.
	for _, name := range names {
		groupFor(name)
	}

	for _, entry := range results {
		record, ok := envelope.AsMap(entry)
		if !ok {
			continue
		}
		repoName, ok := envelope.AsString(record["repository"])
		if !ok || repoName == "" {
			continue
		}
		phaseName, ok := envelope.AsString(record["phase"])
		if !ok || phaseName == "" {
			continue
		}

		g := groupFor(repoName)
		if _, seen := g.phases[phaseName]; !seen {
			g.phaseOrder = append(g.phaseOrder, phaseName)
		}
		g.phases[phaseName] = phaseResultFrom(phaseName, record)
	}

	out := make([]RepositoryStatus, 0, len(order))
	for _, name := range order {
		g := groups[name]
		repo := RepositoryStatus{Name: name, Phases: make([]PhaseResult, 0, len(g.phaseOrder))}
		for _, phaseName := range g.phaseOrder {
			repo.Phases = append(repo.Phases, g.phases[phaseName])
		}
		finishRepository(&repo)
		out = append(out, repo)
	}
	return out
}

// transformAggregated renames fields from the already-aggregated shape.
func transformAggregated(raw map[string]any) []RepositoryStatus {
	entries, ok := envelope.AsSlice(raw["repositories"])
	if !ok {
		return []RepositoryStatus{}
	}

	out := make([]RepositoryStatus, 0, len(entries))
	for _, entry := range entries {
		record, ok := envelope.AsMap(entry)
		if !ok {
			continue
		}
		name, ok := envelope.AsString(record["name"])
		if !ok || name == "" {
			continue
		}

		repo := RepositoryStatus{Name: name}
		if phases, ok := envelope.AsSlice(record["phases"]); ok {
			for _, p := range phases {
				pm, ok := envelope.AsMap(p)
				if !ok {
					continue
				}
				phaseName, _ := envelope.AsString(pm["name"])
				repo.Phases = append(repo.Phases, phaseResultFrom(phaseName, pm))
			}
		}
		if repo.Phases == nil {
			repo.Phases = []PhaseResult{}
		}

		if status, ok := envelope.AsString(record["status"]); ok && status != "" {
			repo.Status = RepoState(status)
			repo.Error, _ = envelope.AsString(record["error"])
			repo.PatternsExtracted, _ = envelope.AsInt(record["patterns_extracted"])
			repo.DependenciesDiscovered, _ = envelope.AsInt(record["dependencies_discovered"])
		} else {
			finishRepository(&repo)
		}
		out = append(out, repo)
	}
	return out
}

// repositoryNames reads the submitted repository list, preserving order.
func repositoryNames(raw map[string]any) []string {
	entries, ok := envelope.AsSlice(raw["repositories"])
	if !ok {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if name, ok := envelope.AsString(entry); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func phaseResultFrom(name string, record map[string]any) PhaseResult {
	p := PhaseResult{Name: name, Status: PhasePending}
	if status, ok := envelope.AsString(record["status"]); ok && status != "" {
		p.Status = PhaseState(status)
	}
	p.Error, _ = envelope.AsString(record["error"])
	p.PatternsExtracted, _ = envelope.AsInt(record["patterns_extracted"])
	p.DependenciesDiscovered, _ = envelope.AsInt(record["dependencies_discovered"])
	return p
}

// finishRepository derives the repository status and counts from its
// observed phases.
func finishRepository(repo *RepositoryStatus) {
	repo.Status = reduceStatus(repo.Phases)
	for _, p := range repo.Phases {
		switch p.Name {
		case PhasePatternExtraction:
			repo.PatternsExtracted = p.PatternsExtracted
		case PhaseDependencyDiscovery:
			repo.DependenciesDiscovered = p.DependenciesDiscovered
		}
		if repo.Error == "" && p.Status == PhaseFailed && p.Error != "" {
			repo.Error = p.Error
		}
	}
	if repo.Phases == nil {
		repo.Phases = []PhaseResult{}
	}
}

// reduceStatus applies the precedence rule failed > running > completed >
// pending over the observed phases. Zero observed phases means pending.
func reduceStatus(phases []PhaseResult) RepoState {
	var running, completed bool
	for _, p := range phases {
		switch p.Status {
		case PhaseFailed:
			return RepoFailed
		case PhaseRunning:
			running = true
		case PhaseCompleted:
			completed = true
		}
	}
	switch {
	case running:
		return RepoRunning
	case completed:
		return RepoCompleted
	default:
		return RepoPending
	}
}

// overallProgress is round(100 * completed / total), 0 for zero
// repositories.
func overallProgress(repos []RepositoryStatus) int {
	if len(repos) == 0 {
		return 0
	}
	completed := 0
	for _, repo := range repos {
		if repo.Status == RepoCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(repos))))
}

// deriveJobStatus summarizes repository states into a job-level status
// when the payload does not carry one.
func deriveJobStatus(repos []RepositoryStatus) string {
	if len(repos) == 0 {
		return "queued"
	}
	var completed, failed, running int
	for _, repo := range repos {
		switch repo.Status {
		case RepoCompleted:
			completed++
		case RepoFailed:
			failed++
		case RepoRunning:
			running++
		}
	}
	switch {
	case running > 0:
		return "running"
	case failed > 0 && completed > 0:
		return "partial_success"
	case failed > 0 && completed+failed == len(repos):
		return "failed"
	case completed == len(repos):
		return "completed"
	case completed == 0 && failed == 0:
		// No phase has started on any repository.
		return "queued"
	default:
		return "running"
	}
}
