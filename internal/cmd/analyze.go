package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patternscope/patternscope/pkg/archive"
	"github.com/patternscope/patternscope/pkg/backend"
	"github.com/patternscope/patternscope/pkg/manifest"
	"github.com/patternscope/patternscope/pkg/orchestrator"
	"github.com/patternscope/patternscope/pkg/poller"
	"github.com/patternscope/patternscope/pkg/runlog"
	"github.com/patternscope/patternscope/pkg/selector"
	"github.com/patternscope/patternscope/pkg/sink"
	"github.com/patternscope/patternscope/pkg/workflow"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run an analysis job from manifest",
	Long: `Run a pattern-discovery analysis as defined in a YAML manifest.

The manifest specifies the backend connection, the repositories to
analyze, the phases to run, polling behavior, and output configuration.

Example:
  patternscope analyze --job analysis.yaml
  patternscope analyze --job analysis.yaml --output results.jsonl
  patternscope analyze --job analysis.yaml --quiet
  patternscope analyze --job analysis.yaml --dry-run`,
	RunE: runAnalyze,
}

var (
	analyzeJobPath string
	analyzeOutput  string
	analyzeQuiet   bool
	analyzeDryRun  bool
	analyzeDataDir string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeJobPath, "job", "j", "", "Path to job manifest (required)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Override output destination")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "Suppress progress records")
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "Validate manifest and show plan without executing")
	analyzeCmd.Flags().StringVar(&analyzeDataDir, "data-dir", "", "Override the run record directory")

	_ = analyzeCmd.MarkFlagRequired("job")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(analyzeJobPath)
	if err != nil {
		logger.Error("Failed to load manifest",
			zap.String("path", analyzeJobPath),
			zap.Error(err))
		return fmt.Errorf("invalid manifest: %w", err)
	}

	logger.Debug("Loaded manifest",
		zap.String("path", analyzeJobPath),
		zap.String("backend", m.Backend.BaseURL),
		zap.Int("repositories", len(m.Repositories)))

	if analyzeOutput != "" {
		m.Output.Destination = analyzeOutput
	}

	repos, err := selectRepositories(m)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return fmt.Errorf("no repositories match the selection")
	}

	if analyzeDryRun {
		return showAnalyzePlan(m, repos)
	}

	return executeAnalysis(ctx, m, repos)
}

// selectRepositories applies the manifest's glob selection to the
// candidate repository list.
func selectRepositories(m *manifest.Manifest) ([]string, error) {
	if m.Select == nil {
		return m.Repositories, nil
	}
	sel, err := selector.New(selector.Config{
		Includes: m.Select.Includes,
		Excludes: m.Select.Excludes,
	})
	if err != nil {
		logger.Error("Invalid selection patterns", zap.Error(err))
		return nil, fmt.Errorf("invalid selection patterns: %w", err)
	}
	return sel.Select(m.Repositories), nil
}

// showAnalyzePlan displays what would be analyzed without executing.
func showAnalyzePlan(m *manifest.Manifest, repos []string) error {
	fmt.Println("=== Analysis Plan (dry-run) ===")
	fmt.Println()
	fmt.Printf("Backend:     %s\n", m.Backend.BaseURL)
	fmt.Printf("Timeout:     %s\n", m.Backend.Timeout())
	if m.Backend.RateLimit > 0 {
		fmt.Printf("Rate Limit:  %.1f req/s\n", m.Backend.RateLimit)
	}
	fmt.Println()
	fmt.Printf("Repositories (%d):\n", len(repos))
	for _, repo := range repos {
		fmt.Printf("  - %s\n", repo)
	}
	fmt.Println()
	fmt.Println("Phases:")
	fmt.Printf("  Pattern Extraction:   %v\n", *m.Phases.PatternExtraction)
	fmt.Printf("  Dependency Discovery: %v\n", *m.Phases.DependencyDiscovery)
	fmt.Println()
	if m.Poll.IntervalMs > 0 {
		fmt.Printf("Poll Interval: %s\n", m.Poll.Interval())
	}
	if m.Poll.MaxPolls > 0 {
		fmt.Printf("Max Polls:     %d\n", m.Poll.MaxPolls)
	}
	if m.Poll.MaxDurationSeconds > 0 {
		fmt.Printf("Max Duration:  %s\n", m.Poll.MaxDuration())
	}
	fmt.Printf("Output:        %s\n", m.Output.Destination)
	if m.Archive != nil {
		fmt.Printf("Archive:       %s\n", m.Archive.Destination)
	}
	fmt.Println()
	fmt.Println("Manifest validated successfully. Remove --dry-run to execute.")
	return nil
}

// executeAnalysis runs the actual analysis job.
func executeAnalysis(ctx context.Context, m *manifest.Manifest, repos []string) error {
	start := time.Now()

	client, err := backend.New(backend.Config{
		BaseURL:   m.Backend.BaseURL,
		Timeout:   m.Backend.Timeout(),
		RateLimit: m.Backend.RateLimit,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Failed to create backend client", zap.Error(err))
		return fmt.Errorf("backend client: %w", err)
	}

	session := orchestrator.NewSession(orchestrator.Config{
		Backend: client,
		Poll: poller.Config{
			Interval:    m.Poll.Interval(),
			MaxPolls:    m.Poll.MaxPolls,
			MaxDuration: m.Poll.MaxDuration(),
		},
		Logger: logger,
	})
	if err := session.SetRepositories(repos); err != nil {
		return err
	}
	if err := session.SetPhases(backend.PhaseConfig{
		PatternExtraction:   *m.Phases.PatternExtraction,
		DependencyDiscovery: *m.Phases.DependencyDiscovery,
	}); err != nil {
		return err
	}

	logger.Info("Submitting analysis",
		zap.Int("repositories", len(repos)),
		zap.String("backend", m.Backend.BaseURL))

	if err := session.Submit(ctx); err != nil {
		logger.Error("Submission failed", zap.Error(err))
		return fmt.Errorf("submission failed: %w", err)
	}

	st := session.Status()
	workflowID := st.WorkflowID
	if workflowID == "" {
		workflowID = fmt.Sprintf("sync-%d", start.UnixMilli())
	}

	writer, cleanup, err := createWriter(m, workflowID)
	if err != nil {
		logger.Error("Failed to create output", zap.Error(err))
		return fmt.Errorf("create output: %w", err)
	}
	defer cleanup()

	store, err := openRunStore(analyzeDataDir)
	if err != nil {
		return err
	}
	record := newRunRecord(m, workflowID, repos, start)
	if st.Async {
		record.State = runlog.RunStateRunning
	}
	if err := store.Write(record); err != nil {
		logger.Warn("Failed to write run record", zap.Error(err))
	}

	if st.Async {
		if err := trackProgress(ctx, session, writer, store, record); err != nil {
			return err
		}
	}

	results, err := session.Results()
	if err != nil {
		finishRunRecord(store, record, runlog.RunStateFailed, 0, session.Status().Error)
		logger.Error("Analysis produced no results", zap.Error(err))
		return fmt.Errorf("analysis failed: %s", session.Status().Error)
	}

	writeResults(ctx, writer, results, time.Since(start))
	finishRunRecord(store, record, runlog.RunState(results.Status), results.OverallProgress, session.Status().Error)

	if m.Archive != nil {
		if err := archiveResults(ctx, m.Archive, workflowID, results); err != nil {
			logger.Error("Failed to archive report", zap.Error(err))
			return fmt.Errorf("archive report: %w", err)
		}
	}

	logger.Info("Analysis completed",
		zap.String("workflow_id", workflowID),
		zap.String("status", results.Status),
		zap.Int("repositories", len(results.Repositories)),
		zap.Int("completed", results.CompletedCount()),
		zap.Int("failed", results.FailedCount()),
		zap.Duration("duration", time.Since(start)))

	if results.FailedCount() > 0 && results.CompletedCount() == 0 {
		return fmt.Errorf("analysis failed for all %d repositories", len(results.Repositories))
	}
	return nil
}

// trackProgress emits progress records while an async workflow executes.
func trackProgress(ctx context.Context, session *orchestrator.Session, writer sink.Writer, store *runlog.Store, record *runlog.RunRecord) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			session.Reset()
			finishRunRecord(store, record, runlog.RunStateCancelled, 0, ctx.Err().Error())
			logger.Warn("Analysis cancelled", zap.String("workflow_id", record.WorkflowID))
			return ctx.Err()
		case <-session.Done():
			return nil
		case <-ticker.C:
			st := session.Status()
			if analyzeQuiet || st.Progress == lastProgress {
				continue
			}
			lastProgress = st.Progress
			if err := writer.WriteProgress(ctx, &sink.ProgressRecord{
				State:           string(st.Phase),
				OverallProgress: st.Progress,
				CurrentStep:     st.CurrentStep,
			}); err != nil {
				logger.Warn("Failed to write progress record", zap.Error(err))
			}
			now := time.Now().UTC()
			record.LastPolledAt = &now
			record.OverallProgress = st.Progress
			if err := store.Write(record); err != nil {
				logger.Warn("Failed to update run record", zap.Error(err))
			}
		}
	}
}

// writeResults emits the per-repository and summary records.
func writeResults(ctx context.Context, writer sink.Writer, results *workflow.Status, elapsed time.Duration) {
	patterns := 0
	dependencies := 0
	for _, repo := range results.Repositories {
		patterns += repo.PatternsExtracted
		dependencies += repo.DependenciesDiscovered
		if err := writer.WriteRepository(ctx, &sink.RepositoryRecord{
			Repository:             repo.Name,
			Status:                 string(repo.Status),
			PatternsExtracted:      repo.PatternsExtracted,
			DependenciesDiscovered: repo.DependenciesDiscovered,
			Error:                  repo.Error,
		}); err != nil {
			logger.Warn("Failed to write repository record",
				zap.String("repository", repo.Name),
				zap.Error(err))
		}
	}

	if err := writer.WriteSummary(ctx, &sink.SummaryRecord{
		Status:                 results.Status,
		RepositoriesTotal:      len(results.Repositories),
		RepositoriesCompleted:  results.CompletedCount(),
		RepositoriesFailed:     results.FailedCount(),
		PatternsExtracted:      patterns,
		DependenciesDiscovered: dependencies,
		OverallProgress:        results.OverallProgress,
		DurationMs:             elapsed.Milliseconds(),
	}); err != nil {
		logger.Warn("Failed to write summary record", zap.Error(err))
	}
}

// archiveResults uploads the final report to S3-compatible storage.
func archiveResults(ctx context.Context, cfg *manifest.ArchiveConfig, workflowID string, results *workflow.Status) error {
	bucket, prefix, err := archive.ParseDestination(cfg.Destination)
	if err != nil {
		return err
	}
	uploader, err := archive.New(ctx, archive.Config{
		Bucket:          bucket,
		Prefix:          prefix,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		ForcePathStyle:  cfg.Endpoint != "",
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	name := workflowID + ".json"
	if err := uploader.PutReport(ctx, name, data); err != nil {
		return err
	}
	logger.Info("Report archived",
		zap.String("bucket", bucket),
		zap.String("key", uploader.Key(name)))
	return nil
}

// createWriter creates an output writer from manifest configuration.
// Returns the writer, a cleanup function, and any error.
func createWriter(m *manifest.Manifest, workflowID string) (sink.Writer, func(), error) {
	dest := m.Output.Destination

	if dest == "" || dest == "-" || dest == "stdout" {
		w := sink.NewJSONLWriter(os.Stdout, workflowID)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := sink.NewJSONLWriter(f, workflowID)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}

func newRunRecord(m *manifest.Manifest, workflowID string, repos []string, start time.Time) *runlog.RunRecord {
	startedAt := start.UTC()
	return &runlog.RunRecord{
		WorkflowID:        workflowID,
		Name:              m.Name,
		State:             runlog.RunStateQueued,
		Repositories:      repos,
		PollingIntervalMs: m.Poll.IntervalMs,
		ManifestPath:      analyzeJobPath,
		CreatedAt:         startedAt,
		StartedAt:         &startedAt,
	}
}

// finishRunRecord writes the terminal state of a run. Unrecognized states
// from the backend are recorded as unknown rather than dropped.
func finishRunRecord(store *runlog.Store, record *runlog.RunRecord, state runlog.RunState, progress int, errMsg string) {
	switch state {
	case runlog.RunStateCompleted, runlog.RunStateFailed, runlog.RunStatePartialSuccess, runlog.RunStateCancelled:
	default:
		state = runlog.RunStateUnknown
	}
	now := time.Now().UTC()
	record.State = state
	record.OverallProgress = progress
	record.EndedAt = &now
	record.Error = errMsg
	if err := store.Write(record); err != nil {
		logger.Warn("Failed to finalize run record", zap.Error(err))
	}
}
