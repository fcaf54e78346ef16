package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/patternscope/patternscope/internal/config"
	"github.com/patternscope/patternscope/pkg/runlog"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage analysis run records",
	Long: `Manage the local records of submitted analysis runs.

This command group is designed to be script-friendly:

- stable workflow ids
- predictable on-disk locations
- optional JSON output for machine parsing`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <workflow_id>",
	Short: "Show status for a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove <workflow_id>",
	Short: "Remove a run record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRemove,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect old run records",
	RunE:  runJobsGC,
}

var jobsDataDir string

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsRemoveCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	jobsCmd.PersistentFlags().StringVar(&jobsDataDir, "data-dir", "", "Override the run record directory")
	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsGCCmd.Flags().String("max-age", "168h", "Delete terminal runs older than this duration")
	jobsGCCmd.Flags().Bool("dry-run", false, "Show how many runs would be deleted")
}

// defaultDataDir resolves the run record root: explicit flag, then
// loaded config, then ~/.patternscope.
func defaultDataDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg := config.GetConfig(); cfg != nil && cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".patternscope"), nil
}

// openRunStore opens the run record store under the resolved data dir.
func openRunStore(flagValue string) (*runlog.Store, error) {
	dataDir, err := defaultDataDir(flagValue)
	if err != nil {
		return nil, err
	}
	return runlog.NewStore(filepath.Join(dataDir, "runs")), nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openRunStore(jobsDataDir)
	if err != nil {
		return err
	}

	runs, err := store.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No runs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "WORKFLOW ID\tNAME\tSTATE\tPROGRESS\tREPOS\tSTARTED\tENDED")
	for _, r := range runs {
		name := r.Name
		if name == "" {
			name = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%s\t%s\n",
			shortWorkflowID(r.WorkflowID),
			name,
			r.State,
			r.OverallProgress,
			len(r.Repositories),
			formatOptionalTime(r.StartedAt),
			formatOptionalTime(r.EndedAt),
		)
	}

	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openRunStore(jobsDataDir)
	if err != nil {
		return err
	}

	workflowID, err := resolveWorkflowID(store, args[0])
	if err != nil {
		return err
	}

	rec, err := store.Get(workflowID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(os.Stdout, "workflow_id=%s\n", rec.WorkflowID)
	if rec.Name != "" {
		_, _ = fmt.Fprintf(os.Stdout, "name=%s\n", rec.Name)
	}
	_, _ = fmt.Fprintf(os.Stdout, "state=%s\n", rec.State)
	_, _ = fmt.Fprintf(os.Stdout, "progress=%d%%\n", rec.OverallProgress)
	_, _ = fmt.Fprintf(os.Stdout, "repositories=%d\n", len(rec.Repositories))
	if rec.ManifestPath != "" {
		_, _ = fmt.Fprintf(os.Stdout, "manifest_path=%s\n", rec.ManifestPath)
	}
	if rec.StartedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "started_at=%s\n", rec.StartedAt.UTC().Format(time.RFC3339))
	}
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	if rec.Error != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error=%s\n", rec.Error)
	}

	return nil
}

func runJobsRemove(_ *cobra.Command, args []string) error {
	store, err := openRunStore(jobsDataDir)
	if err != nil {
		return err
	}

	workflowID, err := resolveWorkflowID(store, args[0])
	if err != nil {
		return err
	}
	if err := store.Remove(workflowID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Removed run %s\n", workflowID)
	return nil
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return fmt.Errorf("invalid --max-age: %w", err)
	}

	store, err := openRunStore(jobsDataDir)
	if err != nil {
		return err
	}

	if dryRun {
		runs, err := store.List()
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-maxAge)
		count := 0
		for _, r := range runs {
			if r.State.Terminal() && r.EndedAt != nil && r.EndedAt.Before(cutoff) {
				count++
			}
		}
		_, _ = fmt.Fprintf(os.Stdout, "Would remove %d run(s) older than %s\n", count, maxAge)
		return nil
	}

	removed, err := store.GC(maxAge)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Removed %d run(s)\n", len(removed))
	return nil
}

func shortWorkflowID(workflowID string) string {
	workflowID = strings.TrimSpace(workflowID)
	if len(workflowID) <= 12 {
		return workflowID
	}
	return workflowID[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// resolveWorkflowID accepts a full workflow id or a unique prefix.
func resolveWorkflowID(store *runlog.Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("workflow_id is required")
	}

	// Exact match first.
	if _, err := store.Get(input); err == nil {
		return input, nil
	}

	// Prefix match (allows table-friendly short ids).
	runs, err := store.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, r := range runs {
		if strings.HasPrefix(r.WorkflowID, input) {
			matches = append(matches, r.WorkflowID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("run not found: %s", input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("workflow id prefix is ambiguous (%d matches); use the full id or --json", len(matches))
	}
	return matches[0], nil
}
