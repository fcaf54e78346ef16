package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patternscope/patternscope/pkg/backend"
	"github.com/patternscope/patternscope/pkg/envelope"
	"github.com/patternscope/patternscope/pkg/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status <workflow_id>",
	Short: "Fetch the current status of a workflow",
	Long: `Fetch the status of an analysis workflow from the backend and show
the normalized per-repository progress.

Example:
  patternscope status wf-1234
  patternscope status wf-1234 --backend-url http://localhost:9000
  patternscope status wf-1234 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var statusBackendURL string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusBackendURL, "backend-url", "http://localhost:8080", "Analysis backend base URL")
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	workflowID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	client, err := backend.New(backend.Config{
		BaseURL: statusBackendURL,
		Timeout: 30 * time.Second,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("backend client: %w", err)
	}

	raw, err := client.WorkflowStatus(ctx, workflowID)
	if err != nil {
		logger.Error("Status fetch failed",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		return fmt.Errorf("fetch status: %w", err)
	}
	if res := envelope.Validate(raw); !res.Valid {
		return fmt.Errorf("backend returned an invalid status envelope: %v", res.Errors)
	}

	status := workflow.Transform(workflow.Payload(raw))
	if status.WorkflowID == "" {
		status.WorkflowID = workflowID
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	printStatus(status)
	return nil
}

func printStatus(status workflow.Status) {
	fmt.Printf("Workflow: %s\n", status.WorkflowID)
	fmt.Printf("Status:   %s\n", status.Status)
	fmt.Printf("Progress: %d%%\n", status.OverallProgress)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "REPOSITORY\tSTATUS\tPATTERNS\tDEPENDENCIES\tERROR")
	for _, repo := range status.Repositories {
		errMsg := repo.Error
		if errMsg == "" {
			errMsg = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			repo.Name,
			repo.Status,
			repo.PatternsExtracted,
			repo.DependenciesDiscovered,
			errMsg,
		)
	}
}
