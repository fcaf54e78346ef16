// Package cmd implements the patternscope command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patternscope/patternscope/internal/config"
	"github.com/patternscope/patternscope/internal/observability"
)

// versionInfo holds build metadata injected at link time via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// logger is the CLI logger, rebuilt by the persistent pre-run once
	// flags are parsed.
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "patternscope",
	Short: "Track pattern discovery analyses across repositories",
	Long: `patternscope submits repositories to the pattern-discovery analysis
backend, tracks asynchronously executing workflows, and normalizes the
per-repository results.

Runs are described by a YAML manifest and produce JSONL records on
stdout or a file. Completed reports can be archived to S3-compatible
object storage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			config.SetConfigFile(cfgFile)
		}
		built, err := observability.NewLogger(logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = built
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console|json)")
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
