// Command patternscope submits repositories to the pattern-discovery
// analysis backend and tracks their workflows.
package main

import (
	"os"

	"github.com/patternscope/patternscope/internal/cmd"
)

// Build metadata, injected via -ldflags at release time.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
