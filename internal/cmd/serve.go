package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patternscope/patternscope/internal/config"
	"github.com/patternscope/patternscope/internal/observability"
	"github.com/patternscope/patternscope/internal/server"
	"github.com/patternscope/patternscope/internal/server/handlers"
	"github.com/patternscope/patternscope/pkg/backend"
	"github.com/patternscope/patternscope/pkg/poller"
	"github.com/patternscope/patternscope/pkg/skill"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis tracking API server",
	Long: `Run the HTTP API server that submits analyses to the backend, tracks
asynchronously executing workflows, and serves their normalized status.

Configuration comes from the config file, PATTERNSCOPE_* environment
variables, and flags, in increasing order of precedence.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

// backendHealthChecker reports whether the analysis backend answers HTTP
// at all. Any response counts as reachable; only transport failures are
// unhealthy.
type backendHealthChecker struct {
	baseURL string
	client  *http.Client
}

func (c backendHealthChecker) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	overrides := map[string]any{}
	if serveHost != "" || servePort != 0 {
		srvOverride := map[string]any{}
		if serveHost != "" {
			srvOverride["host"] = serveHost
		}
		if servePort != 0 {
			srvOverride["port"] = servePort
		}
		overrides["server"] = srvOverride
	}

	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srvLogger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = srvLogger.Sync() }()

	client, err := backend.New(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		Logger:    srvLogger,
	})
	if err != nil {
		return fmt.Errorf("backend client: %w", err)
	}

	tracker := poller.NewTracker(srvLogger)
	defer tracker.StopAll()
	executor := skill.NewExecutor(nil, srvLogger)

	analyses := handlers.NewAnalyses(client, executor, tracker, poller.Config{
		Interval:    time.Duration(cfg.Poll.IntervalMs) * time.Millisecond,
		MaxPolls:    cfg.Poll.MaxPolls,
		MaxDuration: cfg.Poll.MaxDuration,
	}, srvLogger)

	handlers.SetVersionInfo(handlers.VersionInfo{
		Version:   versionInfo.Version,
		Commit:    versionInfo.Commit,
		BuildDate: versionInfo.BuildDate,
	})
	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("backend", backendHealthChecker{
		baseURL: cfg.Backend.BaseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	})

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithLogger(srvLogger),
		server.WithAnalyses(analyses))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	srvLogger.Info("patternscope server started",
		zap.String("addr", srv.Addr()),
		zap.String("backend", cfg.Backend.BaseURL))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
