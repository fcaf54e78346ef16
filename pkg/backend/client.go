// Package backend is the HTTP client for the pattern-discovery analysis
// backend. It speaks the standard response envelope on every route and
// applies client-side rate limiting so aggressive polling cannot hammer
// the service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/patternscope/patternscope/pkg/envelope"
)

// ErrWorkflowNotFound indicates the backend does not know the workflow id.
var ErrWorkflowNotFound = errors.New("workflow not found")

// CallError describes a failed backend call.
type CallError struct {
	// Op is the logical operation, e.g. "submit_analysis".
	Op string

	// StatusCode is the HTTP status, or 0 when the request never
	// completed.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout bounds each request.
	// Default: 30s
	Timeout time.Duration

	// RateLimit is the sustained request rate in requests per second.
	// Zero disables client-side limiting.
	// Default: 0
	RateLimit float64

	// Logger receives request diagnostics. Nil uses a no-op logger.
	Logger *zap.Logger
}

// PhaseConfig selects the analysis phases to run per repository.
type PhaseConfig struct {
	PatternExtraction   bool `json:"pattern_extraction"`
	DependencyDiscovery bool `json:"dependency_discovery"`
}

// SubmitRequest is the body of an analysis submission.
type SubmitRequest struct {
	Repositories []string    `json:"repositories"`
	Phases       PhaseConfig `json:"phases"`
}

// Client calls the analysis backend.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("backend: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Invoke calls a named skill and returns the raw response envelope.
func (c *Client) Invoke(ctx context.Context, skillID string, payload map[string]any) (map[string]any, error) {
	if skillID == "" {
		return nil, &CallError{Op: "invoke", Err: errors.New("skill id is required")}
	}
	path := "/api/v1/skills/" + url.PathEscape(skillID)
	return c.do(ctx, "invoke", http.MethodPost, path, payload)
}

// SubmitAnalysis submits repositories for analysis. The reply is either a
// synchronous result envelope or an async_queued acknowledgment.
func (c *Client) SubmitAnalysis(ctx context.Context, req SubmitRequest) (map[string]any, error) {
	if len(req.Repositories) == 0 {
		return nil, &CallError{Op: "submit_analysis", Err: errors.New("at least one repository is required")}
	}
	return c.do(ctx, "submit_analysis", http.MethodPost, "/api/v1/analyses", req)
}

// WorkflowStatus fetches the current status envelope of an async workflow.
func (c *Client) WorkflowStatus(ctx context.Context, workflowID string) (map[string]any, error) {
	if workflowID == "" {
		return nil, &CallError{Op: "workflow_status", Err: errors.New("workflow id is required")}
	}
	path := "/api/v1/analyses/" + url.PathEscape(workflowID)
	return c.do(ctx, "workflow_status", http.MethodGet, path, nil)
}

// PollFunc returns a poll function bound to one workflow id, suitable for
// driving a poller.
func (c *Client) PollFunc(workflowID string) func(context.Context) (map[string]any, error) {
	return func(ctx context.Context) (map[string]any, error) {
		return c.WorkflowStatus(ctx, workflowID)
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (map[string]any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &CallError{Op: op, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &CallError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &CallError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("backend call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusNotFound && op == "workflow_status" {
		return nil, &CallError{Op: op, StatusCode: resp.StatusCode, Err: ErrWorkflowNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CallError{Op: op, StatusCode: resp.StatusCode, Err: errorFromBody(data)}
	}

	raw, err := envelope.Decode(data)
	if err != nil {
		return nil, &CallError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return raw, nil
}

// errorFromBody surfaces the envelope error message of a failed call when
// the body carries one.
func errorFromBody(data []byte) error {
	raw, err := envelope.Decode(data)
	if err == nil {
		if msg, ok := envelope.AsString(raw[envelope.FieldError]); ok && msg != "" {
			return errors.New(msg)
		}
	}
	return errors.New("request failed")
}
