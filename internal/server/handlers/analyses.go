package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/patternscope/patternscope/internal/errors"
	"github.com/patternscope/patternscope/internal/server/middleware"
	"github.com/patternscope/patternscope/pkg/backend"
	"github.com/patternscope/patternscope/pkg/envelope"
	"github.com/patternscope/patternscope/pkg/poller"
	"github.com/patternscope/patternscope/pkg/skill"
	"github.com/patternscope/patternscope/pkg/workflow"
)

// Sentinel errors classified by the HTTP error responder.
var (
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

// maxSubmitBody bounds analysis submission bodies.
const maxSubmitBody = 1 << 20

// BackendClient is the slice of the backend client the handlers need.
type BackendClient interface {
	SubmitAnalysis(ctx context.Context, req backend.SubmitRequest) (map[string]any, error)
	WorkflowStatus(ctx context.Context, workflowID string) (map[string]any, error)
}

// Analyses serves the analysis workflow routes: submission, status,
// listing, cancellation, and skill execution metrics.
type Analyses struct {
	backend  BackendClient
	executor *skill.Executor
	tracker  *poller.Tracker
	poll     poller.Config
	logger   *zap.Logger
}

// NewAnalyses creates the analyses handler group.
func NewAnalyses(client BackendClient, executor *skill.Executor, tracker *poller.Tracker, poll poller.Config, logger *zap.Logger) *Analyses {
	if executor == nil {
		executor = skill.NewExecutor(nil, logger)
	}
	if tracker == nil {
		tracker = poller.NewTracker(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyses{
		backend:  client,
		executor: executor,
		tracker:  tracker,
		poll:     poll,
		logger:   logger,
	}
}

// Routes mounts the analyses routes on a chi router.
func (h *Analyses) Routes(r chi.Router) {
	r.Post("/analyses", h.Submit)
	r.Get("/analyses", h.List)
	r.Get("/analyses/{workflowID}", h.Get)
	r.Delete("/analyses/{workflowID}", h.Cancel)
	r.Get("/skills/metrics", h.SkillMetrics)
}

// submitRequest is the submission body accepted from API clients. Phases
// default to all enabled when omitted.
type submitRequest struct {
	Repositories []string `json:"repositories"`
	Phases       *struct {
		PatternExtraction   bool `json:"pattern_extraction"`
		DependencyDiscovery bool `json:"dependency_discovery"`
	} `json:"phases"`
}

// queuedResponse acknowledges an asynchronously queued submission.
type queuedResponse struct {
	WorkflowID        string `json:"workflow_id"`
	State             string `json:"state"`
	PollingIntervalMs int    `json:"polling_interval_ms"`
	RepositoriesCount int    `json:"repositories_count"`
}

// analysisDetail is the status reply for one workflow: the client-side
// tracking snapshot plus the transformed per-repository view when a
// status payload has been observed.
type analysisDetail struct {
	Tracking poller.Status    `json:"tracking"`
	Workflow *workflow.Status `json:"workflow,omitempty"`
}

// Submit accepts an analysis submission and forwards it to the backend.
// A synchronous reply returns the transformed result directly; an
// async_queued acknowledgment registers a poller and returns 202.
func (h *Analyses) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondWithError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if len(req.Repositories) == 0 {
		apperrors.Validation(w, middleware.GetRequestID(r.Context()), "at least one repository is required", map[string]any{
			"field": "repositories",
		})
		return
	}

	phases := backend.PhaseConfig{PatternExtraction: true, DependencyDiscovery: true}
	if req.Phases != nil {
		phases = backend.PhaseConfig{
			PatternExtraction:   req.Phases.PatternExtraction,
			DependencyDiscovery: req.Phases.DependencyDiscovery,
		}
	}
	submit := backend.SubmitRequest{Repositories: req.Repositories, Phases: phases}

	raw, st := h.executor.Execute(r.Context(), "submit_analysis", func(ctx context.Context) (map[string]any, error) {
		return h.backend.SubmitAnalysis(ctx, submit)
	})
	if st.DidFail {
		respondWithError(w, r, errors.New(st.Error))
		return
	}

	if st.IsAsyncQueued {
		h.track(st.Queued)
		writeJSON(w, http.StatusAccepted, queuedResponse{
			WorkflowID:        st.Queued.WorkflowID,
			State:             string(envelope.StateAsyncQueued),
			PollingIntervalMs: st.Queued.PollingIntervalMs,
			RepositoriesCount: st.Queued.RepositoriesCount,
		})
		return
	}

	status := workflow.Transform(workflow.Payload(raw))
	writeJSON(w, http.StatusOK, analysisDetail{
		Tracking: poller.Status{
			WorkflowID: status.WorkflowID,
			State:      poller.JobCompleted,
		},
		Workflow: &status,
	})
}

// track registers a background poller for a queued workflow. Polling is
// detached from the submitting request's lifetime.
func (h *Analyses) track(ack *skill.QueuedAck) {
	cfg := h.poll
	if ack.PollingIntervalMs > 0 {
		cfg.Interval = time.Duration(ack.PollingIntervalMs) * time.Millisecond
	}
	cfg.Logger = h.logger

	p := poller.New(ack.WorkflowID, func(ctx context.Context) (map[string]any, error) {
		return h.backend.WorkflowStatus(ctx, ack.WorkflowID)
	}, cfg)
	h.tracker.Add(p)
	p.Start(context.Background())

	h.logger.Info("tracking queued analysis",
		zap.String("workflow_id", ack.WorkflowID),
		zap.Duration("interval", p.Interval()),
		zap.Int("repositories_count", ack.RepositoriesCount))
}

// Get returns the status of one workflow. Tracked workflows answer from
// the poller's last observed payload; unknown ids fall through to a
// one-shot backend fetch.
func (h *Analyses) Get(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	if p, ok := h.tracker.Get(workflowID); ok {
		detail := analysisDetail{Tracking: p.Status()}
		if raw := p.LastPayload(); raw != nil {
			status := workflow.Transform(workflow.Payload(raw))
			if status.WorkflowID == "" {
				status.WorkflowID = workflowID
			}
			detail.Workflow = &status
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	raw, err := h.backend.WorkflowStatus(r.Context(), workflowID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if res := envelope.Validate(raw); !res.Valid {
		respondWithError(w, r, fmt.Errorf("backend returned invalid status envelope: %v", res.Errors))
		return
	}
	status := workflow.Transform(workflow.Payload(raw))
	if status.WorkflowID == "" {
		status.WorkflowID = workflowID
	}
	writeJSON(w, http.StatusOK, analysisDetail{
		Tracking: poller.Status{WorkflowID: workflowID, State: poller.JobState(status.Status)},
		Workflow: &status,
	})
}

// List returns the tracking snapshot of every tracked workflow.
func (h *Analyses) List(w http.ResponseWriter, r *http.Request) {
	pollers := h.tracker.All()
	statuses := make([]poller.Status, 0, len(pollers))
	for _, p := range pollers {
		statuses = append(statuses, p.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": statuses,
		"count":    len(statuses),
	})
}

// Cancel stops tracking a workflow and forgets it.
func (h *Analyses) Cancel(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	if !h.tracker.Remove(workflowID) {
		respondWithError(w, r, ErrAnalysisNotFound)
		return
	}
	h.logger.Info("stopped tracking analysis", zap.String("workflow_id", workflowID))
	w.WriteHeader(http.StatusNoContent)
}

// SkillMetrics returns aggregated execution metrics per skill.
func (h *Analyses) SkillMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := h.executor.Metrics().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"skills": snapshot,
		"count":  len(snapshot),
	})
}
