// Package server assembles the HTTP API: routing, middleware, and
// lifecycle management for the analysis tracking surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/patternscope/patternscope/internal/errors"
	"github.com/patternscope/patternscope/internal/server/handlers"
	"github.com/patternscope/patternscope/internal/server/middleware"
)

// Server is the HTTP API server.
type Server struct {
	host   string
	port   int
	router chi.Router
	logger *zap.Logger
	http   *http.Server
}

// Option customizes a Server.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	analyses *handlers.Analyses
}

// WithLogger sets the server's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAnalyses mounts the analysis workflow routes.
func WithAnalyses(a *handlers.Analyses) Option {
	return func(o *options) { o.analyses = a }
}

// New creates a server bound to host:port. Without options it serves only
// the health and version routes, which is enough for probes and tests.
func New(host string, port int, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	s := &Server{
		host:   host,
		port:   port,
		logger: o.logger,
	}
	s.router = s.buildRouter(o)
	return s
}

func (s *Server) buildRouter(o options) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return middleware.RecoveryWithLogger(next, s.logger)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.NotFound(w, middleware.GetRequestID(req.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.MethodNotAllowed(w, middleware.GetRequestID(req.Context()))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if o.analyses != nil {
		r.Route("/api/v1", o.analyses.Routes)
	}

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", zap.String("addr", s.Addr()))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
