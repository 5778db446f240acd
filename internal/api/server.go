// Package api implements the HTTP surface spec.md §6 describes: the OGC
// API - Processes JSON REST interface and, alongside it, a WPS 1.0/2.0
// KVP/POST endpoint for clients that only speak the older protocol.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/crim-ca/weaver-ems/internal/apiversion"
	"github.com/crim-ca/weaver-ems/internal/config"
	"github.com/crim-ca/weaver-ems/internal/engine"
	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/logger"
	"github.com/crim-ca/weaver-ems/internal/metrics"
	"github.com/crim-ca/weaver-ems/internal/pkgload"
	"github.com/crim-ca/weaver-ems/internal/process"
)

// Server is the HTTP API server fronting a single EMS/ADES engine
// instance (spec.md §6).
type Server struct {
	router *chi.Mux
	server *http.Server

	engine    *engine.Engine
	jobs      job.Store
	processes process.Store
	loader    *pkgload.Loader

	baseURL string
	logger  *zap.Logger
}

// New creates a new HTTP API server, wiring the chi middleware stack the
// way the rest of this codebase's HTTP servers do (request id, real ip,
// structured access logging, correlation id, panic recovery, a hard
// per-request timeout).
func New(cfg *config.HTTPConfig, logCfg *config.LogConfig, baseURL string, eng *engine.Engine, jobs job.Store, processes process.Store, loader *pkgload.Loader, log *zap.Logger) *Server {
	log = log.With(zap.String("component", "api"))

	correlationHeader := logCfg.CorrelationHeader
	if correlationHeader == "" {
		correlationHeader = "X-Correlation-ID"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.HTTPMiddleware(log, correlationHeader))
	r.Use(logger.CorrelationIDMiddleware(correlationHeader))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		router:    r,
		engine:    eng,
		jobs:      jobs,
		processes: processes,
		loader:    loader,
		baseURL:   apiversion.NormalizeBaseURL(baseURL),
		logger:    log,
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	srv.registerRoutes()
	return srv
}

// registerRoutes lays out the OGC API - Processes surface under
// /v1 (spec.md §6), the legacy unversioned WPS endpoint, and the health
// checks every deployment of this service probes.
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/"+apiversion.Current, func(r chi.Router) {
		r.Get("/processes", s.handleListProcesses)
		r.Post("/processes", s.handleDeployProcess)
		r.Get("/processes/{id}", s.handleGetProcess)
		r.Delete("/processes/{id}", s.handleUndeployProcess)

		r.Post("/processes/{id}/execution", s.handleExecuteProcess)
		r.Post("/processes/{id}/jobs", s.handleExecuteProcess) // legacy alias

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Delete("/jobs/{jobID}", s.handleDismissJob)
		r.Get("/jobs/{jobID}/results", s.handleGetJobResults)
		r.Get("/jobs/{jobID}/outputs", s.handleGetJobResults)
		r.Get("/jobs/{jobID}/exceptions", s.handleGetJobExceptions)
		r.Get("/jobs/{jobID}/logs", s.handleGetJobLogs)
	})

	s.router.HandleFunc("/ows/wps", s.handleWPS)

	s.router.Route("/api", func(r chi.Router) {
		r.Handle("/", http.HandlerFunc(s.handleVersionRequired))
		r.Handle("/*", http.HandlerFunc(s.handleVersionRequired))
	})
	s.router.Route("/v{version}", func(r chi.Router) {
		r.Handle("/", http.HandlerFunc(s.handleUnsupportedVersion))
		r.Handle("/*", http.HandlerFunc(s.handleUnsupportedVersion))
	})
}

// Router exposes the underlying chi.Mux, mainly so tests can drive
// requests against it directly.
func (s *Server) Router() *chi.Mux { return s.router }

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady is the readiness probe: the engine and its stores are
// constructed together at startup, so readiness here just confirms the
// server has finished wiring routes and is accepting connections.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server; it blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
