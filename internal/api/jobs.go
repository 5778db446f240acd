package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crim-ca/weaver-ems/internal/engine"
	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/logger"
	"github.com/crim-ca/weaver-ems/internal/process"
	"github.com/crim-ca/weaver-ems/internal/statusjson"
)

// handleExecuteProcess creates and submits a job against a deployed
// process (spec.md §6 "POST /processes/{id}/execution"): 201 + Location
// header + {jobID, status, location} per the spec's response shape.
func (s *Server) handleExecuteProcess(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	ctx := r.Context()
	processID := chi.URLParam(r, "id")

	if _, err := s.processes.FetchByID(ctx, processID); err != nil {
		if errors.Is(err, process.ErrNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, "process not found", nil, requestID)
			return
		}
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to fetch process", nil, requestID)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "failed to read request body", nil, requestID)
		return
	}
	defer r.Body.Close()

	var req ExecuteRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON format", []string{err.Error()}, requestID)
			return
		}
	}

	j := job.New(processID)
	j.ExecuteAsync = req.Mode != "sync"
	j.Request = string(body)
	for _, in := range req.Inputs {
		j.Inputs = append(j.Inputs, job.IOValue{ID: in.ID, Href: in.Href, Value: in.Value, Type: in.Type})
	}

	ctx = logger.WithJobID(logger.WithProcessID(ctx, processID), j.ID.String())
	reqLog := logger.FromContext(ctx)

	if err := s.jobs.SaveJob(ctx, j); err != nil {
		reqLog.Error("failed to save job", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to create job", nil, requestID)
		return
	}

	if err := s.engine.Submit(j.ID); err != nil {
		reqLog.Error("failed to submit job", zap.Error(err))
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "failed to submit job", []string{err.Error()}, requestID)
		return
	}

	location := fmt.Sprintf("%s/jobs/%s", s.baseURL, j.ID)
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, ExecuteResponse{
		JobID:    j.ID.String(),
		Status:   string(j.Status),
		Location: location,
	})
}

// handleListJobs lists jobs, optionally filtered by status/process
// (spec.md §6 "GET /jobs").
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	ctx := r.Context()
	q := r.URL.Query()

	page, limit := 0, 0
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	filter := job.Filter{
		Status:  job.Status(q.Get("status")),
		Process: q.Get("process"),
		UserID:  q.Get("user")}

	jobs, total, err := s.jobs.FindJobs(ctx, filter, job.SortCreated, page, limit)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list jobs", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to list jobs", nil, requestID)
		return
	}

	docs := make([]statusjson.Document, 0, len(jobs))
	for _, j := range jobs {
		docs = append(docs, s.jobStatusDocument(j))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": docs, "total": total})
}

// handleGetJob returns a single job's status document (spec.md §6 "GET
// /jobs/{id}").
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	j, err := s.fetchJob(w, r, requestID)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, s.jobStatusDocument(j))
}

// handleDismissJob cancels a running or queued job (spec.md §6 "DELETE
// /jobs/{id}").
func (s *Server) handleDismissJob(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	id, ok := s.parseJobID(w, r, requestID)
	if !ok {
		return
	}
	if err := s.engine.Dismiss(id); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, "job not found", nil, requestID)
			return
		}
		if errors.Is(err, engine.ErrNotRunning) {
			s.writeErrorResponse(w, http.StatusConflict, "job already terminal", nil, requestID)
			return
		}
		logger.FromContext(logger.WithJobID(r.Context(), id.String())).Error("failed to dismiss job", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to dismiss job", nil, requestID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetJobResults returns a succeeded job's results, or 409 Conflict
// while the job has not succeeded (spec.md §6 "GET /jobs/{id}/results").
func (s *Server) handleGetJobResults(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	j, err := s.fetchJob(w, r, requestID)
	if err != nil {
		return
	}
	if j.Status != job.StatusSucceeded {
		s.writeErrorResponse(w, http.StatusConflict, "job has not succeeded", []string{string(j.Status)}, requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"outputs": j.Results})
}

// handleGetJobExceptions returns the structured exceptions recorded
// against a job (spec.md §6 "GET /jobs/{id}/exceptions").
func (s *Server) handleGetJobExceptions(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	j, err := s.fetchJob(w, r, requestID)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exceptions": j.Exceptions})
}

// handleGetJobLogs returns the job's accumulated log lines (spec.md §6
// "GET /jobs/{id}/logs").
func (s *Server) handleGetJobLogs(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	j, err := s.fetchJob(w, r, requestID)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": j.Logs})
}

// parseJobID extracts and validates the {jobID} path parameter, writing
// an error response and returning ok=false on failure.
func (s *Server) parseJobID(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "jobID")
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid job id", []string{err.Error()}, requestID)
		return uuid.UUID{}, false
	}
	return id, true
}

// fetchJob resolves the {jobID} path parameter to a job record, writing
// the appropriate error response (and returning a non-nil error) on
// failure.
func (s *Server) fetchJob(w http.ResponseWriter, r *http.Request, requestID string) (*job.Job, error) {
	id, ok := s.parseJobID(w, r, requestID)
	if !ok {
		return nil, fmt.Errorf("invalid job id")
	}
	j, err := s.jobs.FetchByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, "job not found", nil, requestID)
			return nil, err
		}
		logger.FromContext(logger.WithJobID(r.Context(), id.String())).Error("failed to fetch job", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to fetch job", nil, requestID)
		return nil, err
	}
	return j, nil
}

// jobStatusDocument builds the OGC API - Processes JSON status document
// for j, using the engine's started-at tracking for the same `started`
// value the C8 status-bridge writer persists to disk.
func (s *Server) jobStatusDocument(j *job.Job) statusjson.Document {
	var started *time.Time
	if t, ok := s.engine.StartedAt(j.ID); ok {
		started = &t
	}
	base := fmt.Sprintf("%s/jobs/%s", s.baseURL, j.ID)
	return statusjson.Build(j, started, statusjson.URLs{
		Self:    base,
		Logs:    base + "/logs",
		Results: base + "/results",
	})
}
