package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/crim-ca/weaver-ems/internal/iotype"
	"github.com/crim-ca/weaver-ems/internal/logger"
	"github.com/crim-ca/weaver-ems/internal/pkgload"
	"github.com/crim-ca/weaver-ems/internal/process"
)

// handleListProcesses returns the summaries of every stored process that
// matches the optional `keyword` query parameter (spec.md §6
// "GET /processes"). Process visibility is not checked.
func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	ctx := r.Context()

	filter := process.Filter{Keyword: r.URL.Query().Get("keyword")}
	procs, err := s.processes.FindProcesses(ctx, filter)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list processes", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to list processes", nil, requestID)
		return
	}

	summaries := make([]ProcessSummary, 0, len(procs))
	for _, p := range procs {
		summaries = append(summaries, ProcessSummary{
			ID:       p.ID,
			Title:    p.TitleOrID(),
			Abstract: p.Abstract,
			Version:  p.Version,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"processes": summaries})
}

// handleGetProcess describes one deployed process, projecting its stored
// canonical I/O into the OGC API - Processes JSON dialect at request time
// (spec.md §6 "GET /processes/{id}"): the wire shape is never persisted,
// only derived from the package on every describe.
func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	id := chi.URLParam(r, "id")
	ctx := logger.WithProcessID(r.Context(), id)

	p, err := s.processes.FetchByID(ctx, id)
	if err != nil {
		if errors.Is(err, process.ErrNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, "process not found", nil, requestID)
			return
		}
		logger.FromContext(ctx).Error("failed to fetch process", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to fetch process", nil, requestID)
		return
	}

	desc := ProcessDescription{
		ID:                 p.ID,
		Title:              p.TitleOrID(),
		Abstract:           p.Abstract,
		Keywords:           p.Keywords,
		Version:            p.Version,
		JobControlOptions:  p.JobControlOptions,
		OutputTransmission: p.OutputTransmission,
		Inputs:             map[string]iotype.APIIO{},
		Outputs:            map[string]iotype.APIIO{},
	}
	for _, in := range p.Inputs {
		desc.Inputs[in.ID] = iotype.WPSToAPI(iotype.IoToWPS(in))
	}
	for _, out := range p.Outputs {
		desc.Outputs[out.ID] = iotype.WPSToAPI(iotype.IoToWPS(out))
	}

	writeJSON(w, http.StatusOK, desc)
}

// handleDeployProcess registers a new process from a CWL-like application
// package (spec.md §6 "POST /processes"): the package's declared I/O is
// validated (a bad default/allowedValues combination is rejected here,
// before any job referencing this process can be created) and converted
// into the canonical dialect for storage.
func (s *Server) handleDeployProcess(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "failed to read request body", nil, requestID)
		return
	}
	defer r.Body.Close()

	var req DeployRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON format", []string{err.Error()}, requestID)
		return
	}

	id := strings.TrimSpace(req.ProcessDescription.Process.ID)
	if id == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "processDescription.process.id is required", nil, requestID)
		return
	}
	if len(req.ExecutionUnit) == 0 {
		s.writeErrorResponse(w, http.StatusBadRequest, "executionUnit is required", nil, requestID)
		return
	}

	pkgBytes, sourceRef, err := s.resolveExecutionUnit(ctx, req.ExecutionUnit[0])
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "failed to resolve execution unit", []string{err.Error()}, requestID)
		return
	}

	pkg, _, err := s.loader.Load(ctx, pkgBytes, sourceRef)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid application package", []string{err.Error()}, requestID)
		return
	}

	inputs, err := packageIOsToCanonical(pkg.Inputs, iotype.DirectionInput)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid package input definition", []string{err.Error()}, requestID)
		return
	}
	outputs, err := packageIOsToCanonical(pkg.Outputs, iotype.DirectionOutput)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid package output definition", []string{err.Error()}, requestID)
		return
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(pkgBytes, &decoded); err != nil {
		// Package was YAML, not JSON; re-decode through the loader's own
		// parser result isn't a map, so fall back to an empty doc and let
		// the stored Package carry the structured fields instead.
		decoded = map[string]interface{}{"class": pkg.Class}
	}

	p, err := process.New(id, process.EncodeKeys(decoded).(map[string]interface{}))
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid process definition", []string{err.Error()}, requestID)
		return
	}
	p.Title = req.ProcessDescription.Process.Title
	p.Abstract = req.ProcessDescription.Process.Abstract
	p.Inputs = inputs
	p.Outputs = outputs
	p.JobControlOptions = []string{"async-execute", "sync-execute"}
	p.OutputTransmission = []string{"value", "reference"}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		p.Payload = process.EncodeKeys(payload).(map[string]interface{})
	}

	procLog := logger.FromContext(logger.WithProcessID(ctx, id))
	if err := s.processes.SaveProcess(ctx, p); err != nil {
		procLog.Error("failed to save process", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to deploy process", nil, requestID)
		return
	}

	procLog.Info("process deployed", zap.String("type", string(p.Type)))
	writeJSON(w, http.StatusCreated, ProcessSummary{ID: p.ID, Title: p.TitleOrID(), Abstract: p.Abstract})
}

// handleUndeployProcess removes a deployed process (spec.md §6 "DELETE
// /processes/{id}").
func (s *Server) handleUndeployProcess(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	id := chi.URLParam(r, "id")
	ctx := logger.WithProcessID(r.Context(), id)

	if _, err := s.processes.FetchByID(ctx, id); err != nil {
		if errors.Is(err, process.ErrNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, "process not found", nil, requestID)
			return
		}
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to fetch process", nil, requestID)
		return
	}

	if err := s.processes.DeleteProcess(ctx, id); err != nil {
		logger.FromContext(ctx).Error("failed to delete process", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to undeploy process", nil, requestID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveExecutionUnit returns the raw package bytes and a source
// reference (used for extension validation) for one executionUnit entry:
// an inline `unit` is re-marshaled to JSON; an `href` is fetched through
// the loader's HTTP fetcher.
func (s *Server) resolveExecutionUnit(ctx context.Context, unit ExecutionUnit) ([]byte, string, error) {
	if unit.Unit != nil {
		body, err := json.Marshal(process.EncodeKeys(unit.Unit))
		if err != nil {
			return nil, "", fmt.Errorf("encoding inline execution unit: %w", err)
		}
		return body, "inline.json", nil
	}
	if unit.Href == "" {
		return nil, "", fmt.Errorf("executionUnit entry has neither unit nor href")
	}
	body, err := pkgload.NewHTTPFetcher().Fetch(ctx, unit.Href)
	if err != nil {
		return nil, "", err
	}
	return body, unit.Href, nil
}

// packageIOsToCanonical converts a package's raw I/O entries into the
// canonical dialect used for process storage, validating each one along
// the way (CommandLineTool/Workflow I/O share the same validation rules
// regardless of direction).
func packageIOsToCanonical(entries []pkgload.IOEntry, dir iotype.Direction) ([]iotype.Io, error) {
	out := make([]iotype.Io, 0, len(entries))
	for _, e := range entries {
		pio := e.ToPackageIO()
		if err := iotype.ValidateStruct(pio); err != nil {
			return nil, err
		}
		wps, err := iotype.PackageToWPS(pio, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, iotype.WPSToIo(wps))
	}
	return out, nil
}
