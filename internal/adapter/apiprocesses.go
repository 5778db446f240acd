package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crim-ca/weaver-ems/internal/job"
)

// apiProcessesTerminalStatuses lists the remote OGC API — Processes status
// values that end polling. They are the remote ADES's vocabulary
// ("successful", not job.StatusSucceeded's "succeeded"), kept separate
// from the engine's own job.Status values.
var apiProcessesTerminalStatuses = map[string]bool{
	"successful": true,
	"failed":     true,
	"dismissed":  true,
}

// APIProcessesAdapter drives a step against a remote OGC API — Processes
// ADES: dispatch POSTs the execution envelope, monitor polls the
// returned Location until a terminal status, and results come from
// "<location>/results".
type APIProcessesAdapter struct {
	BaseHooks

	HTTPClient *http.Client
	Endpoint   string
	ProcessID  string

	// StatusCodeMock overrides the polled status for test injection; per
	// spec.md §4.5, no other code path may simulate status.
	StatusCodeMock string
}

func (a *APIProcessesAdapter) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

type apiProcessesMonitorRef struct {
	location string
}

type apiProcessesExecutionRequest struct {
	Inputs  map[string]interface{} `json:"inputs"`
	Outputs map[string]interface{} `json:"outputs,omitempty"`
	Mode    string                 `json:"mode,omitempty"`
}

type apiProcessesStatusDoc struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Progress int    `json:"progress,omitempty"`
}

// Dispatch POSTs the OGC API — Processes execution envelope and
// captures the Location header as the monitor reference.
func (a *APIProcessesAdapter) Dispatch(ctx context.Context, dispatchedInputs, dispatchedOutputs interface{}) (MonitorRef, error) {
	inputs, ok := dispatchedInputs.([]job.IOValue)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected dispatched-inputs type %T", ErrStepFailed, dispatchedInputs)
	}

	envelope := apiProcessesExecutionRequest{Inputs: map[string]interface{}{}, Mode: "async"}
	for _, in := range inputs {
		if in.Href != "" {
			envelope.Inputs[in.ID] = map[string]string{"href": in.Href}
		} else {
			envelope.Inputs[in.ID] = in.Value
		}
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding execution request: %v", ErrStepFailed, err)
	}

	url := fmt.Sprintf("%s/processes/%s/execution", a.Endpoint, a.ProcessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building execution request: %v", ErrStepFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "respond-async")

	resp, err := a.doWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("%w: submitting execution request: %v", ErrStepFailed, err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: execution response carries no Location header", ErrStepFailed)
	}
	return &apiProcessesMonitorRef{location: location}, nil
}

// doWithRetry sends req, retrying exactly once after a 10-second pause
// on an HTTP 502 from known-unreliable upstreams (spec.md §4.5).
func (a *APIProcessesAdapter) doWithRetry(req *http.Request) (*http.Response, error) {
	resp, err := a.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusBadGateway {
		return resp, nil
	}
	resp.Body.Close()

	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	case <-time.After(10 * time.Second):
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	return a.client().Do(req)
}

// Monitor polls "<location>" until the status reaches a terminal value,
// honoring StatusCodeMock when set for test injection.
func (a *APIProcessesAdapter) Monitor(ctx context.Context, ref MonitorRef, report ProgressFunc) (bool, error) {
	m, ok := ref.(*apiProcessesMonitorRef)
	if !ok {
		return false, fmt.Errorf("%w: unexpected monitor ref type %T", ErrStepFailed, ref)
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}

		doc, err := a.pollStatus(ctx, m.location)
		if err != nil {
			return false, fmt.Errorf("%w: polling status: %v", ErrStepFailed, err)
		}
		status := doc.Status
		if a.StatusCodeMock != "" {
			status = a.StatusCodeMock
		}
		report(doc.Progress, doc.Message)
		if apiProcessesTerminalStatuses[status] {
			return status == "successful", nil
		}
	}
}

func (a *APIProcessesAdapter) pollStatus(ctx context.Context, location string) (*apiProcessesStatusDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	var doc apiProcessesStatusDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetResults fetches "<location>/results" and decodes it into
// job.IOValue entries, one per named output.
func (a *APIProcessesAdapter) GetResults(ctx context.Context, ref MonitorRef) ([]job.IOValue, error) {
	m, ok := ref.(*apiProcessesMonitorRef)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected monitor ref type %T", ErrStepFailed, ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.location+"/results", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building results request: %v", ErrStepFailed, err)
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching results: %v", ErrStepFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: results endpoint returned %d", ErrStepFailed, resp.StatusCode)
	}

	var raw map[string]struct {
		Href  string      `json:"href"`
		Value interface{} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding results: %v", ErrStepFailed, err)
	}

	results := make([]job.IOValue, 0, len(raw))
	for id, entry := range raw {
		results = append(results, job.IOValue{ID: id, Href: entry.Href, Value: entry.Value})
	}
	return results, nil
}
