package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIProcessesAdapter_DispatchCapturesLocationHeader(t *testing.T) {
	var locationHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/processes/buffer/execution", r.URL.Path)
		var body apiProcessesExecutionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"href": "file:///in.tif"}, body.Inputs["raster"])

		w.Header().Set("Location", locationHeader)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()
	locationHeader = server.URL + "/jobs/abc"

	a := &APIProcessesAdapter{Endpoint: server.URL, ProcessID: "buffer"}
	ref, err := a.Dispatch(context.Background(), []job.IOValue{{ID: "raster", Href: "file:///in.tif"}}, nil)
	require.NoError(t, err)

	m, ok := ref.(*apiProcessesMonitorRef)
	require.True(t, ok)
	assert.Contains(t, m.location, "/jobs/abc")
}

func TestAPIProcessesAdapter_MonitorPollsUntilTerminalStatus(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "running"
		if calls >= 2 {
			status = "successful"
		}
		_ = json.NewEncoder(w).Encode(apiProcessesStatusDoc{Status: status})
	}))
	defer server.Close()

	a := &APIProcessesAdapter{}
	ref := &apiProcessesMonitorRef{location: server.URL}

	ok, err := a.Monitor(context.Background(), ref, func(int, string) {})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestAPIProcessesAdapter_MonitorForwardsRemoteProgress(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		doc := apiProcessesStatusDoc{Status: "running", Message: "working", Progress: calls * 30}
		if calls >= 3 {
			doc.Status = "successful"
			doc.Progress = 100
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer server.Close()

	a := &APIProcessesAdapter{}
	ref := &apiProcessesMonitorRef{location: server.URL}

	var reported []int
	ok, err := a.Monitor(context.Background(), ref, func(progress int, message string) {
		reported = append(reported, progress)
		assert.Equal(t, "working", message)
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, reported, 3)
	assert.Equal(t, []int{30, 60, 100}, reported)
}

func TestAPIProcessesAdapter_MonitorHonorsStatusCodeMockOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiProcessesStatusDoc{Status: "running"})
	}))
	defer server.Close()

	a := &APIProcessesAdapter{StatusCodeMock: "failed"}
	ref := &apiProcessesMonitorRef{location: server.URL}

	ok, err := a.Monitor(context.Background(), ref, func(int, string) {})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAPIProcessesAdapter_GetResultsFetchesResultsEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs/abc/results", r.URL.Path)
		fmt.Fprint(w, `{"raster": {"href": "http://store/out.tif"}, "count": {"value": 3}}`)
	}))
	defer server.Close()

	a := &APIProcessesAdapter{}
	ref := &apiProcessesMonitorRef{location: server.URL + "/jobs/abc"}

	results, err := a.GetResults(context.Background(), ref)
	require.NoError(t, err)

	byID := map[string]job.IOValue{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.Equal(t, "http://store/out.tif", byID["raster"].Href)
	assert.EqualValues(t, 3, byID["count"].Value)
}

func TestAPIProcessesAdapter_DispatchRetriesOnceOn502(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Location", "http://wherever/jobs/xyz")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	a := &APIProcessesAdapter{Endpoint: server.URL, ProcessID: "buffer"}
	ref, err := a.Dispatch(context.Background(), []job.IOValue{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	m := ref.(*apiProcessesMonitorRef)
	assert.Equal(t, "http://wherever/jobs/xyz", m.location)
}
