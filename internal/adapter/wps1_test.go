package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWPS1Adapter_KVPURLEncodesDataInputsByReferenceAndValue(t *testing.T) {
	a := &WPS1Adapter{Endpoint: "http://wps.example/ows", ProcessID: "buffer", UseKVP: true,
		MimeTypes: map[string]string{"input": "text/plain"}}

	raw := a.kvpURL([]job.IOValue{
		{ID: "input", Href: "file:///tmp/in.txt"},
		{ID: "radius", Value: "5"},
	})

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "WPS", q.Get("service"))
	assert.Equal(t, "Execute", q.Get("request"))
	assert.Equal(t, "buffer", q.Get("identifier"))
	assert.Contains(t, q.Get("DataInputs"), "input=file:///tmp/in.txt@mimeType=text/plain")
	assert.Contains(t, q.Get("DataInputs"), "radius=5")
}

func TestWPS1Adapter_DispatchParsesStatusLocationFromKVPResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<ExecuteResponse statusLocation="`+r.Host+`/status"><Status><ProcessAccepted>queued</ProcessAccepted></Status></ExecuteResponse>`)
	}))
	defer server.Close()

	a := &WPS1Adapter{Endpoint: server.URL, ProcessID: "buffer", UseKVP: true}
	ref, err := a.Dispatch(context.Background(), []job.IOValue{{ID: "input", Value: "x"}}, nil)
	require.NoError(t, err)

	m, ok := ref.(*wps1MonitorRef)
	require.True(t, ok)
	assert.Contains(t, m.statusLocation, "/status")
}

func TestWPS1Adapter_GetResults_ReferenceWinsOverInlineData(t *testing.T) {
	a := &WPS1Adapter{}
	ref := &wps1MonitorRef{
		outputs: &wps1ProcessOutputs{
			Outputs: []wps1Output{
				{
					Identifier: "raster",
					Reference:  &wps1Reference{Href: "http://store/raster.tif", MimeType: "image/tiff"},
					Data:       &wps1OutputData{LiteralData: "should-be-ignored"},
				},
			},
		},
	}

	results, err := a.GetResults(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "http://store/raster.tif", results[0].Href)
	assert.Nil(t, results[0].Value)
}

func TestWPS1Adapter_GetResults_UsesInlineDataWhenNoReferencePresent(t *testing.T) {
	a := &WPS1Adapter{}
	ref := &wps1MonitorRef{
		outputs: &wps1ProcessOutputs{
			Outputs: []wps1Output{
				{Identifier: "count", Data: &wps1OutputData{LiteralData: "42"}},
			},
		},
	}

	results, err := a.GetResults(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "42", results[0].Value)
	assert.Empty(t, results[0].Href)
}

func TestWPS1Adapter_Monitor_SucceedsOnFirstPollAndCapturesOutputs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<ExecuteResponse><Status><ProcessSucceeded>done</ProcessSucceeded></Status>`+
			`<ProcessOutputs><Output><Identifier>out</Identifier><Reference href="http://store/out.txt"/></Output></ProcessOutputs>`+
			`</ExecuteResponse>`)
	}))
	defer server.Close()

	a := &WPS1Adapter{}
	ref := &wps1MonitorRef{statusLocation: server.URL}

	ok, err := a.Monitor(context.Background(), ref, func(int, string) {})
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, ref.outputs)
	assert.Equal(t, "out", ref.outputs.Outputs[0].Identifier)
}

func TestWPS1Adapter_Monitor_FailsOnProcessFailedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<ExecuteResponse><Status><ProcessFailed><ExceptionReport>`+
			`<Exception exceptionCode="NoApplicableCode"><ExceptionText>boom</ExceptionText></Exception>`+
			`</ExceptionReport></ProcessFailed></Status></ExecuteResponse>`)
	}))
	defer server.Close()

	a := &WPS1Adapter{}
	ref := &wps1MonitorRef{statusLocation: server.URL}

	ok, err := a.Monitor(context.Background(), ref, func(int, string) {})
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStepFailed)
}

func TestWPS1Adapter_Monitor_TransientFailuresEventuallyExceedLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	a := &WPS1Adapter{}
	ref := &wps1MonitorRef{statusLocation: server.URL}

	ok, err := a.Monitor(context.Background(), ref, func(int, string) {})
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrTransientFailureLimit)
}
