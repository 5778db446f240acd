package statusxml

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crim-ca/weaver-ems/internal/job"
)

func render(t *testing.T, j *job.Job) executeResponse {
	t.Helper()
	body, err := Render(j, "http://store.example/status.xml")
	require.NoError(t, err)

	var resp executeResponse
	require.NoError(t, xml.Unmarshal(body, &resp))
	return resp
}

func TestRender_AcceptedJob(t *testing.T) {
	j := job.New("buffer")
	resp := render(t, j)
	require.NotNil(t, resp.Status.ProcessAccepted)
	assert.Nil(t, resp.Status.ProcessStarted)
	assert.Nil(t, resp.ProcessOutputs)
}

func TestRender_RunningJobReportsPercentCompleted(t *testing.T) {
	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))
	j.Progress = 42

	resp := render(t, j)
	require.NotNil(t, resp.Status.ProcessStarted)
	assert.Equal(t, 42, resp.Status.ProcessStarted.PercentCompleted)
}

func TestRender_SucceededJobIncludesOutputs(t *testing.T) {
	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))
	j.Results = []job.IOValue{
		{ID: "out", Href: "http://store.example/out.txt", MimeType: "text/plain"},
		{ID: "count", Value: 3},
	}
	require.NoError(t, j.SetStatus(job.StatusSucceeded, "done"))

	resp := render(t, j)
	require.NotNil(t, resp.Status.ProcessSucceeded)
	require.NotNil(t, resp.ProcessOutputs)
	require.Len(t, resp.ProcessOutputs.Output, 2)

	byID := map[string]output{}
	for _, o := range resp.ProcessOutputs.Output {
		byID[o.Identifier] = o
	}
	require.NotNil(t, byID["out"].Reference)
	assert.Equal(t, "http://store.example/out.txt", byID["out"].Reference.Href)
	require.NotNil(t, byID["count"].Data)
	assert.Equal(t, "3", byID["count"].Data.LiteralData)
}

func TestRender_FailedJobReportsExceptions(t *testing.T) {
	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))
	require.NoError(t, j.AddException(job.Exception{Code: "NoApplicableCode", Text: "boom"}))

	resp := render(t, j)
	require.NotNil(t, resp.Status.ProcessFailed)
	require.Len(t, resp.Status.ProcessFailed.ExceptionReport.Exceptions, 1)
	assert.Equal(t, "boom", resp.Status.ProcessFailed.ExceptionReport.Exceptions[0].Text)
	assert.Nil(t, resp.ProcessOutputs)
}

func TestRender_DismissedJobMapsToProcessFailed(t *testing.T) {
	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusDismissed, "cancelled before dispatch"))

	resp := render(t, j)
	require.NotNil(t, resp.Status.ProcessFailed)
	require.Len(t, resp.Status.ProcessFailed.ExceptionReport.Exceptions, 1)
	assert.Equal(t, "NoApplicableCode", resp.Status.ProcessFailed.ExceptionReport.Exceptions[0].Code)
	assert.Equal(t, "cancelled before dispatch", resp.Status.ProcessFailed.ExceptionReport.Exceptions[0].Text)
}
