package statusjson

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crim-ca/weaver-ems/internal/job"
)

func TestBuild_RunningJobHasResultsLink(t *testing.T) {
	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))
	started := time.Now()

	doc := Build(j, &started, URLs{Self: "http://x/self", Logs: "http://x/log", Results: "http://x/res"})

	assert.Equal(t, j.ID.String(), doc.JobID)
	assert.Equal(t, "running", doc.Status)
	assert.Equal(t, &started, doc.Started)
	assert.Nil(t, doc.Finished)

	var rels []string
	for _, l := range doc.Links {
		rels = append(rels, l.Rel)
	}
	assert.Contains(t, rels, "self")
	assert.Contains(t, rels, "logs")
	assert.Contains(t, rels, "results")
	assert.NotContains(t, rels, "exceptions")
}

func TestBuild_FailedJobHasExceptionsLinkNotResults(t *testing.T) {
	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))
	require.NoError(t, j.AddException(job.Exception{Code: "NoApplicableCode", Text: "boom"}))

	doc := Build(j, nil, URLs{Self: "s", Logs: "l", Results: "r"})

	assert.Equal(t, "failed", doc.Status)
	assert.NotNil(t, doc.Finished)

	var rels []string
	for _, l := range doc.Links {
		rels = append(rels, l.Rel)
	}
	assert.Contains(t, rels, "exceptions")
	assert.NotContains(t, rels, "results")
}

func TestBuild_SucceededJobHasResultsLink(t *testing.T) {
	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))
	require.NoError(t, j.SetStatus(job.StatusSucceeded, "done"))

	doc := Build(j, nil, URLs{Self: "s", Logs: "l", Results: "r"})

	assert.Equal(t, "successful", doc.Status)
	assert.Equal(t, 100, doc.Progress)

	var rels []string
	for _, l := range doc.Links {
		rels = append(rels, l.Rel)
	}
	assert.Contains(t, rels, "results")
	assert.NotContains(t, rels, "exceptions")
}

func TestExternalStatus_ExceptionMapsToFailed(t *testing.T) {
	assert.Equal(t, "failed", externalStatus(job.StatusException))
	assert.Equal(t, "successful", externalStatus(job.StatusSucceeded))
	assert.Equal(t, "running", externalStatus(job.StatusRunning))
}
