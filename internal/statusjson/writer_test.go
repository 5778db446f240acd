package statusjson

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crim-ca/weaver-ems/internal/job"
)

func TestWriter_WriteStatus_WritesJSONAndXML(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "http://store.example/status")

	j := job.New("buffer")
	require.NoError(t, w.WriteStatus(j, nil, time.Now()))

	jsonBody, err := os.ReadFile(filepath.Join(dir, j.ID.String()+".json"))
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(jsonBody, &doc))
	assert.Equal(t, "accepted", doc.Status)

	xmlBody, err := os.ReadFile(filepath.Join(dir, j.ID.String()+".xml"))
	require.NoError(t, err)
	assert.Contains(t, string(xmlBody), "ExecuteResponse")
}

func TestWriter_WriteStatus_ThrottlesNonTerminalWrites(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "http://store.example/status")
	w.MinInterval = time.Hour

	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))

	now := time.Now()
	require.NoError(t, w.WriteStatus(j, nil, now))

	path := filepath.Join(dir, j.ID.String()+".json")
	first, err := os.Stat(path)
	require.NoError(t, err)

	j.Progress = 50
	require.NoError(t, w.WriteStatus(j, nil, now.Add(time.Second)))

	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())
}

func TestWriter_WriteStatus_AlwaysWritesOnTerminalTransition(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "http://store.example/status")
	w.MinInterval = time.Hour

	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))
	now := time.Now()
	require.NoError(t, w.WriteStatus(j, nil, now))

	require.NoError(t, j.SetStatus(job.StatusSucceeded, "done"))
	require.NoError(t, w.WriteStatus(j, nil, now.Add(time.Millisecond)))

	body, err := os.ReadFile(filepath.Join(dir, j.ID.String()+".json"))
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "successful", doc.Status)
}

func TestWriter_AppendLog_OnlyAppendsNewLines(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "http://store.example/status")

	j := job.New("buffer")
	j.SaveLog("INFO", "first line")
	require.NoError(t, w.AppendLog(j))

	j.SaveLog("INFO", "second line")
	require.NoError(t, w.AppendLog(j))

	body, err := os.ReadFile(filepath.Join(dir, j.ID.String()+".log"))
	require.NoError(t, err)
	assert.Equal(t, 2, len(splitLines(string(body))))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}
