package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crim-ca/weaver-ems/internal/container"
	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/pkgload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalContainerAdapter_DispatchOrdersArgsByPosition(t *testing.T) {
	fake := container.NewFake()
	a := &LocalContainerAdapter{
		Runner:      fake,
		Image:       "example/tool:latest",
		BaseCommand: []string{"run-tool"},
		InputBindings: map[string]pkgload.InputBinding{
			"threshold": {Position: 2, Prefix: "--threshold"},
			"input":     {Position: 1},
		},
		WorkDir: t.TempDir(),
	}

	inputs := []job.IOValue{
		{ID: "threshold", Value: "0.5"},
		{ID: "input", Href: "file:///data/in.tif"},
	}

	ref, err := a.Dispatch(context.Background(), inputs, nil)
	require.NoError(t, err)
	require.NotNil(t, ref)

	require.Len(t, fake.Calls, 1)
	assert.Equal(t, []string{"run-tool", "file:///data/in.tif", "--threshold", "0.5"}, fake.Calls[0].Command)
}

func TestLocalContainerAdapter_MonitorReportsSuccessFromExitCode(t *testing.T) {
	fake := container.NewFake()
	fake.DefaultResult = &container.Result{ExitCode: 0, Stdout: "done"}
	a := &LocalContainerAdapter{Runner: fake, Image: "example/tool", WorkDir: t.TempDir()}

	ref, err := a.Dispatch(context.Background(), []job.IOValue{}, nil)
	require.NoError(t, err)

	var reported int
	ok, err := a.Monitor(context.Background(), ref, func(percent int, _ string) { reported = percent })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 100, reported)
}

func TestLocalContainerAdapter_MonitorReportsFailureOnNonZeroExit(t *testing.T) {
	fake := container.NewFake()
	fake.DefaultResult = &container.Result{ExitCode: 1, Stderr: "boom"}
	a := &LocalContainerAdapter{Runner: fake, Image: "example/tool", WorkDir: t.TempDir()}

	ref, err := a.Dispatch(context.Background(), []job.IOValue{}, nil)
	require.NoError(t, err)

	ok, err := a.Monitor(context.Background(), ref, func(int, string) {})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalContainerAdapter_GetResultsGlobsOutputsAndWritesStdoutLog(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "result.tif"), []byte("geo"), 0o644))

	fake := container.NewFake()
	fake.DefaultResult = &container.Result{ExitCode: 0, Stdout: "log output"}
	a := &LocalContainerAdapter{
		Runner: fake, Image: "example/tool", WorkDir: workDir,
		OutputBindings: map[string]pkgload.OutputBinding{
			"raster": {Glob: "*.tif"},
		},
	}

	ref, err := a.Dispatch(context.Background(), []job.IOValue{}, nil)
	require.NoError(t, err)
	_, err = a.Monitor(context.Background(), ref, func(int, string) {})
	require.NoError(t, err)

	results, err := a.GetResults(context.Background(), ref)
	require.NoError(t, err)

	byID := map[string]job.IOValue{}
	for _, r := range results {
		byID[r.ID] = r
	}
	require.Contains(t, byID, "raster")
	assert.Contains(t, byID["raster"].Href, "result.tif")
	require.Contains(t, byID, "stdout.log")

	logBytes, err := os.ReadFile(filepath.Join(workDir, "stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "log output", string(logBytes))
}
