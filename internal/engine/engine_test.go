package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crim-ca/weaver-ems/internal/adapter"
	"github.com/crim-ca/weaver-ems/internal/container"
	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/pkgload"
	"github.com/crim-ca/weaver-ems/internal/process"
)

var bgCtx = context.Background()

// simpleTool is a single-step CommandLineTool that writes "out.txt",
// matching an inputBinding/outputBinding.glob pair LocalContainerAdapter
// can translate without any workflow edges.
func simpleTool(image string) pkgload.Package {
	return pkgload.Package{
		Class:       pkgload.ClassCommandLineTool,
		BaseCommand: []interface{}{"run-tool"},
		Requirements: []pkgload.Requirement{
			{Class: pkgload.RequirementDocker, DockerPull: image},
		},
		Inputs: []pkgload.IOEntry{
			{ID: "input", Type: "File", InputBinding: &pkgload.InputBinding{Position: 1}},
		},
		Outputs: []pkgload.IOEntry{
			{ID: "out", Type: "File", OutputBinding: &pkgload.OutputBinding{Glob: "out.txt"}},
		},
	}
}

// packageToMap round-trips pkg through JSON the way a deployed process's
// Package field is stored (spec.md §3: decoded map[string]interface{}),
// matching dispatch's json.Marshal(proc.Package) + loader.Load path.
func packageToMap(t *testing.T, pkg pkgload.Package) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(pkg)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func saveProcess(t *testing.T, processes process.Store, id string, pkg pkgload.Package) {
	t.Helper()
	require.NoError(t, processes.SaveProcess(bgCtx, &process.Process{
		ID:      id,
		Type:    process.TypeWPS,
		Package: packageToMap(t, pkg),
	}))
}

func waitForTerminal(t *testing.T, jobs job.Store, id uuid.UUID, timeout time.Duration) *job.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		j, err := jobs.FetchByID(bgCtx, id)
		require.NoError(t, err)
		if job.IsTerminalStatus(j.Status) {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %s", id, timeout)
	return nil
}

func TestEngine_RunsSingleStepJobToSuccess(t *testing.T) {
	jobs := job.NewMemoryStore()
	processes := process.NewMemoryStore()
	saveProcess(t, processes, "buffer", simpleTool("example/buffer:latest"))

	workDir := t.TempDir()
	outputDir := t.TempDir()

	fake := container.NewFake()
	fake.DefaultResult = &container.Result{ExitCode: 0, Stdout: "ok"}

	// The container never actually runs, so pre-create the output file the
	// fake "exit" is supposed to have produced, at the exact glob path
	// LocalContainerAdapter's GetResults will match (WorkDir/containers/<step>).
	stepWorkDir := filepath.Join(workDir, "containers", "__root__")
	require.NoError(t, os.MkdirAll(stepWorkDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stepWorkDir, "out.txt"), []byte("result"), 0o644))

	e := New(Config{
		Workers:   1,
		Mode:      adapter.ModeADES,
		WorkDir:   workDir,
		OutputDir: outputDir,
		OutputURL: "http://store.example",
	}, jobs, processes, nil, nil, fake, nil, nil)
	e.Start()
	defer e.Stop()

	j := job.New("buffer")
	j.Inputs = []job.IOValue{{ID: "input", Href: "file:///tmp/in.tif"}}
	require.NoError(t, jobs.SaveJob(bgCtx, j))
	require.NoError(t, e.Submit(j.ID))

	done := waitForTerminal(t, jobs, j.ID, 5*time.Second)
	require.Equal(t, job.StatusSucceeded, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.Len(t, done.Results, 2) // "out" + synthetic stdout.log
	var outHref string
	for _, r := range done.Results {
		if r.ID == "out" {
			outHref = r.Href
		}
	}
	assert.Contains(t, outHref, "http://store.example")
	assert.Contains(t, outHref, "out.txt")
}

func TestEngine_StepFailurePropagatesToJobException(t *testing.T) {
	jobs := job.NewMemoryStore()
	processes := process.NewMemoryStore()
	saveProcess(t, processes, "buffer", simpleTool("example/buffer:latest"))

	fake := container.NewFake()
	fake.DefaultResult = &container.Result{ExitCode: 1, Stderr: "boom"}

	e := New(Config{
		Workers: 1,
		Mode:    adapter.ModeADES,
		WorkDir: t.TempDir(),
	}, jobs, processes, nil, nil, fake, nil, nil)
	e.Start()
	defer e.Stop()

	j := job.New("buffer")
	j.Inputs = []job.IOValue{{ID: "input", Href: "file:///tmp/in.tif"}}
	require.NoError(t, jobs.SaveJob(bgCtx, j))
	require.NoError(t, e.Submit(j.ID))

	done := waitForTerminal(t, jobs, j.ID, 5*time.Second)
	assert.Equal(t, job.StatusException, done.Status)
	require.Len(t, done.Exceptions, 1)
	assert.Contains(t, done.Exceptions[0].Text, "remote step reported failure")
}

func TestEngine_DismissBeforeDispatchSkipsExecution(t *testing.T) {
	jobs := job.NewMemoryStore()
	processes := process.NewMemoryStore()
	saveProcess(t, processes, "buffer", simpleTool("example/buffer:latest"))

	e := New(Config{Mode: adapter.ModeADES, WorkDir: t.TempDir()}, jobs, processes, nil, nil, container.NewFake(), nil, nil)

	j := job.New("buffer")
	require.NoError(t, jobs.SaveJob(bgCtx, j))

	require.NoError(t, e.Dismiss(j.ID))

	got, err := jobs.FetchByID(bgCtx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusDismissed, got.Status)
}

func TestEngine_DismissAlreadyTerminalJobFails(t *testing.T) {
	jobs := job.NewMemoryStore()
	processes := process.NewMemoryStore()
	e := New(Config{Mode: adapter.ModeADES, WorkDir: t.TempDir()}, jobs, processes, nil, nil, container.NewFake(), nil, nil)

	j := job.New("buffer")
	require.NoError(t, j.SetStatus(job.StatusRunning, "dispatching"))
	require.NoError(t, j.SetStatus(job.StatusSucceeded, "done"))
	require.NoError(t, jobs.SaveJob(bgCtx, j))

	err := e.Dismiss(j.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRunning)
}

// blockingRunner blocks until its context is canceled, matching a
// container still running when Dismiss() fires (Runner implementations
// must block until the container exits or ctx is canceled).
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ container.RunSpec) (*container.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_DismissRunningJobStopsItWithoutRecordingFailure(t *testing.T) {
	jobs := job.NewMemoryStore()
	processes := process.NewMemoryStore()
	saveProcess(t, processes, "slow", simpleTool("example/slow:latest"))

	e := New(Config{Workers: 1, Mode: adapter.ModeADES, WorkDir: t.TempDir()}, jobs, processes, nil, nil, blockingRunner{}, nil, nil)
	e.Start()
	defer e.Stop()

	j := job.New("slow")
	j.Inputs = []job.IOValue{{ID: "input", Href: "file:///tmp/in.tif"}}
	require.NoError(t, jobs.SaveJob(bgCtx, j))
	require.NoError(t, e.Submit(j.ID))

	// Give the worker a moment to pick the job up and register its cancel
	// handle before dismissing it.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Dismiss(j.ID))

	done := waitForTerminal(t, jobs, j.ID, 5*time.Second)
	assert.Equal(t, job.StatusDismissed, done.Status)
	assert.Empty(t, done.Exceptions)
}

func TestEngine_StopDrainsWorkersWithinTimeout(t *testing.T) {
	jobs := job.NewMemoryStore()
	processes := process.NewMemoryStore()
	e := New(Config{Workers: 2, Mode: adapter.ModeADES, WorkDir: t.TempDir(), ShutdownTimeout: time.Second},
		jobs, processes, nil, nil, container.NewFake(), nil, nil)
	e.Start()
	require.NoError(t, e.Stop())
}
