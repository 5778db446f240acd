// Package adapter implements the Remote Process Adapter contract
// (spec.md §4.5): a fixed Execute template method that dispatches one
// execution plan step to a container runner, a WPS 1.0/2.0 service, or a
// remote OGC API-Processes ADES, publishing a common progress schedule
// regardless of which backend is doing the work.
package adapter

import (
	"context"
	"fmt"

	"github.com/crim-ca/weaver-ems/internal/job"
)

// MonitorRef is the opaque handle Dispatch returns and Monitor/GetResults
// consume; its concrete type is adapter-specific (a container ID, a WPS
// statusLocation URL, an OGC API-Processes job location).
type MonitorRef interface{}

// ProgressFunc reports a step's progress, already remapped into the
// enclosing job's step window by the caller.
type ProgressFunc func(percent int, message string)

// Hooks is the set of override points spec.md §4.5 names; RemoteProcess
// wraps a Hooks implementation and drives it through the fixed Execute
// template. BaseHooks supplies the identity defaults for FormatInputs/
// FormatOutputs/StageInputs/Prepare/Cleanup that concrete adapters may
// leave unoverridden.
type Hooks interface {
	Prepare(ctx context.Context) error
	StageInputs(ctx context.Context, inputs []job.IOValue) ([]job.IOValue, error)
	FormatInputs(ctx context.Context, inputs []job.IOValue) (interface{}, error)
	FormatOutputs(ctx context.Context, expected []string) (interface{}, error)
	Dispatch(ctx context.Context, dispatchedInputs, dispatchedOutputs interface{}) (MonitorRef, error)
	Monitor(ctx context.Context, ref MonitorRef, report ProgressFunc) (bool, error)
	GetResults(ctx context.Context, ref MonitorRef) ([]job.IOValue, error)
	StageResults(ctx context.Context, results []job.IOValue, expected []string, outDir string) ([]job.IOValue, error)
	Cleanup(ctx context.Context) error
}

// BaseHooks implements every Hooks method except Dispatch, Monitor and
// GetResults as an identity/no-op default; those three each concrete
// adapter supplies itself. Concrete adapters embed BaseHooks and override
// only what they need,
// matching spec.md's "format_inputs/format_outputs -> identity by
// default" and "prepare/cleanup -> optional setup/teardown".
type BaseHooks struct{}

func (BaseHooks) Prepare(context.Context) error { return nil }

func (BaseHooks) StageInputs(_ context.Context, inputs []job.IOValue) ([]job.IOValue, error) {
	return inputs, nil
}

func (BaseHooks) FormatInputs(_ context.Context, inputs []job.IOValue) (interface{}, error) {
	return inputs, nil
}

func (BaseHooks) FormatOutputs(_ context.Context, expected []string) (interface{}, error) {
	return expected, nil
}

func (BaseHooks) StageResults(_ context.Context, results []job.IOValue, _ []string, _ string) ([]job.IOValue, error) {
	return results, nil
}

func (BaseHooks) Cleanup(context.Context) error { return nil }

// RemoteProcess drives a Hooks implementation through the fixed Execute
// template (spec.md §4.5). lo/hi bound the step's slice of the job's
// overall progress (computed by StepWindow), so every schedule point is
// remapped into that band before being reported.
type RemoteProcess struct {
	Hooks  Hooks
	Report ProgressFunc
	Lo, Hi int
}

// NewRemoteProcess builds a RemoteProcess bound to a step's progress
// window. report may be nil to discard progress events (tests).
func NewRemoteProcess(hooks Hooks, lo, hi int, report ProgressFunc) *RemoteProcess {
	if report == nil {
		report = func(int, string) {}
	}
	return &RemoteProcess{Hooks: hooks, Report: report, Lo: lo, Hi: hi}
}

func (p *RemoteProcess) emit(local int, message string) {
	p.Report(Remap(local, p.Lo, p.Hi), message)
}

// Execute runs the fixed template: prepare, stage-in, format-io,
// dispatch, monitor, get-results, stage-out, cleanup. Any hook error is
// wrapped in ErrStepFailed; Cleanup always runs, even on failure, and its
// own error is only surfaced if no earlier error already occurred.
func (p *RemoteProcess) Execute(ctx context.Context, inputs []job.IOValue, outDir string, expectedOutputs []string) ([]job.IOValue, error) {
	var results []job.IOValue
	err := p.run(ctx, inputs, outDir, expectedOutputs, &results)

	cleanupErr := p.Hooks.Cleanup(ctx)
	p.emit(Schedule.Cleanup, "cleanup")
	if err != nil {
		return results, err
	}
	if cleanupErr != nil {
		return results, fmt.Errorf("%w: cleanup: %v", ErrStepFailed, cleanupErr)
	}
	p.emit(Schedule.Completed, "completed")
	return results, nil
}

func (p *RemoteProcess) run(ctx context.Context, inputs []job.IOValue, outDir string, expectedOutputs []string, results *[]job.IOValue) error {
	if err := p.Hooks.Prepare(ctx); err != nil {
		return fmt.Errorf("%w: prepare: %v", ErrStepFailed, err)
	}
	p.emit(Schedule.Prepare, "prepare")
	p.emit(Schedule.Ready, "ready")

	staged, err := p.Hooks.StageInputs(ctx, inputs)
	if err != nil {
		return fmt.Errorf("%w: stage-in: %v", ErrStepFailed, err)
	}
	p.emit(Schedule.StageIn, "stage-in")

	dispatchedInputs, err := p.Hooks.FormatInputs(ctx, staged)
	if err != nil {
		return fmt.Errorf("%w: format-inputs: %v", ErrStepFailed, err)
	}
	dispatchedOutputs, err := p.Hooks.FormatOutputs(ctx, expectedOutputs)
	if err != nil {
		return fmt.Errorf("%w: format-outputs: %v", ErrStepFailed, err)
	}
	p.emit(Schedule.FormatIO, "format-io")

	ref, err := p.Hooks.Dispatch(ctx, dispatchedInputs, dispatchedOutputs)
	if err != nil {
		return fmt.Errorf("%w: dispatch: %v", ErrStepFailed, err)
	}
	p.emit(Schedule.Execute, "execute")

	p.emit(Schedule.Monitor, "monitor")
	success, err := p.Hooks.Monitor(ctx, ref, func(percent int, msg string) {
		p.emit(Remap(percent, Schedule.Monitor, Schedule.Results), msg)
	})
	if err != nil {
		return fmt.Errorf("%w: monitor: %v", ErrStepFailed, err)
	}
	if !success {
		return fmt.Errorf("%w: remote step reported failure", ErrStepFailed)
	}

	rawResults, err := p.Hooks.GetResults(ctx, ref)
	if err != nil {
		return fmt.Errorf("%w: get-results: %v", ErrStepFailed, err)
	}
	p.emit(Schedule.Results, "results")

	staged2, err := p.Hooks.StageResults(ctx, rawResults, expectedOutputs, outDir)
	if err != nil {
		return fmt.Errorf("%w: stage-out: %v", ErrStepFailed, err)
	}
	p.emit(Schedule.StageOut, "stage-out")

	*results = staged2
	return nil
}
