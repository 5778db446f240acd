package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/crim-ca/weaver-ems/internal/container"
	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/pkgload"
)

// LocalContainerAdapter dispatches a step to a local container runtime
// (spec.md §4.5 LocalContainerAdapter): the image comes from the
// package's DockerRequirement.dockerPull, inputs translate to positional
// arguments or named flags via each input's inputBinding, and outputs are
// discovered by glob pattern under workdir after the container exits.
type LocalContainerAdapter struct {
	BaseHooks

	Runner         container.Runner
	Image          string
	BaseCommand    []string
	InputBindings  map[string]pkgload.InputBinding
	OutputBindings map[string]pkgload.OutputBinding
	WorkDir        string
	Network        string
	PullPolicy     container.PullPolicy
}

type localMonitorRef struct {
	result *container.Result
}

// argToken is one positional/flag argument awaiting sort-by-position.
type argToken struct {
	position int
	tokens   []string
}

// Dispatch builds the container command line from each input's binding
// and runs the image to completion (LocalContainerAdapter's runner is
// synchronous: by the time Dispatch returns, the container has already
// exited, so Monitor only needs to report the stored result).
func (a *LocalContainerAdapter) Dispatch(ctx context.Context, dispatchedInputs, _ interface{}) (MonitorRef, error) {
	inputs, ok := dispatchedInputs.([]job.IOValue)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected dispatched-inputs type %T", ErrStepFailed, dispatchedInputs)
	}

	args := append([]string(nil), a.BaseCommand...)
	args = append(args, a.buildArgs(inputs)...)

	spec := container.RunSpec{
		Image:      a.Image,
		Command:    args,
		WorkDir:    "/workdir",
		Network:    a.Network,
		PullPolicy: a.PullPolicy,
		Mounts: []container.Mount{
			{HostPath: a.WorkDir, ContainerPath: "/workdir"},
		},
	}

	res, err := a.Runner.Run(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &localMonitorRef{result: res}, nil
}

// buildArgs orders each bound input by inputBinding.Position, rendering
// a prefix flag ("--threshold 0.5") when Prefix is set, or a bare
// positional token otherwise.
func (a *LocalContainerAdapter) buildArgs(inputs []job.IOValue) []string {
	tokens := make([]argToken, 0, len(inputs))
	for _, in := range inputs {
		binding, ok := a.InputBindings[in.ID]
		if !ok {
			continue
		}
		value := in.Href
		if value == "" {
			value = fmt.Sprintf("%v", in.Value)
		}
		var rendered []string
		if binding.Prefix != "" {
			rendered = []string{binding.Prefix, value}
		} else {
			rendered = []string{value}
		}
		tokens = append(tokens, argToken{position: binding.Position, tokens: rendered})
	}
	sort.SliceStable(tokens, func(i, k int) bool { return tokens[i].position < tokens[k].position })

	args := make([]string, 0, len(tokens)*2)
	for _, t := range tokens {
		args = append(args, t.tokens...)
	}
	return args
}

// Monitor reports the stored exit result; the runner already blocked
// until completion inside Dispatch, matching spec.md's "monitor blocks
// on the container exit; success = (exit code == 0)".
func (a *LocalContainerAdapter) Monitor(_ context.Context, ref MonitorRef, report ProgressFunc) (bool, error) {
	m, ok := ref.(*localMonitorRef)
	if !ok {
		return false, fmt.Errorf("%w: unexpected monitor ref type %T", ErrStepFailed, ref)
	}
	report(100, "container exited")
	return m.result.Succeeded(), nil
}

// GetResults matches each declared output's outputBinding.glob under
// workdir and always adds a synthetic stdout.log sink.
func (a *LocalContainerAdapter) GetResults(_ context.Context, ref MonitorRef) ([]job.IOValue, error) {
	m, ok := ref.(*localMonitorRef)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected monitor ref type %T", ErrStepFailed, ref)
	}

	results := make([]job.IOValue, 0, len(a.OutputBindings)+1)
	ids := make([]string, 0, len(a.OutputBindings))
	for id := range a.OutputBindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		binding := a.OutputBindings[id]
		matches, err := filepath.Glob(filepath.Join(a.WorkDir, binding.Glob))
		if err != nil {
			return nil, fmt.Errorf("%w: globbing output %s: %v", ErrStepFailed, id, err)
		}
		if len(matches) == 0 {
			continue
		}
		results = append(results, job.IOValue{ID: id, Href: "file://" + matches[0]})
	}

	stdoutPath := filepath.Join(a.WorkDir, "stdout.log")
	if err := os.WriteFile(stdoutPath, []byte(m.result.Stdout), 0o644); err != nil {
		return nil, fmt.Errorf("%w: writing stdout.log: %v", ErrStepFailed, err)
	}
	results = append(results, job.IOValue{ID: "stdout.log", Href: "file://" + stdoutPath})

	return results, nil
}
