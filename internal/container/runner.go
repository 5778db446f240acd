// Package container runs a single command to completion inside a
// container and reports its exit code plus captured output — the
// run-to-completion counterpart of the teacher's long-running tenant
// container provider (internal/compute/providers/docker), adapted for
// the LocalContainerAdapter's one-shot dispatch/monitor/cleanup cycle
// (spec.md §4.5).
package container

import (
	"context"
	"fmt"
)

// Mount binds a host path into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// PullPolicy controls whether a missing/stale image is pulled before run.
type PullPolicy string

const (
	PullIfNotPresent PullPolicy = "if-not-present"
	PullAlways       PullPolicy = "always"
	PullNever        PullPolicy = "never"
)

// RunSpec describes one command execution (spec.md §4.5
// LocalContainerAdapter.dispatch: image from DockerRequirement.dockerPull,
// workdir mounted read-write, positional/flag args from inputBinding).
type RunSpec struct {
	Image      string
	Command    []string
	Env        map[string]string
	Mounts     []Mount
	WorkDir    string
	Network    string
	PullPolicy PullPolicy
	Timeout    int // seconds; 0 means no deadline beyond ctx
}

// Result is the outcome of a completed run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Succeeded reports whether the container exited zero, matching spec.md's
// "success = (exit code == 0)".
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Runner executes a RunSpec to completion. Implementations must block
// until the container has exited (or ctx is canceled) before returning.
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (*Result, error)
}

// Validate checks the fields LocalContainerAdapter relies on.
func (s RunSpec) Validate() error {
	if s.Image == "" {
		return ErrImageRequired
	}
	return nil
}

func wrapRunErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRunFailed, op, err)
}
