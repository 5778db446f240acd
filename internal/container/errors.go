package container

import "errors"

var (
	// ErrRunFailed wraps any error encountered starting, waiting on, or
	// inspecting a container.
	ErrRunFailed = errors.New("container run failed")

	// ErrImageRequired is raised when a RunSpec has no image set.
	ErrImageRequired = errors.New("container image is required")
)
