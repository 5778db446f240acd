package adapter

import "errors"

var (
	// ErrStepFailed wraps the underlying cause of a failed step dispatch,
	// matching spec.md §4.7's "PackageExecutionError carrying the
	// underlying cause".
	ErrStepFailed = errors.New("package execution error")

	// ErrNotImplemented is raised for requirements spec.md explicitly
	// marks as out of scope (ESGF-CWTRequirement).
	ErrNotImplemented = errors.New("requirement not implemented")

	// ErrTransientFailureLimit is raised by WPS1Adapter.Monitor after 5
	// consecutive polling failures.
	ErrTransientFailureLimit = errors.New("exceeded consecutive transient failure limit")
)
