package job

import "errors"

var (
	// ErrNotFound is raised when a job id has no matching record.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is raised by SetStatus when the requested
	// status is not reachable from the job's current status.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrProgressRegression is raised when a non-terminal-failure status
	// update would decrease progress.
	ErrProgressRegression = errors.New("job progress must not decrease")

	// ErrTerminal names the terminal-state condition. No Job method
	// returns it: SetStatus rejects a transition out of a terminal state
	// with ErrInvalidTransition.
	ErrTerminal = errors.New("job is in a terminal state")
)
