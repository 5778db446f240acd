package engine

import "errors"

var (
	// ErrQueueFull is returned by Submit when the dispatch queue has no
	// free capacity.
	ErrQueueFull = errors.New("engine: dispatch queue is full")

	// ErrNotRunning is returned by Dismiss when the job carries no
	// registered cancellation handle and is already in a terminal state
	// (so there is nothing left to cancel).
	ErrNotRunning = errors.New("engine: job is not running or queued")

	// ErrShutdownTimeout is returned by Stop when workers do not drain
	// within the given deadline.
	ErrShutdownTimeout = errors.New("engine: shutdown timeout exceeded")
)
