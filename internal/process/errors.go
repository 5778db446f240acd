package process

import "errors"

var (
	// ErrNotFound is raised when a process id has no matching record.
	ErrNotFound = errors.New("process not found")

	// ErrInvalidProcess is raised when required fields are missing or a
	// declared type/package combination is inconsistent.
	ErrInvalidProcess = errors.New("invalid process definition")

	// ErrAlreadyExists names the duplicate-id condition. Nothing in the
	// module returns it: SaveProcess on either store is an upsert.
	ErrAlreadyExists = errors.New("process already exists")
)
