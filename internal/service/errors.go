package service

import "errors"

var (
	// ErrNotFound is raised when a service name has no matching record.
	ErrNotFound = errors.New("service not found")

	// ErrInvalidService is raised when required fields are missing.
	ErrInvalidService = errors.New("invalid service definition")
)
