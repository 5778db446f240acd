package quote

import "errors"

var (
	// ErrInvalidQuote is raised by New when the process or user is empty
	// or the currency is not an ISO-4217 three-letter code.
	ErrInvalidQuote = errors.New("invalid quote")

	// ErrInvalidBill is raised when a required Bill field is missing or
	// malformed.
	ErrInvalidBill = errors.New("invalid bill")

	// ErrNotFound is raised when a quote or bill id has no matching record.
	ErrNotFound = errors.New("not found")
)
