package iotype

import "errors"

// Sentinel errors for the I/O type model. Every conversion failure is one
// of these, wrapped with the offending field path via fmt.Errorf("%w: ...").
var (
	// ErrPackageType is raised when a package I/O entry declares a type
	// this model does not recognize.
	ErrPackageType = errors.New("unrecognized package I/O type")

	// ErrInvalidDefault is raised when a literal's default value is not a
	// member of its allowedValues/symbols set.
	ErrInvalidDefault = errors.New("default value not in allowed set")

	// ErrMissingFormat names the empty-format condition for complex I/O.
	// No conversion returns it: PackageToWPS gives a complex entry with no
	// declared format a default text/plain format instead.
	ErrMissingFormat = errors.New("complex I/O requires at least one format")
)
