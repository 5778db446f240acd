package pkgload

import "errors"

var (
	// ErrPackageRegistration covers malformed packages, bad extensions,
	// and cycles detected while resolving workflow step references.
	ErrPackageRegistration = errors.New("package registration error")

	// ErrPackageNotFound is raised when a referenced package/payload could
	// not be located (local path or remote URL 404).
	ErrPackageNotFound = errors.New("package not found")

	// ErrNotImplemented covers requirement hints this engine does not
	// support (ESGF-CWTRequirement).
	ErrNotImplemented = errors.New("not implemented")
)

var supportedExtensions = map[string]bool{
	"yaml": true,
	"yml":  true,
	"json": true,
	"cwl":  true,
	"job":  true,
}
