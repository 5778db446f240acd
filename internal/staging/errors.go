package staging

import "errors"

var (
	// ErrFetchFailed is raised when an input href could not be retrieved
	// after exhausting retries.
	ErrFetchFailed = errors.New("input fetch failed")

	// ErrUnsupportedScheme is raised for an href whose scheme is neither
	// http(s), file, nor the configured opensearch local-file scheme.
	ErrUnsupportedScheme = errors.New("unsupported href scheme")

	// ErrInvalidOutputContext is raised when an X-WPS-Output-Context value
	// does not match the required sub-directory-tree pattern.
	ErrInvalidOutputContext = errors.New("invalid output context")

	// ErrNotUnderOutputPrefix is raised by MapWPSOutputLocation when a
	// public URL is not rooted under the configured output URL.
	ErrNotUnderOutputPrefix = errors.New("url is not under the configured output prefix")
)
