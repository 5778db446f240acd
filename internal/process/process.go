// Package process implements the deployed-process entity (spec.md §3
// "Process"): the CWL/WPS package plus its WPS/OGC-API description,
// keyed by a user-supplied identifier.
package process

import (
	"fmt"
	"strings"

	"github.com/crim-ca/weaver-ems/internal/iotype"
)

// Type distinguishes a single WPS process from a multi-step workflow
// (spec.md invariant: Type == Workflow iff the underlying package's class
// is "Workflow").
type Type string

const (
	TypeWPS      Type = "WPS"
	TypeWorkflow Type = "Workflow"
)

// Visibility controls whether a process is listed to other users.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Process is a deployed process definition (spec.md §3, grounded on
// weaver.datatype.Process).
type Process struct {
	ID         string
	Title      string
	Abstract   string
	Keywords   []string
	Metadata   []string
	Version    string

	Inputs  []iotype.Io
	Outputs []iotype.Io

	JobControlOptions  []string
	OutputTransmission []string

	ProcessDescriptionURL string
	ProcessEndpointWPS1   string
	ExecuteEndpoint       string
	OWSContext            map[string]interface{}

	Type Type

	// Package is the CWL application/workflow description (decoded form:
	// `$`/`.` characters restored in map keys). Payload is the original
	// deployment request body, kept verbatim for audit/replay.
	Package map[string]interface{}
	Payload map[string]interface{}

	Visibility Visibility
}

// New builds a Process from a decoded CWL package, validating the
// id/package invariants and inferring Type from the package class.
func New(id string, pkg map[string]interface{}) (*Process, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidProcess)
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: package is required", ErrInvalidProcess)
	}
	p := &Process{
		ID:         id,
		Package:    pkg,
		Type:       TypeWPS,
		Visibility: VisibilityPrivate,
	}
	if class, ok := pkg["class"].(string); ok && class == "Workflow" {
		p.Type = TypeWorkflow
	}
	return p, nil
}

// TitleOrID returns the title, or the id if none was set, matching the
// teacher datatype's `self.get("title", self.id)` default.
func (p *Process) TitleOrID() string {
	if p.Title != "" {
		return p.Title
	}
	return p.ID
}

// encodingPairs lists the characters that cannot appear in a document-
// store map key and their escape sequence, matching weaver.datatype
// .Process._character_codes (fullwidth dollar sign / fullwidth full stop,
// chosen because they round-trip losslessly and never occur in CWL keys).
var encodingPairs = [][2]string{
	{"$", "＄"},
	{"." , "．"},
}

// EncodeKeys recursively replaces literal `$`/`.` in map keys with their
// escaped form, so the package can be stored as a document without the
// store's key-path separator colliding with CWL syntax (e.g. `$graph`,
// `req.class`). Mirrors weaver.datatype.Process._encode.
func EncodeKeys(v interface{}) interface{} {
	return recursiveReplace(v, 0, 1)
}

// DecodeKeys reverses EncodeKeys. Mirrors weaver.datatype.Process._decode.
func DecodeKeys(v interface{}) interface{} {
	return recursiveReplace(v, 1, 0)
}

func recursiveReplace(v interface{}, from, to int) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, sub := range val {
			newKey := k
			for _, pair := range encodingPairs {
				f, t := pair[from], pair[to]
				if strings.Contains(newKey, f) {
					newKey = strings.ReplaceAll(newKey, f, t)
				}
			}
			out[newKey] = recursiveReplace(sub, from, to)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, sub := range val {
			out[i] = recursiveReplace(sub, from, to)
		}
		return out
	default:
		return v
	}
}
