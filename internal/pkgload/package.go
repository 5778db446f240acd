// Package pkgload parses package descriptions (CWL-like
// CommandLineTool/Workflow documents), classifies them, recursively
// resolves workflow step references, and produces an executable plan.
package pkgload

import "github.com/crim-ca/weaver-ems/internal/iotype"

// Class values recognized in a package description's `class` field.
const (
	ClassCommandLineTool = "CommandLineTool"
	ClassWorkflow        = "Workflow"
)

// Requirement hint names the engine inspects when selecting an adapter.
const (
	RequirementDocker = "DockerRequirement"
	RequirementWPS1   = "WPS1Requirement"
	RequirementESGF   = "ESGF-CWTRequirement"
)

// Requirement is one entry of a package's `requirements`/`hints` list.
type Requirement struct {
	Class      string                 `yaml:"class" json:"class"`
	DockerPull string                 `yaml:"dockerPull,omitempty" json:"dockerPull,omitempty"`
	Params     map[string]interface{} `yaml:",inline" json:"-"`
}

// InputBinding controls how a CommandLineTool input is rendered on the
// container's command line.
type InputBinding struct {
	Position int    `yaml:"position,omitempty" json:"position,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// OutputBinding controls how a CommandLineTool output is discovered after
// the container exits.
type OutputBinding struct {
	Glob string `yaml:"glob,omitempty" json:"glob,omitempty"`
}

// IOEntry is one raw input/output entry as it appears in a package
// description, prior to classification into iotype.PackageIO.
type IOEntry struct {
	ID            string                 `yaml:"id" json:"id"`
	Type          interface{}            `yaml:"type" json:"type"`
	Label         string                 `yaml:"label,omitempty" json:"label,omitempty"`
	Doc           string                 `yaml:"doc,omitempty" json:"doc,omitempty"`
	Default       interface{}            `yaml:"default,omitempty" json:"default,omitempty"`
	Format        interface{}            `yaml:"format,omitempty" json:"format,omitempty"`
	Symbols       []string               `yaml:"symbols,omitempty" json:"symbols,omitempty"`
	InputBinding  *InputBinding          `yaml:"inputBinding,omitempty" json:"inputBinding,omitempty"`
	OutputBinding *OutputBinding         `yaml:"outputBinding,omitempty" json:"outputBinding,omitempty"`
	Extra         map[string]interface{} `yaml:",inline" json:"-"`
}

// ToPackageIO classifies the raw Type field into an iotype.PackageIO.
func (e IOEntry) ToPackageIO() iotype.PackageIO {
	p := iotype.PackageIO{
		ID:      e.ID,
		Label:   e.Label,
		Doc:     e.Doc,
		Default: e.Default,
		Symbols: e.Symbols,
	}

	switch t := e.Type.(type) {
	case string:
		if len(t) > 2 && t[len(t)-2:] == "[]" {
			p.IsArray = true
			p.Type = iotype.TypeArray
			p.ItemsType = t[:len(t)-2]
		} else {
			p.Type = t
		}
	case map[string]interface{}:
		if typ, ok := t["type"].(string); ok {
			p.Type = typ
		}
		if typ, ok := t["type"].(string); ok && typ == iotype.TypeArray {
			p.IsArray = true
			if items, ok := t["items"].(string); ok {
				p.ItemsType = items
			}
		}
		if typ, ok := t["type"].(string); ok && typ == iotype.TypeEnum {
			p.Type = iotype.TypeEnum
			if syms, ok := t["symbols"].([]interface{}); ok {
				for _, s := range syms {
					if str, ok := s.(string); ok {
						p.Symbols = append(p.Symbols, str)
					}
				}
			}
		}
	}

	if len(p.Symbols) > 0 {
		p.Type = iotype.TypeEnum
	}

	switch f := e.Format.(type) {
	case string:
		p.Formats = []iotype.Format{{MimeType: f}}
	case []interface{}:
		for _, v := range f {
			if str, ok := v.(string); ok {
				p.Formats = append(p.Formats, iotype.Format{MimeType: str})
			}
		}
	}

	return p
}

// StepDescription is one workflow step: a reference to another package
// (`run`), input source bindings, and declared outputs.
type StepDescription struct {
	Run string              `yaml:"run" json:"run"`
	In  map[string]string   `yaml:"in" json:"in"`
	Out []string            `yaml:"out" json:"out"`
}

// Package is a parsed package description.
type Package struct {
	Class        string                     `yaml:"class" json:"class"`
	BaseCommand  interface{}                `yaml:"baseCommand,omitempty" json:"baseCommand,omitempty"`
	Requirements []Requirement              `yaml:"requirements,omitempty" json:"requirements,omitempty"`
	Hints        []Requirement              `yaml:"hints,omitempty" json:"hints,omitempty"`
	Inputs       []IOEntry                  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs      []IOEntry                  `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Steps        map[string]StepDescription `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// IsWorkflow reports whether this package is a Workflow (vs a single
// CommandLineTool application).
func (p *Package) IsWorkflow() bool {
	return p.Class == ClassWorkflow
}

// DockerImage returns the DockerRequirement's dockerPull image reference,
// or "" if none is declared.
func (p *Package) DockerImage() string {
	for _, r := range append(append([]Requirement{}, p.Requirements...), p.Hints...) {
		if r.Class == RequirementDocker && r.DockerPull != "" {
			return r.DockerPull
		}
	}
	return ""
}

// HasRequirement reports whether the given requirement/hint class name is
// present among requirements or hints.
func (p *Package) HasRequirement(class string) bool {
	for _, r := range p.Requirements {
		if r.Class == class {
			return true
		}
	}
	for _, r := range p.Hints {
		if r.Class == class {
			return true
		}
	}
	return false
}
