package adapter

import (
	"fmt"
	"net/http"

	"github.com/crim-ca/weaver-ems/internal/container"
	"github.com/crim-ca/weaver-ems/internal/pkgload"
)

// Mode is the engine's operating mode, which governs which adapter a
// step without an explicit provider hint falls back to (spec.md §4.7
// step 4).
type Mode string

const (
	ModeEMS  Mode = "EMS"
	ModeADES Mode = "ADES"
)

// Dependencies bundles the constructed clients a step needs regardless
// of which adapter ends up selected for it.
type Dependencies struct {
	Runner     container.Runner
	WorkDir    string
	Network    string
	PullPolicy container.PullPolicy
	HTTPClient *http.Client

	// ADESEndpoint is the resolved ADES base URL an EMS-mode engine
	// delegates to via APIProcessesAdapter.
	ADESEndpoint string
}

// SelectHooks implements spec.md §4.7 step 4's adapter choice: a
// WPS1Requirement hint always wins, an ESGF-CWTRequirement hint is
// explicitly out of scope, and otherwise the engine's own mode decides
// between delegating to a remote ADES or running locally.
func SelectHooks(pkg *pkgload.Package, mode Mode, deps Dependencies) (Hooks, error) {
	if pkg.HasRequirement(pkgload.RequirementESGF) {
		return nil, fmt.Errorf("%w: ESGF-CWTRequirement", ErrNotImplemented)
	}

	if pkg.HasRequirement(pkgload.RequirementWPS1) {
		return newWPS1Adapter(pkg, deps)
	}

	switch mode {
	case ModeEMS:
		return &APIProcessesAdapter{
			HTTPClient: deps.HTTPClient,
			Endpoint:   deps.ADESEndpoint,
			ProcessID:  processIdentifier(pkg),
		}, nil
	case ModeADES:
		return newLocalContainerAdapter(pkg, deps), nil
	default:
		return nil, fmt.Errorf("unknown engine mode %q", mode)
	}
}

func newWPS1Adapter(pkg *pkgload.Package, deps Dependencies) (Hooks, error) {
	req := requirementByClass(pkg, pkgload.RequirementWPS1)
	if req == nil {
		return nil, fmt.Errorf("%w: WPS1Requirement hint vanished during selection", ErrStepFailed)
	}
	endpoint, _ := req.Params["provider"].(string)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: WPS1Requirement missing provider endpoint", ErrStepFailed)
	}
	processID, _ := req.Params["process"].(string)
	if processID == "" {
		processID = processIdentifier(pkg)
	}
	useKVP, _ := req.Params["kvp"].(bool)

	return &WPS1Adapter{
		HTTPClient: deps.HTTPClient,
		Endpoint:   endpoint,
		ProcessID:  processID,
		UseKVP:     useKVP,
	}, nil
}

func newLocalContainerAdapter(pkg *pkgload.Package, deps Dependencies) *LocalContainerAdapter {
	inputBindings := map[string]pkgload.InputBinding{}
	for _, in := range pkg.Inputs {
		if in.InputBinding != nil {
			inputBindings[in.ID] = *in.InputBinding
		}
	}
	outputBindings := map[string]pkgload.OutputBinding{}
	for _, out := range pkg.Outputs {
		if out.OutputBinding != nil {
			outputBindings[out.ID] = *out.OutputBinding
		}
	}

	return &LocalContainerAdapter{
		Runner:         deps.Runner,
		Image:          pkg.DockerImage(),
		BaseCommand:    baseCommandTokens(pkg.BaseCommand),
		InputBindings:  inputBindings,
		OutputBindings: outputBindings,
		WorkDir:        deps.WorkDir,
		Network:        deps.Network,
		PullPolicy:     deps.PullPolicy,
	}
}

func requirementByClass(pkg *pkgload.Package, class string) *pkgload.Requirement {
	for i := range pkg.Requirements {
		if pkg.Requirements[i].Class == class {
			return &pkg.Requirements[i]
		}
	}
	for i := range pkg.Hints {
		if pkg.Hints[i].Class == class {
			return &pkg.Hints[i]
		}
	}
	return nil
}

// processIdentifier returns the DockerRequirement image name; a Package
// carries no explicit process identifier field.
func processIdentifier(pkg *pkgload.Package) string {
	return pkg.DockerImage()
}

// baseCommandTokens normalizes CWL's baseCommand, which may be a single
// string or a string array, into the token slice LocalContainerAdapter
// prepends to every invocation.
func baseCommandTokens(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		tokens := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				tokens = append(tokens, s)
			}
		}
		return tokens
	case []string:
		return v
	default:
		return nil
	}
}
