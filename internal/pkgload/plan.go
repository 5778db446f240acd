package pkgload

import "fmt"

// StepIx indexes a step within an ExecutionPlan.
type StepIx int

// Edge connects an output of one step to an input of another
// (source_step, source_output) -> (dest_step, dest_input), per spec.md §9's
// design note: `edges: Vec<(StepIx, OutputIx) -> (StepIx, InputIx)>`.
type Edge struct {
	FromStep StepIx
	FromName string // output id on the source step ("" for a workflow-level input)
	ToStep   StepIx
	ToName   string // input id on the destination step
}

// Step is one node of the execution plan.
type Step struct {
	Name    string
	Package *Package
}

// ExecutionPlan is the topologically-ordered DAG produced by the loader: a
// single synthetic step for a CommandLineTool application, or the ordered
// steps of a Workflow with their inter-step edges.
type ExecutionPlan struct {
	Root  *Package
	Steps []Step
	Edges []Edge
}

const syntheticStepName = "__root__"

// BuildPlan produces an ExecutionPlan from a root package and its resolved
// step map. For an application, the plan has one synthetic step. For a
// workflow, steps are topologically sorted by their `in` source
// dependencies; a cycle (which Load's resolveSteps only detects across
// distinct package fetches, not same-level step wiring) is rejected here
// too.
func BuildPlan(root *Package, resolved map[string]*Package) (*ExecutionPlan, error) {
	if !root.IsWorkflow() {
		return &ExecutionPlan{
			Root:  root,
			Steps: []Step{{Name: syntheticStepName, Package: root}},
		}, nil
	}

	order, err := topoSort(root)
	if err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{Root: root}
	indexOf := map[string]StepIx{}
	for _, name := range order {
		indexOf[name] = StepIx(len(plan.Steps))
		plan.Steps = append(plan.Steps, Step{Name: name, Package: resolved[name]})
	}

	for _, name := range order {
		step := root.Steps[name]
		toIx := indexOf[name]
		for inputID, source := range step.In {
			fromStep, fromOutput := splitSource(source)
			edge := Edge{ToStep: toIx, ToName: inputID, FromName: fromOutput}
			if fromStep == "" {
				edge.FromStep = -1 // workflow-level input, not another step
			} else {
				fromIx, ok := indexOf[fromStep]
				if !ok {
					return nil, fmt.Errorf("%w: step %q references unknown source step %q", ErrPackageRegistration, name, fromStep)
				}
				edge.FromStep = fromIx
			}
			plan.Edges = append(plan.Edges, edge)
		}
	}

	return plan, nil
}

// splitSource parses a workflow step's `in` source reference of the form
// "<step>/<output>" into its components; a bare "<input>" (no slash) is a
// workflow-level input reference and returns ("", input).
func splitSource(source string) (step string, output string) {
	for i := 0; i < len(source); i++ {
		if source[i] == '/' {
			return source[:i], source[i+1:]
		}
	}
	return "", source
}

// topoSort orders a workflow's steps so that every step's source steps
// precede it. Cycle detection via explicit DFS over an in-flight set.
func topoSort(root *Package) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: cycle detected at step %q", ErrPackageRegistration, name)
		}
		color[name] = gray
		step, ok := root.Steps[name]
		if !ok {
			return fmt.Errorf("%w: unknown step %q", ErrPackageRegistration, name)
		}
		for _, source := range step.In {
			fromStep, _ := splitSource(source)
			if fromStep == "" {
				continue
			}
			if err := visit(fromStep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	// Deterministic order: iterate step names ascending so plan output is
	// stable across runs with identical input.
	names := make([]string, 0, len(root.Steps))
	for name := range root.Steps {
		names = append(names, name)
	}
	sortStrings(names)

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
