package pkgload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commandLineToolYAML = `
class: CommandLineTool
baseCommand: cat
requirements:
  - class: DockerRequirement
    dockerPull: debian:stretch-slim
inputs:
  - id: file
    type: File
    inputBinding:
      position: 1
outputs:
  - id: output
    type: File
    outputBinding:
      glob: stdout.log
`

func TestParseBytes_CommandLineTool(t *testing.T) {
	pkg, err := ParseBytes([]byte(commandLineToolYAML))
	require.NoError(t, err)
	assert.False(t, pkg.IsWorkflow())
	assert.Equal(t, "debian:stretch-slim", pkg.DockerImage())
	require.Len(t, pkg.Inputs, 1)
	assert.Equal(t, "file", pkg.Inputs[0].ID)
}

func TestParseBytes_RejectsUnrecognizedClass(t *testing.T) {
	_, err := ParseBytes([]byte("class: BogusThing\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackageRegistration)
}

func TestParseBytes_AcceptsJSON(t *testing.T) {
	pkg, err := ParseBytes([]byte(`{"class": "CommandLineTool", "baseCommand": "echo"}`))
	require.NoError(t, err)
	assert.Equal(t, ClassCommandLineTool, pkg.Class)
}

func TestValidateExtension(t *testing.T) {
	require.NoError(t, ValidateExtension("https://example.org/proc.cwl"))
	require.NoError(t, ValidateExtension("local.yaml"))
	require.NoError(t, ValidateExtension("inline-mapping"))
	err := ValidateExtension("https://example.org/proc.exe")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackageRegistration)
}

type fakeFetcher struct {
	responses map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	body, ok := f.responses[u]
	if !ok {
		return nil, ErrPackageNotFound
	}
	return body, nil
}

const workflowYAML = `
class: Workflow
steps:
  s1:
    run: https://ades.example.org/processes/p
    in:
      x: infile
    out: [out1]
  s2:
    run: https://ades.example.org/processes/q
    in:
      x: s1/out1
    out: [out2]
`

func TestLoader_ResolvesStepsAndBuildsPlan(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://ades.example.org/processes/p/package": []byte(`{"class":"CommandLineTool","baseCommand":"p"}`),
		"https://ades.example.org/processes/q/package": []byte(`{"class":"CommandLineTool","baseCommand":"q"}`),
	}}
	loader := &Loader{Fetcher: fetcher}

	root, resolved, err := loader.Load(context.Background(), []byte(workflowYAML), "workflow.yaml")
	require.NoError(t, err)
	require.True(t, root.IsWorkflow())
	require.Len(t, resolved, 2)

	plan, err := BuildPlan(root, resolved)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "s1", plan.Steps[0].Name)
	assert.Equal(t, "s2", plan.Steps[1].Name)

	var crossStepEdge *Edge
	for i := range plan.Edges {
		if plan.Edges[i].FromStep >= 0 {
			crossStepEdge = &plan.Edges[i]
		}
	}
	require.NotNil(t, crossStepEdge)
	assert.Equal(t, StepIx(0), crossStepEdge.FromStep)
	assert.Equal(t, "out1", crossStepEdge.FromName)
	assert.Equal(t, StepIx(1), crossStepEdge.ToStep)
}

func TestLoader_DetectsCycle(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://ades.example.org/processes/a/package": []byte(`{"class":"Workflow","steps":{"s1":{"run":"https://ades.example.org/processes/a","in":{}}}}`),
	}}
	loader := &Loader{Fetcher: fetcher}

	root := `
class: Workflow
steps:
  s1:
    run: https://ades.example.org/processes/a
    in: {}
`
	_, _, err := loader.Load(context.Background(), []byte(root), "workflow.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackageRegistration)
}

func TestBuildPlan_SingleSyntheticStepForApplication(t *testing.T) {
	pkg, err := ParseBytes([]byte(commandLineToolYAML))
	require.NoError(t, err)
	plan, err := BuildPlan(pkg, nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, syntheticStepName, plan.Steps[0].Name)
}

func TestTopoSort_RejectsCycleWithinSingleWorkflow(t *testing.T) {
	root := &Package{
		Class: ClassWorkflow,
		Steps: map[string]StepDescription{
			"a": {Run: "x.cwl", In: map[string]string{"in": "b/out"}},
			"b": {Run: "y.cwl", In: map[string]string{"in": "a/out"}},
		},
	}
	_, err := topoSort(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackageRegistration)
}
