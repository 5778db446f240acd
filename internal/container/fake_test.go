package container

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSpec_ValidateRequiresImage(t *testing.T) {
	err := RunSpec{}.Validate()
	assert.True(t, errors.Is(err, ErrImageRequired))
}

func TestResult_SucceededOnlyOnZeroExit(t *testing.T) {
	assert.True(t, (&Result{ExitCode: 0}).Succeeded())
	assert.False(t, (&Result{ExitCode: 1}).Succeeded())
	assert.False(t, (*Result)(nil).Succeeded())
}

func TestFake_RunRecordsCallsAndReturnsDefaultResult(t *testing.T) {
	f := NewFake()
	spec := RunSpec{Image: "debian:stretch-slim", Command: []string{"cat", "input.txt"}}

	res, err := f.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	require.Len(t, f.Calls, 1)
	assert.Equal(t, spec.Image, f.Calls[0].Image)
}

func TestFake_RunReturnsPerImageScriptedResult(t *testing.T) {
	f := NewFake()
	f.Results["broken:latest"] = &Result{ExitCode: 1, Stderr: "boom"}

	res, err := f.Run(context.Background(), RunSpec{Image: "broken:latest"})
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, "boom", res.Stderr)
}

func TestFake_RunReturnsScriptedError(t *testing.T) {
	f := NewFake()
	f.Err = errors.New("daemon unreachable")

	_, err := f.Run(context.Background(), RunSpec{Image: "debian:stretch-slim"})
	assert.Error(t, err)
}

func TestFake_RunRejectsEmptyImage(t *testing.T) {
	f := NewFake()
	_, err := f.Run(context.Background(), RunSpec{})
	assert.True(t, errors.Is(err, ErrImageRequired))
	assert.Empty(t, f.Calls, "an invalid spec must not be recorded as a call")
}
