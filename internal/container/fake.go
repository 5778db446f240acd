package container

import (
	"context"
	"sync"
)

// Fake is an in-memory Runner for tests, grounded on the teacher's
// compute/providers/mock.Provider pattern (scripted responses keyed by
// input, no real container engine involved).
type Fake struct {
	mu    sync.Mutex
	Calls []RunSpec

	// Results maps an image name to the Result that Run should return for
	// it. DefaultResult is used when no per-image entry matches.
	Results       map[string]*Result
	DefaultResult *Result
	Err           error
}

// NewFake builds a Fake that returns a zero-exit-code success by default.
func NewFake() *Fake {
	return &Fake{
		Results:       map[string]*Result{},
		DefaultResult: &Result{ExitCode: 0},
	}
}

// Run records the call and returns the scripted Result/error.
func (f *Fake) Run(_ context.Context, spec RunSpec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, spec)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if res, ok := f.Results[spec.Image]; ok {
		return res, nil
	}
	return f.DefaultResult, nil
}
