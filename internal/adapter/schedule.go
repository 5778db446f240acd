package adapter

// Schedule is the fixed progress points the Execute template publishes,
// matching spec.md §4.5 verbatim.
var Schedule = struct {
	Prepare    int
	Ready      int
	StageIn    int
	FormatIO   int
	Execute    int
	Monitor    int
	Results    int
	StageOut   int
	Cleanup    int
	Completed  int
}{
	Prepare:   2,
	Ready:     5,
	StageIn:   10,
	FormatIO:  12,
	Execute:   15,
	Monitor:   20,
	Results:   85,
	StageOut:  90,
	Cleanup:   95,
	Completed: 100,
}

// StepWindow computes the [lo, hi) progress band a step occupies within
// the enclosing job's progress range, per spec.md §9 design note: "step k
// of N occupies [CWL_START + (k-1)*span, CWL_START + k*span] where span =
// (CWL_DONE - CWL_START)/N". stepIndex is 0-based here (k-1).
func StepWindow(stepIndex, totalSteps, cwlStart, cwlDone int) (lo, hi int) {
	if totalSteps <= 0 {
		totalSteps = 1
	}
	span := (cwlDone - cwlStart) / totalSteps
	lo = cwlStart + stepIndex*span
	hi = cwlStart + (stepIndex+1)*span
	return lo, hi
}

// Remap maps a 0-100 local progress value into the [lo, hi] band of the
// enclosing step window.
func Remap(localProgress, lo, hi int) int {
	if localProgress < 0 {
		localProgress = 0
	}
	if localProgress > 100 {
		localProgress = 100
	}
	span := hi - lo
	return lo + (span*localProgress)/100
}
