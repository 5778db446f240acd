// Package job implements the durable Job entity, its status state machine,
// and the Store interface (spec.md §4.6).
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Visibility controls whether a job (or the process/service it runs
// against) is discoverable by other users.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Exception is one structured error entry recorded against a job.
type Exception struct {
	Code    string `json:"code"`
	Locator string `json:"locator,omitempty"`
	Text    string `json:"text"`
}

// IOValue is one input or result entry: exactly one of Href or Value is
// set (Data may carry a JSON array of references).
type IOValue struct {
	ID       string      `json:"id"`
	Href     string      `json:"href,omitempty"`
	Value    interface{} `json:"value,omitempty"`
	Data     []string    `json:"data,omitempty"`
	Type     string      `json:"type,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
}

// Job is a single execution of a process (spec.md §3 "Job").
type Job struct {
	ID     uuid.UUID
	TaskID string

	Process string
	Service string
	UserID  string

	Status        Status
	Progress      int
	StatusMessage string

	Logs       []string
	Exceptions []Exception

	Inputs  []IOValue
	Results []IOValue

	Created  time.Time
	Finished *time.Time

	ExecuteAsync      bool
	IsWorkflow        bool
	Access            Visibility
	NotificationEmail string

	Request        string
	Response       string
	StatusLocation string

	Tags []string
}

// New creates a fresh, accepted job with a generated UUIDv4 id. TaskID
// defaults to the job id, matching spec.md ("equal to id unless an
// external scheduler is used").
func New(process string) *Job {
	id := uuid.New()
	return &Job{
		ID:           id,
		TaskID:       id.String(),
		Process:      process,
		Status:       StatusAccepted,
		Progress:     0,
		Created:      time.Now(),
		ExecuteAsync: true,
		Access:       VisibilityPrivate,
	}
}

// Duration returns finished-or-now minus created.
func (j *Job) Duration() time.Duration {
	end := time.Now()
	if j.Finished != nil {
		end = *j.Finished
	}
	return end.Sub(j.Created)
}

// SaveLog appends a formatted log line, suppressing an exact duplicate of
// the immediately preceding line (spec.md invariant 3 / property 8.3).
func (j *Job) SaveLog(level, message string) {
	line := fmt.Sprintf("%s [%s] %s", time.Now().UTC().Format(time.RFC3339), level, message)
	if n := len(j.Logs); n > 0 {
		prevMsg := stripTimestamp(j.Logs[n-1])
		if prevMsg == fmt.Sprintf("[%s] %s", level, message) {
			return
		}
	}
	j.Logs = append(j.Logs, line)
}

func stripTimestamp(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' {
			return line[i+1:]
		}
	}
	return line
}

// SetStatus validates and applies a status transition, setting Finished
// and clamping/advancing Progress per spec.md §4.6/§3 invariants:
//   - running -> succeeded sets Finished=now, Progress=100.
//   - running -> failed/exception/dismissed sets Finished=now, preserves
//     the last recorded progress.
func (j *Job) SetStatus(to Status, message string) error {
	if err := ValidateTransition(j.Status, to); err != nil {
		return err
	}
	j.Status = to
	if message != "" {
		j.StatusMessage = message
	}
	if IsTerminalStatus(to) {
		now := time.Now()
		j.Finished = &now
		if to == StatusSucceeded {
			j.Progress = 100
		}
	}
	return nil
}

// SetProgress advances Progress, rejecting any decrease while the job is
// not transitioning into a terminal-failure state (spec.md §3 invariant:
// "progress is non-decreasing ... except on transition to a terminal
// failure state, which may clamp to the last recorded value").
func (j *Job) SetProgress(p int) error {
	if IsTerminalStatus(j.Status) && j.Status != StatusSucceeded {
		// Terminal failure states may clamp; never raise an error for a
		// no-op or decreasing value here.
		if p > j.Progress {
			j.Progress = p
		}
		return nil
	}
	if p < j.Progress {
		return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, j.Progress, p)
	}
	if p > 100 {
		p = 100
	}
	j.Progress = p
	return nil
}

// AddException records a structured exception and, if the job is not
// already in a terminal state, advances it to StatusException.
func (j *Job) AddException(exc Exception) error {
	j.Exceptions = append(j.Exceptions, exc)
	if !IsTerminalStatus(j.Status) {
		return j.SetStatus(StatusException, exc.Text)
	}
	return nil
}

// IsFinished reports whether the job has reached a terminal state.
func (j *Job) IsFinished() bool {
	return IsTerminalStatus(j.Status)
}
