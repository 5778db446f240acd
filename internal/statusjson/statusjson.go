// Package statusjson renders a job.Job as an OGC API — Processes status
// document (spec.md §4.8 C8): {jobID, status, message, progress, created,
// started?, finished?, links}.
package statusjson

import (
	"time"

	"github.com/crim-ca/weaver-ems/internal/job"
)

// externalStatus maps a job.Status onto the OGC API — Processes status
// vocabulary: the engine's internal "exception" state is reported
// externally as "failed" with populated exceptions (spec.md §4.8: "the
// job document carries status=failed ... the XML status mirrors this as
// ProcessFailed").
func externalStatus(s job.Status) string {
	switch s {
	case job.StatusSucceeded:
		return "successful"
	case job.StatusException:
		return "failed"
	default:
		return string(s)
	}
}

// Link is one entry of a status document's links array.
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
}

// Document is the OGC API — Processes job status representation.
type Document struct {
	JobID    string     `json:"jobID"`
	Status   string     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Progress int        `json:"progress"`
	Created  time.Time  `json:"created"`
	Started  *time.Time `json:"started,omitempty"`
	Finished *time.Time `json:"finished,omitempty"`
	Links    []Link     `json:"links"`
}

// URLs bundles the self/logs/results-or-exceptions endpoints a Document's
// links array references.
type URLs struct {
	Self    string
	Logs    string
	Results string
}

// Build renders j as a status Document. started is nil until the job
// leaves StatusAccepted; this package has no opinion on how the caller
// tracks that transition, so the caller supplies it directly.
func Build(j *job.Job, started *time.Time, urls URLs) Document {
	doc := Document{
		JobID:    j.ID.String(),
		Status:   externalStatus(j.Status),
		Message:  j.StatusMessage,
		Progress: j.Progress,
		Created:  j.Created,
		Started:  started,
		Finished: j.Finished,
		Links: []Link{
			{Href: urls.Self, Rel: "self", Type: "application/json"},
			{Href: urls.Logs, Rel: "logs", Type: "text/plain"},
		},
	}

	if job.IsTerminalStatus(j.Status) && j.Status != job.StatusSucceeded {
		doc.Links = append(doc.Links, Link{Href: urls.Results, Rel: "exceptions", Type: "application/json"})
	} else {
		doc.Links = append(doc.Links, Link{Href: urls.Results, Rel: "results", Type: "application/json"})
	}

	return doc
}
