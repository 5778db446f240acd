// Package statusxml renders a job.Job as a WPS 1.0 ExecuteResponse
// status document (spec.md §4.8 C8), mirroring the XML shapes
// internal/adapter's WPS1Adapter already parses when polling a remote
// provider, but in the writer direction.
package statusxml

import (
	"encoding/xml"
	"fmt"

	"github.com/crim-ca/weaver-ems/internal/job"
)

// executeResponse is the root WPS ExecuteResponse element this package
// writes. Field shapes mirror adapter.wps1ExecuteResponse/wps1Status so a
// legacy WPS-1 client sees the same structure whether CRIM-EMS is itself
// polling a remote ADES or being polled as one.
type executeResponse struct {
	XMLName        xml.Name `xml:"ExecuteResponse"`
	Xmlns          string   `xml:"xmlns,attr"`
	StatusLocation string   `xml:"statusLocation,attr,omitempty"`
	Status         status   `xml:"Status"`
	ProcessOutputs *outputs `xml:"ProcessOutputs,omitempty"`
}

type status struct {
	ProcessAccepted  *string        `xml:"ProcessAccepted,omitempty"`
	ProcessStarted   *startedStatus `xml:"ProcessStarted,omitempty"`
	ProcessSucceeded *string        `xml:"ProcessSucceeded,omitempty"`
	ProcessFailed    *failedStatus  `xml:"ProcessFailed,omitempty"`
}

type startedStatus struct {
	PercentCompleted int    `xml:"percentCompleted,attr"`
	Text             string `xml:",chardata"`
}

type failedStatus struct {
	ExceptionReport exceptionReport `xml:"ExceptionReport"`
}

type exceptionReport struct {
	Exceptions []exceptionEntry `xml:"Exception"`
}

type exceptionEntry struct {
	Code string `xml:"exceptionCode,attr"`
	Text string `xml:"ExceptionText"`
}

type outputs struct {
	Output []output `xml:"Output"`
}

type output struct {
	Identifier string      `xml:"Identifier"`
	Reference  *reference  `xml:"Reference,omitempty"`
	Data       *outputData `xml:"Data,omitempty"`
}

type reference struct {
	Href     string `xml:"href,attr"`
	MimeType string `xml:"mimeType,attr,omitempty"`
}

type outputData struct {
	LiteralData string `xml:"LiteralData"`
}

const wpsNamespace = "http://www.opengis.net/wps/1.0.0"

// Render builds the ExecuteResponse XML bytes for j's current state.
// statusLocation is the externally-reachable URL for this document
// (<wps_output_url>/<job_id>.xml per spec.md §4.8).
func Render(j *job.Job, statusLocation string) ([]byte, error) {
	resp := executeResponse{
		Xmlns:          wpsNamespace,
		StatusLocation: statusLocation,
		Status:         buildStatus(j),
	}
	if j.Status == job.StatusSucceeded && len(j.Results) > 0 {
		resp.ProcessOutputs = buildOutputs(j.Results)
	}

	body, err := xml.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func buildStatus(j *job.Job) status {
	switch j.Status {
	case job.StatusAccepted:
		msg := j.StatusMessage
		return status{ProcessAccepted: &msg}
	case job.StatusRunning:
		msg := j.StatusMessage
		return status{ProcessStarted: &startedStatus{PercentCompleted: j.Progress, Text: msg}}
	case job.StatusSucceeded:
		msg := j.StatusMessage
		return status{ProcessSucceeded: &msg}
	case job.StatusFailed, job.StatusException:
		return status{ProcessFailed: &failedStatus{ExceptionReport: buildExceptionReport(j.Exceptions)}}
	case job.StatusDismissed:
		msg := "dismissed"
		if j.StatusMessage != "" {
			msg = j.StatusMessage
		}
		// WPS 1.0 has no native "dismissed" state; report it as a failure
		// with an explanatory exception, matching spec.md's "remote cannot
		// be stopped" logging convention for legacy-incompatible states.
		return status{ProcessFailed: &failedStatus{ExceptionReport: exceptionReport{
			Exceptions: []exceptionEntry{{Code: "NoApplicableCode", Text: msg}},
		}}}
	default:
		msg := j.StatusMessage
		return status{ProcessAccepted: &msg}
	}
}

func buildExceptionReport(exceptions []job.Exception) exceptionReport {
	report := exceptionReport{Exceptions: make([]exceptionEntry, 0, len(exceptions))}
	for _, e := range exceptions {
		code := e.Code
		if code == "" {
			code = "NoApplicableCode"
		}
		report.Exceptions = append(report.Exceptions, exceptionEntry{Code: code, Text: e.Text})
	}
	if len(report.Exceptions) == 0 {
		report.Exceptions = append(report.Exceptions, exceptionEntry{Code: "NoApplicableCode", Text: "job failed"})
	}
	return report
}

func buildOutputs(results []job.IOValue) *outputs {
	out := &outputs{Output: make([]output, 0, len(results))}
	for _, r := range results {
		o := output{Identifier: r.ID}
		switch {
		case r.Href != "":
			o.Reference = &reference{Href: r.Href, MimeType: r.MimeType}
		case r.Value != nil:
			o.Data = &outputData{LiteralData: stringifyValue(r.Value)}
		default:
			continue
		}
		out.Output = append(out.Output, o)
	}
	return out
}

func stringifyValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
