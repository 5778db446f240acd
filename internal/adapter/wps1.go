package adapter

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/crim-ca/weaver-ems/internal/job"
)

// wps1PollSchedule is spec.md §4.5's fixed polling cadence in seconds;
// once exhausted, the last value repeats indefinitely.
var wps1PollSchedule = []int{2, 2, 2, 2, 2, 5, 5, 5, 5, 5, 10, 10, 10, 10, 10, 20, 20, 20, 20, 20, 30}

const wps1MaxConsecutiveFailures = 5

// WPS1Adapter drives a step against a remote WPS 1.0/2.0 process:
// dispatch builds an Execute request (KVP GET or XML POST), monitor
// polls the returned statusLocation on the fixed schedule, and results
// are extracted from the terminal status document's <ProcessOutputs>.
type WPS1Adapter struct {
	BaseHooks

	HTTPClient *http.Client
	Endpoint   string
	ProcessID  string
	Version    string
	UseKVP     bool
	// MimeTypes optionally annotates a complex input's @mimeType in the
	// KVP DataInputs encoding, keyed by input ID.
	MimeTypes map[string]string
}

func (a *WPS1Adapter) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

func (a *WPS1Adapter) version() string {
	if a.Version != "" {
		return a.Version
	}
	return "1.0.0"
}

type wps1MonitorRef struct {
	statusLocation string

	mu      sync.Mutex
	outputs *wps1ProcessOutputs
}

// wps1ExecuteResponse is the subset of the OGC WPS ExecuteResponse
// schema this adapter needs: the status element and, once terminal,
// ProcessOutputs.
type wps1ExecuteResponse struct {
	XMLName        xml.Name             `xml:"ExecuteResponse"`
	StatusLocation string               `xml:"statusLocation,attr"`
	Status         wps1Status           `xml:"Status"`
	ProcessOutputs *wps1ProcessOutputs  `xml:"ProcessOutputs"`
}

type wps1Status struct {
	ProcessAccepted  *string          `xml:"ProcessAccepted"`
	ProcessStarted   *wps1Progress    `xml:"ProcessStarted"`
	ProcessPaused    *wps1Progress    `xml:"ProcessPaused"`
	ProcessSucceeded *string          `xml:"ProcessSucceeded"`
	ProcessFailed    *wps1FailureInfo `xml:"ProcessFailed"`
}

type wps1Progress struct {
	PercentCompleted int    `xml:"percentCompleted,attr"`
	Text             string `xml:",chardata"`
}

type wps1FailureInfo struct {
	ExceptionReport wps1ExceptionReport `xml:"ExceptionReport"`
}

type wps1ExceptionReport struct {
	Exceptions []wps1Exception `xml:"Exception"`
}

type wps1Exception struct {
	Code string `xml:"exceptionCode,attr"`
	Text string `xml:"ExceptionText"`
}

func (r wps1FailureInfo) String() string {
	parts := make([]string, 0, len(r.ExceptionReport.Exceptions))
	for _, e := range r.ExceptionReport.Exceptions {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Code, e.Text))
	}
	return strings.Join(parts, "; ")
}

type wps1ProcessOutputs struct {
	Outputs []wps1Output `xml:"Output"`
}

type wps1Output struct {
	Identifier string           `xml:"Identifier"`
	Reference  *wps1Reference   `xml:"Reference"`
	Data       *wps1OutputData  `xml:"Data"`
}

type wps1Reference struct {
	Href     string `xml:"href,attr"`
	MimeType string `xml:"mimeType,attr"`
}

type wps1OutputData struct {
	LiteralData string `xml:"LiteralData"`
	ComplexData string `xml:"ComplexData"`
}

// Dispatch submits the Execute request and returns the parsed
// statusLocation as the monitor reference.
func (a *WPS1Adapter) Dispatch(ctx context.Context, dispatchedInputs, _ interface{}) (MonitorRef, error) {
	inputs, ok := dispatchedInputs.([]job.IOValue)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected dispatched-inputs type %T", ErrStepFailed, dispatchedInputs)
	}

	var req *http.Request
	var err error
	if a.UseKVP {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, a.kvpURL(inputs), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(a.xmlExecuteBody(inputs)))
		if err == nil {
			req.Header.Set("Content-Type", "application/xml")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: building execute request: %v", ErrStepFailed, err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := a.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: submitting execute request: %v", ErrStepFailed, err)
	}
	defer resp.Body.Close()

	parsed, err := decodeWPS1Response(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing execute response: %v", ErrStepFailed, err)
	}
	if parsed.StatusLocation == "" {
		return nil, fmt.Errorf("%w: execute response carries no statusLocation", ErrStepFailed)
	}

	ref := &wps1MonitorRef{statusLocation: parsed.StatusLocation}
	if parsed.ProcessOutputs != nil {
		ref.outputs = parsed.ProcessOutputs
	}
	return ref, nil
}

// kvpURL renders a WPS 1.0 KVP Execute GET request: complex inputs are
// passed by reference (their href), literal inputs by value.
func (a *WPS1Adapter) kvpURL(inputs []job.IOValue) string {
	dataInputs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		value := in.Href
		if value == "" {
			value = fmt.Sprintf("%v", in.Value)
		}
		token := fmt.Sprintf("%s=%s", in.ID, value)
		if mt, ok := a.MimeTypes[in.ID]; ok && mt != "" {
			token += "@mimeType=" + mt
		}
		dataInputs = append(dataInputs, token)
	}

	q := url.Values{}
	q.Set("service", "WPS")
	q.Set("request", "Execute")
	q.Set("version", a.version())
	q.Set("identifier", a.ProcessID)
	q.Set("DataInputs", strings.Join(dataInputs, ";"))

	base := a.Endpoint
	if strings.Contains(base, "?") {
		return base + "&" + q.Encode()
	}
	return base + "?" + q.Encode()
}

// xmlExecuteBody renders a minimal WPS 1.0 Execute POST envelope.
func (a *WPS1Adapter) xmlExecuteBody(inputs []job.IOValue) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintf(&b, `<Execute service="WPS" version="%s" xmlns="http://www.opengis.net/wps/1.0.0">`, a.version())
	fmt.Fprintf(&b, `<Identifier>%s</Identifier>`, xmlEscape(a.ProcessID))
	b.WriteString(`<DataInputs>`)
	for _, in := range inputs {
		fmt.Fprintf(&b, `<Input><Identifier>%s</Identifier>`, xmlEscape(in.ID))
		if in.Href != "" {
			fmt.Fprintf(&b, `<Reference href="%s"/>`, xmlEscape(in.Href))
		} else {
			fmt.Fprintf(&b, `<Data><LiteralData>%s</LiteralData></Data>`, xmlEscape(fmt.Sprintf("%v", in.Value)))
		}
		b.WriteString(`</Input>`)
	}
	b.WriteString(`</DataInputs>`)
	b.WriteString(`<ResponseForm><ResponseDocument storeExecuteResponse="true" status="true"/></ResponseForm>`)
	b.WriteString(`</Execute>`)
	return b.Bytes()
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func decodeWPS1Response(r io.Reader) (*wps1ExecuteResponse, error) {
	var parsed wps1ExecuteResponse
	if err := xml.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Monitor polls statusLocation on the fixed WPS1 schedule, tolerating up
// to wps1MaxConsecutiveFailures consecutive transport/parse errors
// before failing the step.
func (a *WPS1Adapter) Monitor(ctx context.Context, ref MonitorRef, report ProgressFunc) (bool, error) {
	m, ok := ref.(*wps1MonitorRef)
	if !ok {
		return false, fmt.Errorf("%w: unexpected monitor ref type %T", ErrStepFailed, ref)
	}

	consecutiveFailures := 0
	for attempt := 0; ; attempt++ {
		delay := wps1PollSchedule[len(wps1PollSchedule)-1]
		if attempt < len(wps1PollSchedule) {
			delay = wps1PollSchedule[attempt]
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(delay) * time.Second):
		}

		parsed, err := a.pollOnce(ctx, m.statusLocation)
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures > wps1MaxConsecutiveFailures {
				return false, fmt.Errorf("%w: %v", ErrTransientFailureLimit, err)
			}
			continue
		}
		consecutiveFailures = 0

		switch {
		case parsed.Status.ProcessAccepted != nil:
			report(0, "accepted")
		case parsed.Status.ProcessStarted != nil:
			report(parsed.Status.ProcessStarted.PercentCompleted, parsed.Status.ProcessStarted.Text)
		case parsed.Status.ProcessPaused != nil:
			report(parsed.Status.ProcessPaused.PercentCompleted, parsed.Status.ProcessPaused.Text)
		case parsed.Status.ProcessSucceeded != nil:
			report(100, "succeeded")
			m.mu.Lock()
			m.outputs = parsed.ProcessOutputs
			m.mu.Unlock()
			return true, nil
		case parsed.Status.ProcessFailed != nil:
			return false, fmt.Errorf("%w: %s", ErrStepFailed, parsed.Status.ProcessFailed.String())
		}
	}
}

func (a *WPS1Adapter) pollOnce(ctx context.Context, statusLocation string) (*wps1ExecuteResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusLocation, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	return decodeWPS1Response(resp.Body)
}

// GetResults extracts <ProcessOutputs> into job.IOValue entries. When an
// output carries both a Reference and inline Data, the reference wins
// and the inline data is ignored (spec.md's pinned resolution of an
// otherwise ambiguous source behavior).
func (a *WPS1Adapter) GetResults(_ context.Context, ref MonitorRef) ([]job.IOValue, error) {
	m, ok := ref.(*wps1MonitorRef)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected monitor ref type %T", ErrStepFailed, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outputs == nil {
		return nil, nil
	}

	results := make([]job.IOValue, 0, len(m.outputs.Outputs))
	for _, out := range m.outputs.Outputs {
		v := job.IOValue{ID: out.Identifier}
		switch {
		case out.Reference != nil:
			v.Href = out.Reference.Href
			v.MimeType = out.Reference.MimeType
		case out.Data != nil && out.Data.ComplexData != "":
			v.Value = out.Data.ComplexData
		case out.Data != nil:
			v.Value = out.Data.LiteralData
		}
		results = append(results, v)
	}
	return results, nil
}
