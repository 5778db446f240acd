package api

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/logger"
	"github.com/crim-ca/weaver-ems/internal/process"
	"github.com/crim-ca/weaver-ems/internal/statusxml"
)

// handleWPS is the WPS 1.0/2.0 KVP/POST endpoint (spec.md §6 "/ows/wps"):
// a GET dispatches on the `request` query parameter (GetCapabilities,
// DescribeProcess, Execute), matching the classic WPS KVP binding; a POST
// carries the same three operations as an XML document body, matching
// the WPS XML binding the rest of this codebase already speaks (see
// internal/adapter/wps1.go, whose parsing structs this handler's
// response shapes mirror).
func (s *Server) handleWPS(w http.ResponseWriter, r *http.Request) {
	var operation string
	var body []byte
	if r.Method == http.MethodGet {
		operation = r.URL.Query().Get("request")
	} else {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			s.writeWPSError(w, http.StatusBadRequest, "NoApplicableCode", "failed to read request body")
			return
		}
		defer r.Body.Close()
		operation = sniffWPSOperation(body)
	}

	switch strings.ToLower(operation) {
	case "getcapabilities":
		s.wpsGetCapabilities(w, r)
	case "describeprocess":
		s.wpsDescribeProcess(w, r)
	case "execute":
		s.wpsExecute(w, r, body)
	default:
		s.writeWPSError(w, http.StatusBadRequest, "InvalidParameterValue", fmt.Sprintf("unsupported WPS operation %q", operation))
	}
}

// sniffWPSOperation reads the root element name of a WPS XML request
// body without fully decoding it, to dispatch a POST the same way the
// KVP `request` parameter dispatches a GET.
func sniffWPSOperation(body []byte) string {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local
		}
	}
}

type wpsCapabilities struct {
	XMLName        xml.Name            `xml:"Capabilities"`
	ProcessOfferings wpsProcessOfferings `xml:"ProcessOfferings"`
}

type wpsProcessOfferings struct {
	Processes []wpsProcessSummary `xml:"Process"`
}

type wpsProcessSummary struct {
	Identifier string `xml:"Identifier"`
	Title      string `xml:"Title"`
}

// wpsGetCapabilities lists every deployed process's identifier/title.
func (s *Server) wpsGetCapabilities(w http.ResponseWriter, r *http.Request) {
	procs, err := s.processes.FindProcesses(r.Context(), process.Filter{})
	if err != nil {
		logger.FromContext(r.Context()).Error("wps GetCapabilities failed", zap.Error(err))
		s.writeWPSError(w, http.StatusInternalServerError, "NoApplicableCode", "failed to list processes")
		return
	}
	caps := wpsCapabilities{}
	for _, p := range procs {
		caps.ProcessOfferings.Processes = append(caps.ProcessOfferings.Processes, wpsProcessSummary{
			Identifier: p.ID,
			Title:      p.TitleOrID(),
		})
	}
	writeXML(w, http.StatusOK, caps)
}

type wpsProcessDescriptions struct {
	XMLName     xml.Name            `xml:"ProcessDescriptions"`
	Descriptions []wpsProcessDetail `xml:"ProcessDescription"`
}

type wpsProcessDetail struct {
	Identifier string       `xml:"Identifier"`
	Title      string       `xml:"Title"`
	Abstract   string       `xml:"Abstract,omitempty"`
	DataInputs []wpsIODesc  `xml:"DataInputs>Input"`
	DataOutputs []wpsIODesc `xml:"ProcessOutputs>Output"`
}

type wpsIODesc struct {
	Identifier string `xml:"Identifier"`
	Title      string `xml:"Title,omitempty"`
}

// wpsDescribeProcess describes one or more processes named by the
// `identifier` query parameter (comma-separated, per the KVP binding).
func (s *Server) wpsDescribeProcess(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("identifier"), ",")
	descs := wpsProcessDescriptions{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		p, err := s.processes.FetchByID(r.Context(), id)
		if err != nil {
			s.writeWPSError(w, http.StatusNotFound, "InvalidParameterValue", fmt.Sprintf("process %q not found", id))
			return
		}
		detail := wpsProcessDetail{Identifier: p.ID, Title: p.TitleOrID(), Abstract: p.Abstract}
		for _, in := range p.Inputs {
			detail.DataInputs = append(detail.DataInputs, wpsIODesc{Identifier: in.ID, Title: in.Title})
		}
		for _, out := range p.Outputs {
			detail.DataOutputs = append(detail.DataOutputs, wpsIODesc{Identifier: out.ID, Title: out.Title})
		}
		descs.Descriptions = append(descs.Descriptions, detail)
	}
	writeXML(w, http.StatusOK, descs)
}

// wpsExecuteXML is the subset of the WPS Execute request XML body this
// handler understands: an identifier and a flat list of literal/href
// data inputs (mirrors internal/adapter/wps1.go's client-side encoding
// of the same request, in the decode direction).
type wpsExecuteXML struct {
	XMLName    xml.Name `xml:"Execute"`
	Identifier string   `xml:"Identifier"`
	DataInputs struct {
		Input []struct {
			Identifier string `xml:"Identifier"`
			Data       struct {
				LiteralData string `xml:"LiteralData"`
				Reference   struct {
					Href string `xml:"href,attr"`
				} `xml:"Reference"`
			} `xml:"Data"`
		} `xml:"Input"`
	} `xml:"DataInputs"`
}

// wpsExecute parses the minimal KVP/XML Execute request (identifier plus
// simple id=value DataInputs pairs), creates and submits a job exactly
// like handleExecuteProcess, and renders the immediate status as a WPS
// ExecuteResponse XML document. body is non-nil only for a POST request.
func (s *Server) wpsExecute(w http.ResponseWriter, r *http.Request, body []byte) {
	identifier := r.URL.Query().Get("identifier")
	var inputs []job.IOValue
	if raw := r.URL.Query().Get("DataInputs"); raw != "" {
		inputs = parseKVPDataInputs(raw)
	}
	if len(body) > 0 {
		var parsed wpsExecuteXML
		if err := xml.Unmarshal(body, &parsed); err != nil {
			s.writeWPSError(w, http.StatusBadRequest, "InvalidParameterValue", fmt.Sprintf("malformed Execute request: %v", err))
			return
		}
		identifier = parsed.Identifier
		for _, in := range parsed.DataInputs.Input {
			iv := job.IOValue{ID: in.Identifier}
			if in.Data.Reference.Href != "" {
				iv.Href = in.Data.Reference.Href
			} else {
				iv.Value = in.Data.LiteralData
			}
			inputs = append(inputs, iv)
		}
	}
	if identifier == "" {
		s.writeWPSError(w, http.StatusBadRequest, "MissingParameterValue", "identifier is required")
		return
	}

	ctx := r.Context()
	if _, err := s.processes.FetchByID(ctx, identifier); err != nil {
		s.writeWPSError(w, http.StatusNotFound, "InvalidParameterValue", fmt.Sprintf("process %q not found", identifier))
		return
	}

	j := job.New(identifier)
	j.Inputs = inputs
	wpsLog := logger.FromContext(logger.WithJobID(logger.WithProcessID(ctx, identifier), j.ID.String()))
	if err := s.jobs.SaveJob(ctx, j); err != nil {
		wpsLog.Error("wps Execute failed to save job", zap.Error(err))
		s.writeWPSError(w, http.StatusInternalServerError, "NoApplicableCode", "failed to create job")
		return
	}
	if err := s.engine.Submit(j.ID); err != nil {
		wpsLog.Error("wps Execute failed to submit job", zap.Error(err))
		s.writeWPSError(w, http.StatusServiceUnavailable, "NoApplicableCode", "failed to submit job")
		return
	}

	statusLocation := fmt.Sprintf("%s/jobs/%s", s.baseURL, j.ID)
	body, err := statusxml.Render(j, statusLocation)
	if err != nil {
		wpsLog.Error("wps Execute failed to render status", zap.Error(err))
		s.writeWPSError(w, http.StatusInternalServerError, "NoApplicableCode", "failed to render status")
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusCreated)
	w.Write(body)
}

// parseKVPDataInputs decodes the WPS KVP `DataInputs` parameter's
// semicolon-separated `id=value` pairs into job input values.
func parseKVPDataInputs(raw string) []job.IOValue {
	var out []job.IOValue
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out = append(out, job.IOValue{ID: kv[0], Value: kv[1]})
	}
	return out
}

type wpsExceptionReport struct {
	XMLName    xml.Name      `xml:"ExceptionReport"`
	Exceptions []wpsException `xml:"Exception"`
}

type wpsException struct {
	Code string `xml:"exceptionCode,attr"`
	Text string `xml:"ExceptionText"`
}

func (s *Server) writeWPSError(w http.ResponseWriter, status int, code, text string) {
	report := wpsExceptionReport{Exceptions: []wpsException{{Code: code, Text: text}}}
	writeXML(w, status, report)
}

func writeXML(w http.ResponseWriter, status int, v interface{}) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	w.Write(body)
}
