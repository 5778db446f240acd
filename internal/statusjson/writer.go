package statusjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/statusxml"
)

// Writer persists a job's status as both the JSON and XML documents plus
// its append-only log file under <wps_output_dir> (spec.md §4.8): the XML
// ExecuteResponse is written on every terminal transition and at most
// once every two seconds during progress updates; the log file only ever
// gains new lines.
type Writer struct {
	OutputDir   string
	OutputURL   string
	MinInterval time.Duration

	mu          sync.Mutex
	lastWritten map[uuid.UUID]time.Time
	logsWritten map[uuid.UUID]int
}

// NewWriter builds a Writer throttled to the spec's default 2-second
// XML-write interval.
func NewWriter(outputDir, outputURL string) *Writer {
	return &Writer{
		OutputDir:   outputDir,
		OutputURL:   outputURL,
		MinInterval: 2 * time.Second,
		lastWritten: map[uuid.UUID]time.Time{},
		logsWritten: map[uuid.UUID]int{},
	}
}

func (w *Writer) jsonPath(id uuid.UUID) string { return filepath.Join(w.OutputDir, id.String()+".json") }
func (w *Writer) xmlPath(id uuid.UUID) string  { return filepath.Join(w.OutputDir, id.String()+".xml") }
func (w *Writer) logPath(id uuid.UUID) string  { return filepath.Join(w.OutputDir, id.String()+".log") }

func (w *Writer) urlFor(name string) string {
	return strings.TrimRight(w.OutputURL, "/") + "/" + name
}

// shouldWrite reports whether enough time elapsed since the last write
// for j's id, always answering true for a terminal job (spec.md §4.8:
// "written ... on every terminal transition").
func (w *Writer) shouldWrite(j *job.Job, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job.IsTerminalStatus(j.Status) {
		w.lastWritten[j.ID] = now
		return true
	}
	last, ok := w.lastWritten[j.ID]
	if ok && now.Sub(last) < w.MinInterval {
		return false
	}
	w.lastWritten[j.ID] = now
	return true
}

// WriteStatus renders and writes both status documents for j, honoring
// the 2-second/terminal-transition throttle. started is the time j left
// StatusAccepted, or nil if it hasn't yet.
func (w *Writer) WriteStatus(j *job.Job, started *time.Time, now time.Time) error {
	if !w.shouldWrite(j, now) {
		return nil
	}

	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating wps output dir: %w", err)
	}

	doc := Build(j, started, URLs{
		Self:    w.urlFor(j.ID.String() + ".json"),
		Logs:    w.urlFor(j.ID.String() + ".log"),
		Results: w.urlFor(j.ID.String() + ".json"),
	})
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status json: %w", err)
	}
	if err := os.WriteFile(w.jsonPath(j.ID), body, 0o644); err != nil {
		return fmt.Errorf("writing status json: %w", err)
	}

	xmlBody, err := statusxml.Render(j, w.urlFor(j.ID.String()+".xml"))
	if err != nil {
		return fmt.Errorf("encoding status xml: %w", err)
	}
	if err := os.WriteFile(w.xmlPath(j.ID), xmlBody, 0o644); err != nil {
		return fmt.Errorf("writing status xml: %w", err)
	}
	return nil
}

// AppendLog appends any log lines recorded on j since the previous call
// for this job id (spec.md §4.8's auxiliary "<job_id>.log").
func (w *Writer) AppendLog(j *job.Job) error {
	w.mu.Lock()
	already := w.logsWritten[j.ID]
	w.mu.Unlock()

	if already >= len(j.Logs) {
		return nil
	}
	newLines := j.Logs[already:]

	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating wps output dir: %w", err)
	}
	f, err := os.OpenFile(w.logPath(j.ID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening job log: %w", err)
	}
	defer f.Close()

	for _, line := range newLines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("appending job log line: %w", err)
		}
	}

	w.mu.Lock()
	w.logsWritten[j.ID] = len(j.Logs)
	w.mu.Unlock()
	return nil
}
