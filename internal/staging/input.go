package staging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// InputEntry is one job input reference, matching spec.md §4.4's
// `{id, href|value}` shape.
type InputEntry struct {
	ID    string
	Href  string
	Value interface{}
}

// StagedInput is an InputEntry resolved to something the container
// runtime can consume directly: either a local path, or the literal
// value passed through unchanged.
type StagedInput struct {
	ID    string
	Path  string
	Value interface{}
	IsRef bool
}

// Stager performs input fetch and output publication (spec.md §4.4).
type Stager struct {
	WorkDir           string
	OutputDir         string
	OutputURL         string
	OpensearchScheme  string
	HTTPClient        *http.Client
	MaxFetchAttempts  uint64
}

// NewStager builds a Stager with sane HTTP defaults.
func NewStager(workDir, outputDir, outputURL, opensearchScheme string) *Stager {
	return &Stager{
		WorkDir:          workDir,
		OutputDir:        outputDir,
		OutputURL:        outputURL,
		OpensearchScheme: opensearchScheme,
		HTTPClient:       &http.Client{Timeout: 0},
		MaxFetchAttempts: 5,
	}
}

// StageInputs resolves each entry into a StagedInput rooted under
// <workdir>/inputs/<id>/<basename>, per spec.md §4.4.
func (s *Stager) StageInputs(ctx context.Context, jobWorkdir string, entries []InputEntry) ([]StagedInput, error) {
	staged := make([]StagedInput, 0, len(entries))
	for _, e := range entries {
		if e.Href == "" {
			staged = append(staged, StagedInput{ID: e.ID, Value: e.Value})
			continue
		}
		href := e.Href
		u, err := url.Parse(href)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedScheme, href, err)
		}
		if s.OpensearchScheme != "" && u.Scheme == s.OpensearchScheme {
			u.Scheme = "file"
			href = u.String()
			u.Scheme = "file"
		}

		destDir := filepath.Join(jobWorkdir, "inputs", e.ID)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating input dir for %s: %w", e.ID, err)
		}
		basename := path.Base(u.Path)
		if basename == "" || basename == "." || basename == "/" {
			basename = e.ID
		}
		destPath := filepath.Join(destDir, basename)

		switch u.Scheme {
		case "http", "https":
			if err := s.fetchHTTP(ctx, href, destPath); err != nil {
				return nil, err
			}
		case "file":
			if err := s.linkOrCopyFile(u.Path, destPath); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
		}
		staged = append(staged, StagedInput{ID: e.ID, Path: destPath, IsRef: true})
	}
	return staged, nil
}

// fetchHTTP downloads href to destPath with bounded retry, resuming via a
// Range request when destPath already holds a partial download and the
// server advertised byte-range support on a prior attempt (spec.md §4.4:
// "support resume on HTTP 206 if the server advertises ranges").
func (s *Stager) fetchHTTP(ctx context.Context, href, destPath string) error {
	acceptsRanges := false
	op := func() error {
		var offset int64
		if fi, err := os.Stat(destPath); err == nil && acceptsRanges {
			offset = fi.Size()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: building request: %v", ErrFetchFailed, err))
		}
		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}

		resp, err := s.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		defer resp.Body.Close()
		if resp.Header.Get("Accept-Ranges") == "bytes" {
			acceptsRanges = true
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return writeFull(destPath, resp.Body)
		case http.StatusPartialContent:
			return appendTo(destPath, resp.Body)
		case http.StatusNotFound, http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: %s: HTTP %d", ErrFetchFailed, href, resp.StatusCode))
		default:
			if resp.StatusCode >= 500 {
				return fmt.Errorf("%w: %s: HTTP %d", ErrFetchFailed, href, resp.StatusCode)
			}
			return backoff.Permanent(fmt.Errorf("%w: %s: HTTP %d", ErrFetchFailed, href, resp.StatusCode))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, backoff.WithMaxRetries(bo, s.MaxFetchAttempts))
}

func writeFull(destPath string, r io.Reader) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrFetchFailed, destPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrFetchFailed, destPath, err)
	}
	return nil
}

func appendTo(destPath string, r io.Reader) error {
	f, err := os.OpenFile(destPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: reopening %s for resume: %v", ErrFetchFailed, destPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("%w: resuming %s: %v", ErrFetchFailed, destPath, err)
	}
	return nil
}

// linkOrCopyFile tries a hard link, then a symlink, and copies the file
// only when neither link can be made (spec.md §4.4: "hard-link, symlink,
// or copy; prefer link").
func (s *Stager) linkOrCopyFile(srcPath, destPath string) error {
	srcPath = strings.TrimPrefix(srcPath, "/")
	if !strings.HasPrefix(srcPath, "/") {
		srcPath = "/" + srcPath
	}
	if err := os.Link(srcPath, destPath); err == nil {
		return nil
	}
	if err := os.Symlink(srcPath, destPath); err == nil {
		return nil
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrFetchFailed, srcPath, err)
	}
	defer src.Close()
	return writeFull(destPath, src)
}
