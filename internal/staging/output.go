package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var outputContextPattern = regexp.MustCompile(`^([A-Za-z0-9_-]+/?)+$`)

// ValidateOutputContext checks an X-WPS-Output-Context header value
// against spec.md §4.4's sub-directory-tree pattern. An empty context is
// always valid (it means "use the configured default").
func ValidateOutputContext(context string) error {
	if context == "" {
		return nil
	}
	if !outputContextPattern.MatchString(context) {
		return fmt.Errorf("%w: %q", ErrInvalidOutputContext, context)
	}
	return nil
}

// PublishedOutput is a staged output file plus its public href.
type PublishedOutput struct {
	ID       string
	Filename string
	Path     string
	Href     string
}

// outputDir computes <wps_output_dir>/<context>/<job_id> per spec.md
// §4.4's "Sub-context" rule, falling back to the Stager's default context
// when ctxOverride is empty.
func (s *Stager) outputDir(ctxOverride, defaultContext, jobID string) string {
	ctx := defaultContext
	if ctxOverride != "" {
		ctx = ctxOverride
	}
	if ctx == "" {
		return filepath.Join(s.OutputDir, jobID)
	}
	return filepath.Join(s.OutputDir, ctx, jobID)
}

// outputURLPrefix computes the public URL prefix matching outputDir.
func (s *Stager) outputURLPrefix(ctxOverride, defaultContext, jobID string) string {
	ctx := defaultContext
	if ctxOverride != "" {
		ctx = ctxOverride
	}
	base := strings.TrimRight(s.OutputURL, "/")
	if ctx == "" {
		return base + "/" + jobID
	}
	return base + "/" + strings.Trim(ctx, "/") + "/" + jobID
}

// PublishOutputs copies each produced file into
// <wps_output_dir>/<context>/<job_id>/<output_id>/<filename> and returns
// the public href for each (spec.md §4.4 "Output staging"). ctxOverride
// is the request's X-WPS-Output-Context (already validated), or "".
func (s *Stager) PublishOutputs(ctx context.Context, jobID, ctxOverride, defaultContext string, outputs map[string]string) ([]PublishedOutput, error) {
	if err := ValidateOutputContext(ctxOverride); err != nil {
		return nil, err
	}
	dir := s.outputDir(ctxOverride, defaultContext, jobID)
	urlPrefix := s.outputURLPrefix(ctxOverride, defaultContext, jobID)

	published := make([]PublishedOutput, 0, len(outputs))
	for outputID, producedPath := range outputs {
		destDir := filepath.Join(dir, outputID)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output dir for %s: %w", outputID, err)
		}
		filename := filepath.Base(producedPath)
		destPath := filepath.Join(destDir, filename)
		if err := copyFile(producedPath, destPath); err != nil {
			return nil, err
		}
		published = append(published, PublishedOutput{
			ID:       outputID,
			Filename: filename,
			Path:     destPath,
			Href:     urlPrefix + "/" + outputID + "/" + filename,
		})
	}
	return published, nil
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening produced output %s: %w", srcPath, err)
	}
	defer src.Close()
	return writeFull(destPath, src)
}

// MapWPSOutputLocation is the bidirectional href<->path mapping from
// spec.md §4.4. reverse=false: href -> local path (only when href is
// rooted under OutputURL and, unless checkExists is false, the local
// file exists). reverse=true: local path -> href (only when path is
// rooted under OutputDir).
func (s *Stager) MapWPSOutputLocation(value string, reverse bool, checkExists bool) (string, error) {
	if reverse {
		abs, err := filepath.Abs(value)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNotUnderOutputPrefix, err)
		}
		outDir, err := filepath.Abs(s.OutputDir)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNotUnderOutputPrefix, err)
		}
		rel, err := filepath.Rel(outDir, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("%w: %s", ErrNotUnderOutputPrefix, value)
		}
		return strings.TrimRight(s.OutputURL, "/") + "/" + filepath.ToSlash(rel), nil
	}

	base := strings.TrimRight(s.OutputURL, "/")
	if !strings.HasPrefix(value, base+"/") {
		return "", fmt.Errorf("%w: %s", ErrNotUnderOutputPrefix, value)
	}
	rel := strings.TrimPrefix(value, base+"/")
	localPath := filepath.Join(s.OutputDir, filepath.FromSlash(rel))

	if checkExists {
		if _, err := os.Stat(localPath); err != nil {
			return "", fmt.Errorf("%w: %s does not exist locally", ErrNotUnderOutputPrefix, localPath)
		}
	}
	return localPath, nil
}

// S3Mirror is a best-effort PUT-object mirror for published outputs,
// used when wps.output_s3_bucket is configured (SPEC_FULL.md §4 C4: no
// AWS SDK is wired into this module — see DESIGN.md — so this issues a
// plain path-style PUT (<endpoint>/<bucket>/<key>) over net/http rather than using a
// client library).
type S3Mirror struct {
	Bucket     string
	Endpoint   string // e.g. "https://s3.amazonaws.com"; overridable for S3-compatible stores
	HTTPClient *http.Client
}

// NewS3Mirror builds an S3Mirror targeting the AWS default endpoint.
func NewS3Mirror(bucket string) *S3Mirror {
	return &S3Mirror{
		Bucket:     bucket,
		Endpoint:   "https://s3.amazonaws.com",
		HTTPClient: &http.Client{},
	}
}

// Put uploads data at key. Authentication (SigV4) is intentionally out of
// scope for this best-effort mirror; deployments needing authenticated
// S3 access should front the bucket with a pre-signed-URL service instead.
func (m *S3Mirror) Put(ctx context.Context, key string, data []byte, contentType string) error {
	u := fmt.Sprintf("%s/%s/%s", strings.TrimRight(m.Endpoint, "/"), m.Bucket, strings.TrimLeft(key, "/"))
	if _, err := url.Parse(u); err != nil {
		return fmt.Errorf("building S3 mirror URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building S3 mirror request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("S3 mirror PUT failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("S3 mirror PUT returned HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
