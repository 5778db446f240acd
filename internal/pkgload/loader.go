package pkgload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"
)

// Fetcher retrieves the bytes of a nested package description referenced
// by URL (`<url>/package`, per spec.md §4.2). Exposed as an interface so
// tests can substitute an in-memory fake.
type Fetcher interface {
	Fetch(ctx context.Context, u string) ([]byte, error)
}

// HTTPFetcher is the default Fetcher, a bounded-retry HTTP GET client.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher with a sane default timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch performs a GET with bounded exponential backoff (the library's
// default intervals, at most 3 retries).
func (f *HTTPFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrPackageNotFound, u))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("transient error fetching %s: status %d", u, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, u))
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// Loader parses package descriptions and resolves workflow step references
// into an executable plan.
type Loader struct {
	Fetcher Fetcher
}

// NewLoader builds a Loader with the default HTTP fetcher.
func NewLoader() *Loader {
	return &Loader{Fetcher: NewHTTPFetcher()}
}

// ParseBytes decodes a package description from YAML or JSON (yaml.v3
// accepts both) and classifies it.
func ParseBytes(data []byte) (*Package, error) {
	var pkg Package
	if err := yaml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackageRegistration, err)
	}
	switch pkg.Class {
	case ClassWorkflow, ClassCommandLineTool:
	default:
		return nil, fmt.Errorf("%w: unrecognized class %q", ErrPackageRegistration, pkg.Class)
	}
	return &pkg, nil
}

// ValidateExtension checks the source reference's file extension against
// the set accepted by the loader (yaml, yml, json, cwl, job).
func ValidateExtension(source string) error {
	u, err := url.Parse(source)
	ext := ""
	if err == nil && u.Path != "" {
		ext = strings.TrimPrefix(path.Ext(u.Path), ".")
	} else {
		ext = strings.TrimPrefix(path.Ext(source), ".")
	}
	if ext == "" {
		return nil // inline mapping, no extension to check
	}
	if !supportedExtensions[strings.ToLower(ext)] {
		return fmt.Errorf("%w: unsupported extension %q", ErrPackageRegistration, ext)
	}
	return nil
}

// Load parses the root package from source (an inline mapping's raw bytes,
// or a URL) and recursively resolves every workflow step reference into a
// map of step name -> resolved sub-package. Cycles (a step, transitively,
// referencing itself) are rejected with ErrPackageRegistration.
func (l *Loader) Load(ctx context.Context, source []byte, sourceRef string) (*Package, map[string]*Package, error) {
	if err := ValidateExtension(sourceRef); err != nil {
		return nil, nil, err
	}
	root, err := ParseBytes(source)
	if err != nil {
		return nil, nil, err
	}

	resolved := map[string]*Package{}
	inFlight := map[string]bool{}
	if root.IsWorkflow() {
		if err := l.resolveSteps(ctx, root, inFlight, resolved); err != nil {
			return nil, nil, err
		}
	}
	return root, resolved, nil
}

func (l *Loader) resolveSteps(ctx context.Context, pkg *Package, inFlight map[string]bool, resolved map[string]*Package) error {
	for stepName, step := range pkg.Steps {
		ref := step.Run
		if inFlight[ref] {
			return fmt.Errorf("%w: cycle detected resolving step %q (%s)", ErrPackageRegistration, stepName, ref)
		}

		var sub *Package
		if strings.HasSuffix(ref, ".cwl") && !strings.Contains(ref, "://") {
			// Local path reference: recorded under the workflow's own step
			// name (not the file's base name) as a placeholder
			// CommandLineTool; the referenced file is not read.
			name := strings.TrimSuffix(path.Base(ref), ".cwl")
			resolved[stepName] = &Package{Class: ClassCommandLineTool}
			_ = name
			continue
		}

		if strings.Contains(ref, "://") {
			inFlight[ref] = true
			body, err := l.Fetcher.Fetch(ctx, strings.TrimRight(ref, "/")+"/package")
			if err != nil {
				return err
			}
			sub, err = ParseBytes(body)
			if err != nil {
				return err
			}
			resolved[stepName] = sub
			if sub.IsWorkflow() {
				if err := l.resolveSteps(ctx, sub, inFlight, resolved); err != nil {
					return err
				}
			}
			delete(inFlight, ref)
			continue
		}

		return fmt.Errorf("%w: unrecognized step run reference %q", ErrPackageRegistration, ref)
	}
	return nil
}
