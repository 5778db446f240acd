// Package datasource maps input URLs / identifiers to a target ADES
// endpoint using a configured source table, per spec.md §4.3.
package datasource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Source describes one entry of the data-source table.
type Source struct {
	Name    string `json:"-"`
	Netloc  string `json:"netloc,omitempty"`
	ADES    string `json:"ades,omitempty"`
	Rootdir string `json:"rootdir,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// OpensearchLocalFileScheme is the internal pseudo-scheme used to pass
// already-local files between EMS and ADES without a re-download.
const OpensearchLocalFileScheme = "opensearchfile"

// Registry is a read-mostly table of configured data sources.
type Registry struct {
	sources     []Source // insertion order preserved
	byName      map[string]Source
	defaultName string
	localADES   string
}

// NewRegistry builds an empty registry; localADES is returned by
// ResolveToADES when no source name is given.
func NewRegistry(localADES string) *Registry {
	return &Registry{byName: map[string]Source{}, localADES: localADES}
}

// LoadFile parses the `data_sources` JSON config file (a JSON object
// mapping source name -> {netloc, ades, rootdir?, default?}), preserving
// declaration order so that, absent an explicit default, the first entry
// wins.
func LoadFile(path string, localADES string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading data sources file %s: %w", path, err)
	}
	return LoadBytes(data, localADES)
}

// LoadBytes parses data-source table JSON from an in-memory buffer.
func LoadBytes(data []byte, localADES string) (*Registry, error) {
	reg := NewRegistry(localADES)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid data sources JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("data sources JSON must be an object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := keyTok.(string)

		var src Source
		if err := dec.Decode(&src); err != nil {
			return nil, fmt.Errorf("decoding data source %q: %w", name, err)
		}
		src.Name = name
		reg.add(src)
	}

	return reg, nil
}

func (r *Registry) add(src Source) {
	r.sources = append(r.sources, src)
	r.byName[src.Name] = src
	if src.Default {
		r.defaultName = src.Name
	}
}

// Default returns the default source: the one explicitly marked
// `default: true`, or, absent that, the first in insertion order.
func (r *Registry) Default() (Source, bool) {
	if r.defaultName != "" {
		return r.byName[r.defaultName], true
	}
	if len(r.sources) > 0 {
		return r.sources[0], true
	}
	return Source{}, false
}

// ResolveByURL matches href against each source's netloc (scheme+host), or
// against the opensearch local-file scheme's rootdir by longest-prefix
// match; falling back to the default source.
func (r *Registry) ResolveByURL(href string) (Source, error) {
	u, err := url.Parse(href)
	if err != nil {
		return Source{}, fmt.Errorf("invalid url %q: %w", href, err)
	}

	if u.Scheme == OpensearchLocalFileScheme {
		var best Source
		bestLen := -1
		for _, s := range r.sources {
			if s.Rootdir == "" {
				continue
			}
			if strings.HasPrefix(u.Path, s.Rootdir) && len(s.Rootdir) > bestLen {
				best = s
				bestLen = len(s.Rootdir)
			}
		}
		if bestLen >= 0 {
			return best, nil
		}
	} else {
		netloc := u.Scheme + "://" + u.Host
		for _, s := range r.sources {
			if s.Netloc != "" && s.Netloc == netloc {
				return s, nil
			}
		}
	}

	if def, ok := r.Default(); ok {
		return def, nil
	}
	return Source{}, fmt.Errorf("%w: no source matches %q and no default configured", ErrSourceNotFound, href)
}

// ResolveToADES returns the configured ADES URL for sourceName, or the
// local ADES base URL when sourceName is empty.
func (r *Registry) ResolveToADES(sourceName string) (string, error) {
	if sourceName == "" {
		return r.localADES, nil
	}
	src, ok := r.byName[sourceName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSourceNotFound, sourceName)
	}
	if src.ADES == "" {
		return r.localADES, nil
	}
	return src.ADES, nil
}
