// Package service implements the registered remote-provider entity
// (spec.md §3 "Service"): an OWS/WPS endpoint proxied under a local name,
// grounded on weaver.datatype.Service and twitcher's providers resource.
package service

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

// AuthMethod matches weaver.datatype.Service.auth ("public, token, cert").
type AuthMethod string

const (
	AuthPublic AuthMethod = "public"
	AuthToken  AuthMethod = "token"
	AuthCert   AuthMethod = "cert"
)

// Kind is the remote service's WPS generation (the teacher's `type` field
// always defaults to "WPS"; spec.md's C5 dispatch also needs to know
// whether a provider speaks OGC API-Processes instead).
type Kind string

const (
	KindWPS1         Kind = "WPS"
	KindAPIProcesses Kind = "APIProcesses"
)

// Service is a registered remote process provider.
type Service struct {
	Name   string
	URL    string
	Kind   Kind
	Public bool
	Auth   AuthMethod
}

// New validates and builds a Service, matching weaver.datatype.Service's
// constructor invariant that both name and url are required.
func New(name, url string) (*Service, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidService)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidService)
	}
	return &Service{
		Name: name,
		URL:  url,
		Kind: KindWPS1,
		Auth: AuthToken,
	}, nil
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)
var repeatedDashes = regexp.MustCompile(`-{2,}`)

// adjectives and nouns back the random-name fallback when a candidate
// name sanitizes down to nothing (e.g. a title in a non-Latin script).
var adjectives = []string{"quiet", "amber", "rapid", "solar", "cobalt", "mellow", "bright", "cryptic"}
var nouns = []string{"falcon", "basin", "glacier", "ridge", "harbor", "meadow", "comet", "delta"}

// SaneName derives a URL-safe slug from an arbitrary title, lowercasing,
// collapsing whitespace/punctuation runs to single dashes, and trimming
// leading/trailing dashes. Grounded on twitcher's provider-registration
// endpoint (wps_restapi/providers/providers.py), which takes the caller-
// supplied `id` as-is; the sanitation and random-fallback step here is
// added because spec.md requires every Service.Name to be usable directly
// as a path segment.
func SaneName(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	lower = strings.ReplaceAll(lower, " ", "-")
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	slug = repeatedDashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	return slug
}

// RandomName generates a readable adjective-noun-suffix fallback name for
// when SaneName yields an empty slug. rng may be nil to use the package
// default source; tests should pass a seeded *rand.Rand for determinism.
func RandomName(rng *rand.Rand) string {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	adj := adjectives[rng.Intn(len(adjectives))]
	noun := nouns[rng.Intn(len(nouns))]
	suffix := rng.Intn(10000)
	return fmt.Sprintf("%s-%s-%04d", adj, noun, suffix)
}

// GenerateName returns SaneName(title), or a RandomName fallback if that
// slug is empty.
func GenerateName(title string, rng *rand.Rand) string {
	if slug := SaneName(title); slug != "" {
		return slug
	}
	return RandomName(rng)
}
