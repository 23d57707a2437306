package domain

import (
	"fmt"
	"strings"
)

// ArtifactSuffix is appended to a source name to form its artifact name,
// both on local disk and on the remote store.
const ArtifactSuffix = ".CSV"

// SourceConfig describes one remote tabular feed.
type SourceConfig struct {
	// Name is the unique key of the source and the base name of its artifact.
	Name string

	// URL is the endpoint the table is fetched from.
	URL string

	// Params are passed verbatim to the fetcher.
	Params map[string]any
}

// ArtifactName returns the deterministic artifact file name for the source.
func (s SourceConfig) ArtifactName() string {
	return ArtifactName(s.Name)
}

// Validate checks the source can be processed at all.
func (s SourceConfig) Validate() error {
	if err := ValidateSourceName(s.Name); err != nil {
		return err
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("%w: source %q has no URL", ErrConfig, s.Name)
	}
	return nil
}

// ArtifactName returns "<name>.CSV".
func ArtifactName(sourceName string) string {
	return sourceName + ArtifactSuffix
}

// ValidateSourceName rejects names that cannot be used as a plain file name.
func ValidateSourceName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty source name", ErrConfig)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: source name %q contains a path separator", ErrConfig, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: source name %q is not a file name", ErrConfig, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: source name %q contains NUL", ErrConfig, name)
	}
	return nil
}

// SourceSet is an ordered collection of sources keyed by name.
// Insertion order is the processing order.
type SourceSet struct {
	order   []string
	sources map[string]SourceConfig
}

// NewSourceSet builds a set from sources in the given order.
func NewSourceSet(sources ...SourceConfig) (*SourceSet, error) {
	set := &SourceSet{}
	for _, s := range sources {
		if err := set.Add(s); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Add appends a source. Names must be unique and valid.
func (s *SourceSet) Add(source SourceConfig) error {
	if err := source.Validate(); err != nil {
		return err
	}
	if s.sources == nil {
		s.sources = make(map[string]SourceConfig)
	}
	if _, exists := s.sources[source.Name]; exists {
		return fmt.Errorf("%w: duplicate source %q", ErrConfig, source.Name)
	}
	s.order = append(s.order, source.Name)
	s.sources[source.Name] = source
	return nil
}

// Get returns the source with the given name.
func (s *SourceSet) Get(name string) (SourceConfig, bool) {
	if s == nil {
		return SourceConfig{}, false
	}
	src, ok := s.sources[name]
	return src, ok
}

// Len returns the number of sources.
func (s *SourceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Names returns source names in insertion order.
func (s *SourceSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// All returns the sources in insertion order.
func (s *SourceSet) All() []SourceConfig {
	if s == nil {
		return nil
	}
	all := make([]SourceConfig, 0, len(s.order))
	for _, name := range s.order {
		all = append(all, s.sources[name])
	}
	return all
}
