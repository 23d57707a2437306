package file

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
)

// Ensure SourceLoader implements the interface.
var _ driven.SourceLoader = (*SourceLoader)(nil)

// DefaultSourcesFile is read from the working directory when no path is set.
const DefaultSourcesFile = "config.json"

// sourceEntry is one value of the top-level mapping.
type sourceEntry struct {
	URL    string         `yaml:"URL"`
	Params map[string]any `yaml:"PARAMS"`
}

// SourceLoader reads the sources document from disk on every Load.
//
// The document is a mapping of source name to {URL, PARAMS}. JSON is
// accepted as YAML, and mapping order in the file is the processing order.
type SourceLoader struct {
	path string
}

// NewSourceLoader creates a loader for path. An empty path uses DefaultSourcesFile.
func NewSourceLoader(path string) *SourceLoader {
	if path == "" {
		path = DefaultSourcesFile
	}
	return &SourceLoader{path: path}
}

// Path returns the sources file path.
func (l *SourceLoader) Path() string {
	return l.path
}

// Load reads and parses the sources file.
func (l *SourceLoader) Load(ctx context.Context) (*domain.SourceSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: sources file %s not found", domain.ErrConfig, l.path)
		}
		return nil, fmt.Errorf("%w: reading sources file: %w", domain.ErrConfig, err)
	}

	set, err := ParseSources(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	return set, nil
}

// ParseSources parses a sources document, keeping mapping order.
func ParseSources(data []byte) (*domain.SourceSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing sources: %w", domain.ErrConfig, err)
	}

	set := &domain.SourceSet{}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		// Empty document: no sources.
		return set, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: sources must be a mapping of name to {URL, PARAMS} (line %d)",
			domain.ErrConfig, root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: source name must be a string (line %d)", domain.ErrConfig, keyNode.Line)
		}
		name := keyNode.Value

		if valueNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: source %q must be a mapping (line %d)", domain.ErrConfig, name, valueNode.Line)
		}
		var entry sourceEntry
		if err := valueNode.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: source %q: %w", domain.ErrConfig, name, err)
		}

		source := domain.SourceConfig{Name: name, URL: entry.URL, Params: entry.Params}
		if err := source.Validate(); err != nil {
			return nil, err
		}
		if err := set.Add(source); err != nil {
			return nil, fmt.Errorf("%w (line %d)", err, keyNode.Line)
		}
	}
	return set, nil
}
