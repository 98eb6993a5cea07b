package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of a catalog file.
type document struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Load reads and validates a catalog file.
//
// Both YAML and JSON documents are accepted, since JSON is valid YAML.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	return New(doc.Name, doc.Steps)
}
