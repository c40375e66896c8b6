package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlDocument struct {
	Schemas []Element `yaml:"schemas"`
}

// LoadYAML builds a registry from a document of the form:
//
//	schemas:
//	  - id: Library
//	    kind: entity
//	    properties:
//	      - {name: name, type: string, required: true}
//	  - id: LibraryHasBooks
//	    kind: relationship
//	    start: Library
//	    end: Book
//	    embedded: true
func LoadYAML(data []byte) (*Registry, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	r := NewRegistry()
	for _, el := range doc.Schemas {
		if err := r.Register(el); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadYAMLFile reads and loads path.
func LoadYAMLFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return LoadYAML(data)
}

// Load reads a schema from path: a CUE package directory, a .cue file, or a
// .yaml/.yml document.
func Load(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema path: %w", err)
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema file: %w", err)
		}
		return CompileCUE(string(data), path)
	case ".yaml", ".yml":
		return LoadYAMLFile(path)
	default:
		return nil, fmt.Errorf("unsupported schema file %s: want a directory, .cue, .yaml or .yml", path)
	}
}
