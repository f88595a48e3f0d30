package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a tutorial document (YAML or JSON).
// Returns a structural error if the document contains unknown fields.
func LoadFile(path string) (*Tutorial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tutorial: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a tutorial from a reader.
func Load(r io.Reader) (*Tutorial, error) {
	var t Tutorial
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	Normalize(&t)
	return &t, nil
}

// Normalize fills defaults: absent checklists and animation lists become
// empty, step numbers default to their 1-based position.
func Normalize(t *Tutorial) {
	if t.Steps == nil {
		t.Steps = []Step{}
	}
	for i := range t.Steps {
		NormalizeStep(&t.Steps[i])
		if t.Steps[i].StepNumber == 0 {
			t.Steps[i].StepNumber = i + 1
		}
	}
}

// NormalizeStep fills the defaults of a single step.
func NormalizeStep(s *Step) {
	if s.Checklist == nil {
		s.Checklist = []ChecklistItem{}
	}
	if s.Animations == nil {
		s.Animations = []Directive{}
	}
}

// LoadRegistryFile reads and structurally decodes a UI registry document.
func LoadRegistryFile(path string) (*RegistryDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()
	return LoadRegistry(f)
}

// LoadRegistry reads a UI registry document from a reader.
func LoadRegistry(r io.Reader) (*RegistryDocument, error) {
	var doc RegistryDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &doc, nil
}
