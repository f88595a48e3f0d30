// Package validate implements the 3-phase document validation pipeline:
// structural → semantic → domain.
package validate

import (
	"fmt"

	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// Validation phases.
const (
	PhaseStructural = "structural"
	PhaseSemantic   = "semantic"
	PhaseDomain     = "domain"
)

// ValidationError represents one error or warning from the validation pipeline.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s at %s", e.Phase, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
}

func errorf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: "error",
	}
}

func warningf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: "warning",
	}
}

// Options tune the domain phase.
type Options struct {
	// Registry, when set, enables target resolution and reference image
	// checks. Failures are reported as warnings.
	Registry *registry.Registry
}

// ValidateFile runs the full 3-phase pipeline on a tutorial file.
func ValidateFile(path string, opts Options) (*schema.Tutorial, []*ValidationError) {
	// Phase 1: Structural (strict YAML decode)
	t, err := schema.LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf(PhaseStructural, "", "failed to load: %s", err)}
	}
	return t, ValidateTutorial(t, opts)
}

// ValidateTutorial runs phases 2+3 on an already-loaded tutorial. The
// tutorial is normalized first.
func ValidateTutorial(t *schema.Tutorial, opts Options) []*ValidationError {
	schema.Normalize(t)
	var errs []*ValidationError

	// Phase 2: Semantic (JSON Schema validation)
	errs = append(errs, validateSemantic(t)...)

	// If we have semantic errors, don't proceed to domain
	if HasErrors(errs) {
		return errs
	}

	// Phase 3: Domain (hand-coded rules)
	errs = append(errs, validateDomain(t, opts)...)
	return errs
}

// ValidateRegistryFile runs the pipeline on a UI registry file.
func ValidateRegistryFile(path string) (*schema.RegistryDocument, []*ValidationError) {
	doc, err := schema.LoadRegistryFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf(PhaseStructural, "", "failed to load registry: %s", err)}
	}
	return doc, ValidateRegistry(doc)
}

// ValidateRegistry runs phases 2+3 on an already-loaded registry document.
func ValidateRegistry(doc *schema.RegistryDocument) []*ValidationError {
	errs := validateRegistrySemantic(doc)
	if HasErrors(errs) {
		return errs
	}
	return append(errs, validateRegistryDomain(doc)...)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// Split separates errors from warnings.
func Split(all []*ValidationError) (errs, warnings []*ValidationError) {
	for _, e := range all {
		if e.Severity == "error" {
			errs = append(errs, e)
		} else {
			warnings = append(warnings, e)
		}
	}
	return errs, warnings
}
