package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// validateSemantic validates the tutorial against its JSON Schema.
func validateSemantic(t *schema.Tutorial) []*ValidationError {
	return validateAgainst("tutorial-v0.json", schema.GenerateTutorialJSONSchema, t)
}

// validateRegistrySemantic validates a registry against its JSON Schema.
func validateRegistrySemantic(doc *schema.RegistryDocument) []*ValidationError {
	return validateAgainst("registry-v0.json", schema.GenerateRegistryJSONSchema, doc)
}

func validateAgainst(resource string, generate func() ([]byte, error), v any) []*ValidationError {
	// Round-trip through JSON so the validator sees plain maps and slices.
	data, err := json.Marshal(v)
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "marshal for schema validation: %v", err)}
	}

	schemaJSON, err := generate()
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "generate schema: %v", err)}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "unmarshal schema: %v", err)}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "add schema resource: %v", err)}
	}
	sch, err := c.Compile(resource)
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "compile schema: %v", err)}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "unmarshal document: %v", err)}
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{errorf(PhaseSemantic, "", "%s", err)}
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    PhaseSemantic,
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
