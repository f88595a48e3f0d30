package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateTutorialJSONSchema produces a JSON Schema Draft 2020-12 document
// from the Tutorial Go types.
func GenerateTutorialJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Tutorial{})
	s.ID = "https://github.com/ormasoftchile/overlay/schemas/tutorial-v0.json"
	s.Title = "Guided overlay tutorial (overlay/v0)"
	s.Description = "Schema for tutorial documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tutorial schema: %w", err)
	}
	return data, nil
}

// GenerateRegistryJSONSchema produces a JSON Schema Draft 2020-12 document
// from the RegistryDocument Go types.
func GenerateRegistryJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&RegistryDocument{})
	s.ID = "https://github.com/ormasoftchile/overlay/schemas/registry-v0.json"
	s.Title = "UI component registry (registry/v0)"
	s.Description = "Schema for environment/component registry documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal registry schema: %w", err)
	}
	return data, nil
}
