package web

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// templateImportSchema is the contract for externally authored template
// documents submitted to the import endpoint. Imports are validated against
// the schema before decoding so authoring mistakes surface as field-level
// messages instead of opaque unmarshal errors.
const templateImportSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "contract_type", "stages"],
	"properties": {
		"name": {"type": "string", "minLength": 3},
		"contract_type": {"type": "string", "enum": ["Commercial", "Merchant"]},
		"region_id": {"type": "string"},
		"entity_id": {"type": "string"},
		"project_id": {"type": "string"},
		"stages": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"type": {"type": "string", "enum": ["draft", "review", "approval", "signing"]},
					"description": {"type": "string"},
					"owners": {"type": "array"},
					"approvers": {"type": "array"},
					"required_artifacts": {"type": "array", "items": {"type": "string"}},
					"allowed_transitions": {"type": "array", "items": {"type": "string"}},
					"sla_hours": {"type": "integer", "minimum": 1}
				}
			}
		}
	}
}`

// validateTemplateDocument checks a raw import payload against the template
// schema and returns the field-level violations.
func validateTemplateDocument(document []byte) ([]string, error) {
	schemaLoader := gojsonschema.NewStringLoader(templateImportSchema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate template document: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return violations, nil
}
