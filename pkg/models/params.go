package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateParams checks input params against an optional JSON schema
// carried by a job or flow definition. A nil schema accepts anything.
func ValidateParams(schema map[string]any, params map[string]any) error {
	if schema == nil {
		return nil
	}

	if params == nil {
		params = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate params: %w", err)
	}

	if !result.Valid() {
		var errors []string
		for _, error := range result.Errors() {
			errors = append(errors, error.String())
		}

		return fmt.Errorf("params schema validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
