package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParams_NilSchemaAcceptsAnything(t *testing.T) {
	assert.NoError(t, ValidateParams(nil, map[string]any{"anything": 1}))
	assert.NoError(t, ValidateParams(nil, nil))
}

func TestValidateParams_Valid(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"city"},
		"properties": map[string]any{
			"city":  map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
		},
	}

	err := ValidateParams(schema, map[string]any{"city": "berlin", "limit": 3})
	assert.NoError(t, err)
}

func TestValidateParams_MissingRequired(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"city"},
	}

	err := ValidateParams(schema, map[string]any{"limit": 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "params schema validation failed")

	err = ValidateParams(schema, nil)
	require.Error(t, err)
}

func TestValidateParams_WrongType(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{"type": "integer"},
		},
	}

	err := ValidateParams(schema, map[string]any{"limit": "three"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "params schema validation failed")
}
