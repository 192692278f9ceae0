package script_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/quickops/jobflow/pkg/executor/script"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		source   string
		data     any
		expected any
	}{
		{
			name:     "plain string",
			source:   "hello world",
			data:     nil,
			expected: "hello world",
		},
		{
			name:     "data access",
			source:   "{{.params.city}}",
			data:     map[string]any{"params": map[string]any{"city": "berlin"}},
			expected: "berlin",
		},
		{
			name:     "number coercion",
			source:   "42.5",
			data:     nil,
			expected: 42.5,
		},
		{
			name:     "boolean coercion",
			source:   "true",
			data:     nil,
			expected: true,
		},
		{
			name:     "json object coercion",
			source:   `{"count": {{.params.count}}, "ok": true}`,
			data:     map[string]any{"params": map[string]any{"count": 3}},
			expected: map[string]any{"count": float64(3), "ok": true},
		},
		{
			name:     "json array coercion",
			source:   `[1, 2, 3]`,
			data:     nil,
			expected: []any{float64(1), float64(2), float64(3)},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result, err := script.Render(testCase.source, testCase.data)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, result)
		})
	}
}

func TestRender_NowFunction(t *testing.T) {
	t.Parallel()

	result, err := script.Render("{{now}}", nil)
	require.NoError(t, err)

	rendered, isString := result.(string)
	require.True(t, isString)

	_, err = time.Parse(time.RFC3339, rendered)
	assert.NoError(t, err)
}

func TestRender_ParseError(t *testing.T) {
	t.Parallel()

	_, err := script.Render("{{.params.", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse script")
}

func TestRender_InvalidJSONOutput(t *testing.T) {
	t.Parallel()

	_, err := script.Render(`{"broken": `+"}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse script output as json")
}

func TestExecutor_Execute(t *testing.T) {
	t.Parallel()

	exec := script.NewExecutor(newTestLogger())

	config := models.ActionConfig{Script: &models.ScriptConfig{
		Source: `{"city": "{{.params.city}}", "doubled": {{.params.count}}{{.params.count}}}`,
	}}
	params := map[string]any{"city": "berlin", "count": 4}

	result, err := exec.Execute(context.Background(), config, params)
	require.NoError(t, err)

	resultMap, isMap := result.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "berlin", resultMap["city"])
	assert.Equal(t, float64(44), resultMap["doubled"])
}

func TestExecutor_Execute_MissingSection(t *testing.T) {
	t.Parallel()

	exec := script.NewExecutor(newTestLogger())

	_, err := exec.Execute(context.Background(), models.ActionConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script config section missing")
}
