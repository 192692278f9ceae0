package sqlquery

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/quickops/jobflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		query         string
		params        map[string]any
		expectedQuery string
		expectedArgs  []any
	}{
		{
			name:          "no params leaves query untouched",
			query:         "SELECT * FROM cities WHERE name = :name",
			params:        nil,
			expectedQuery: "SELECT * FROM cities WHERE name = :name",
			expectedArgs:  nil,
		},
		{
			name:          "single placeholder",
			query:         "SELECT * FROM cities WHERE name = :name",
			params:        map[string]any{"name": "berlin"},
			expectedQuery: "SELECT * FROM cities WHERE name = $1",
			expectedArgs:  []any{"berlin"},
		},
		{
			name:          "repeated placeholder reuses the argument",
			query:         "SELECT :tag AS a, :tag AS b",
			params:        map[string]any{"tag": "x"},
			expectedQuery: "SELECT $1 AS a, $1 AS b",
			expectedArgs:  []any{"x"},
		},
		{
			name:          "unknown placeholder left untouched",
			query:         "SELECT * FROM t WHERE a = :known AND b = :unknown",
			params:        map[string]any{"known": 1},
			expectedQuery: "SELECT * FROM t WHERE a = $1 AND b = :unknown",
			expectedArgs:  []any{1},
		},
		{
			name:          "type cast is not a placeholder",
			query:         "SELECT payload::text FROM t WHERE id = :id",
			params:        map[string]any{"id": 7, "text": "nope"},
			expectedQuery: "SELECT payload::text FROM t WHERE id = $1",
			expectedArgs:  []any{7},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			query, args := bindParams(testCase.query, testCase.params)
			assert.Equal(t, testCase.expectedQuery, query)
			assert.Equal(t, testCase.expectedArgs, args)
		})
	}
}

func TestIsSelect(t *testing.T) {
	t.Parallel()

	assert.True(t, isSelect("SELECT 1"))
	assert.True(t, isSelect("  select * from t"))
	assert.False(t, isSelect("INSERT INTO t VALUES (1)"))
	assert.False(t, isSelect("UPDATE t SET a = 1"))
}

func TestExecutor_Execute_MissingSection(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	_, err := exec.Execute(context.Background(), models.ActionConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sql config section missing")
}
