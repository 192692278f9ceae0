package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalCtx() EvalContext {
	return EvalContext{
		Params: map[string]any{
			"region": "eu-west-1",
			"limits": map[string]any{"rows": float64(500)},
			"tags":   []any{"nightly", "billing"},
		},
		Statuses: map[string]RunStatus{
			"extract": RunStatusSuccess,
			"load":    RunStatusFailed,
		},
		Results: map[string]any{
			"extract": map[string]any{"rows": float64(42), "ok": true},
		},
	}
}

func TestCondition_Evaluate(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
		expected  bool
	}{
		{
			name:      "always is true",
			condition: Condition{Kind: ConditionAlways},
			expected:  true,
		},
		{
			name:      "node_success matches a successful node",
			condition: Condition{Kind: ConditionNodeSuccess, NodeID: "extract"},
			expected:  true,
		},
		{
			name:      "node_success rejects a failed node",
			condition: Condition{Kind: ConditionNodeSuccess, NodeID: "load"},
			expected:  false,
		},
		{
			name:      "node_failed matches a failed node",
			condition: Condition{Kind: ConditionNodeFailed, NodeID: "load"},
			expected:  true,
		},
		{
			name:      "compare eq on params",
			condition: Condition{Kind: ConditionCompare, Field: "params.region", Op: OpEq, Value: "eu-west-1"},
			expected:  true,
		},
		{
			name:      "compare gt coerces int literal against float field",
			condition: Condition{Kind: ConditionCompare, Field: "results.extract.rows", Op: OpGt, Value: 40},
			expected:  true,
		},
		{
			name:      "compare lte on nested params",
			condition: Condition{Kind: ConditionCompare, Field: "params.limits.rows", Op: OpLte, Value: 500},
			expected:  true,
		},
		{
			name:      "compare ne on node status path",
			condition: Condition{Kind: ConditionCompare, Field: "nodes.load.status", Op: OpNe, Value: "success"},
			expected:  true,
		},
		{
			name:      "in matches membership",
			condition: Condition{Kind: ConditionIn, Field: "params.region", Values: []any{"us-east-1", "eu-west-1"}},
			expected:  true,
		},
		{
			name:      "in rejects non-member",
			condition: Condition{Kind: ConditionIn, Field: "params.region", Values: []any{"us-east-1"}},
			expected:  false,
		},
		{
			name:      "contains on list field",
			condition: Condition{Kind: ConditionContains, Field: "params.tags", Value: "billing"},
			expected:  true,
		},
		{
			name:      "contains on string field",
			condition: Condition{Kind: ConditionContains, Field: "params.region", Value: "west"},
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.condition.Evaluate(evalCtx())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCondition_Evaluate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
	}{
		{
			name:      "unknown field",
			condition: Condition{Kind: ConditionCompare, Field: "params.missing", Op: OpEq, Value: 1},
		},
		{
			name:      "unknown root",
			condition: Condition{Kind: ConditionCompare, Field: "env.HOME", Op: OpEq, Value: "x"},
		},
		{
			name:      "result missing for node",
			condition: Condition{Kind: ConditionCompare, Field: "results.load.rows", Op: OpEq, Value: 1},
		},
		{
			name:      "ordering operator on string operand",
			condition: Condition{Kind: ConditionCompare, Field: "params.region", Op: OpGt, Value: 1},
		},
		{
			name:      "contains on numeric field",
			condition: Condition{Kind: ConditionContains, Field: "results.extract.rows", Value: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.condition.Evaluate(evalCtx())
			require.Error(t, err)
		})
	}
}

func TestCondition_Validate(t *testing.T) {
	valid := []Condition{
		{Kind: ConditionAlways},
		{Kind: ConditionNodeSuccess, NodeID: "a"},
		{Kind: ConditionNodeFailed, NodeID: "a"},
		{Kind: ConditionCompare, Field: "params.x", Op: OpGte, Value: 1},
		{Kind: ConditionIn, Field: "params.x", Values: []any{1, 2}},
		{Kind: ConditionContains, Field: "params.x", Value: "y"},
	}
	for _, c := range valid {
		assert.NoError(t, c.Validate(), "kind %s", c.Kind)
	}

	invalid := []Condition{
		{Kind: "expression", Value: "1 == 1"}, // arbitrary expressions are not a thing
		{Kind: ConditionNodeSuccess},
		{Kind: ConditionCompare, Field: "params.x", Op: "like", Value: "y"},
		{Kind: ConditionCompare, Op: OpEq, Value: 1},
		{Kind: ConditionIn, Field: "params.x"},
		{Kind: ConditionContains},
	}
	for _, c := range invalid {
		assert.Error(t, c.Validate(), "kind %s", c.Kind)
	}
}

func TestCondition_Evaluate_StatusLookupIsExact(t *testing.T) {
	// A timed-out node is failed for strategy purposes, but node_failed tests
	// the exact terminal status.
	ctx := EvalContext{Statuses: map[string]RunStatus{"slow": RunStatusTimeout}}

	result, err := (&Condition{Kind: ConditionNodeFailed, NodeID: "slow"}).Evaluate(ctx)
	require.NoError(t, err)
	assert.False(t, result)

	result, err = (&Condition{Kind: ConditionCompare, Field: "nodes.slow.status", Op: OpEq, Value: "timeout"}).Evaluate(ctx)
	require.NoError(t, err)
	assert.True(t, result)
}
