package models

import (
	"fmt"
	"strings"
)

// ConditionKind enumerates the closed condition grammar. Conditions are
// data, interpreted against run state; they never execute code.
type ConditionKind string

const (
	ConditionAlways      ConditionKind = "always"
	ConditionNodeSuccess ConditionKind = "node_success"
	ConditionNodeFailed  ConditionKind = "node_failed"
	ConditionCompare     ConditionKind = "compare"
	ConditionIn          ConditionKind = "in"
	ConditionContains    ConditionKind = "contains"
)

// CompareOp enumerates the comparison operators. Ordering operators apply
// to numeric values only.
type CompareOp string

const (
	OpEq  CompareOp = "eq"
	OpNe  CompareOp = "ne"
	OpGt  CompareOp = "gt"
	OpGte CompareOp = "gte"
	OpLt  CompareOp = "lt"
	OpLte CompareOp = "lte"
)

// Condition is a tagged variant; the kind decides which fields apply.
//
//	always:        no fields
//	node_success:  node_id
//	node_failed:   node_id
//	compare:       field, op, value
//	in:            field, values
//	contains:      field, value
//
// Field paths are dotted and rooted at one of `params`, `results` or
// `nodes` (e.g. "params.region", "results.extract.rows", "nodes.a.status").
type Condition struct {
	Kind   ConditionKind `json:"kind"`
	NodeID string        `json:"node_id,omitempty"`
	Field  string        `json:"field,omitempty"`
	Op     CompareOp     `json:"op,omitempty"`
	Value  any           `json:"value,omitempty"`
	Values []any         `json:"values,omitempty"`
}

// EvalContext is the state a condition is interpreted against: the run's
// input params, the terminal statuses recorded so far, and the decoded
// results of executed nodes.
type EvalContext struct {
	Params   map[string]any
	Statuses map[string]RunStatus
	Results  map[string]any
}

// Validate rejects unknown kinds and operators and missing per-kind fields.
// Run-time lookups can still fail; Evaluate reports those as errors.
func (c *Condition) Validate() error {
	switch c.Kind {
	case ConditionAlways:
		return nil
	case ConditionNodeSuccess, ConditionNodeFailed:
		if c.NodeID == "" {
			return fmt.Errorf("condition %s requires node_id", c.Kind)
		}

		return nil
	case ConditionCompare:
		if c.Field == "" {
			return fmt.Errorf("condition compare requires field")
		}

		switch c.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
			return nil
		default:
			return fmt.Errorf("unknown compare operator %q", c.Op)
		}
	case ConditionIn:
		if c.Field == "" || len(c.Values) == 0 {
			return fmt.Errorf("condition in requires field and values")
		}

		return nil
	case ConditionContains:
		if c.Field == "" {
			return fmt.Errorf("condition contains requires field")
		}

		return nil
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

// Evaluate interprets the condition against the context. A lookup or type
// error is returned to the caller, which treats it as a node failure.
func (c *Condition) Evaluate(ctx EvalContext) (bool, error) {
	switch c.Kind {
	case ConditionAlways:
		return true, nil
	case ConditionNodeSuccess:
		return ctx.Statuses[c.NodeID] == RunStatusSuccess, nil
	case ConditionNodeFailed:
		return ctx.Statuses[c.NodeID] == RunStatusFailed, nil
	case ConditionCompare:
		fieldValue, err := ctx.lookup(c.Field)
		if err != nil {
			return false, err
		}

		return compare(fieldValue, c.Op, c.Value)
	case ConditionIn:
		fieldValue, err := ctx.lookup(c.Field)
		if err != nil {
			return false, err
		}

		for _, candidate := range c.Values {
			if scalarEqual(fieldValue, candidate) {
				return true, nil
			}
		}

		return false, nil
	case ConditionContains:
		fieldValue, err := ctx.lookup(c.Field)
		if err != nil {
			return false, err
		}

		switch v := fieldValue.(type) {
		case string:
			needle, ok := c.Value.(string)
			if !ok {
				return false, fmt.Errorf("contains on string field %q requires a string value", c.Field)
			}

			return strings.Contains(v, needle), nil
		case []any:
			for _, item := range v {
				if scalarEqual(item, c.Value) {
					return true, nil
				}
			}

			return false, nil
		default:
			return false, fmt.Errorf("field %q is not a string or list", c.Field)
		}
	default:
		return false, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

// lookup resolves a dotted field path. The first segment selects the root:
// params.*, results.<node>.*, nodes.<node>.status.
func (ctx EvalContext) lookup(path string) (any, error) {
	segments := strings.Split(path, ".")
	if len(segments) < 2 {
		return nil, fmt.Errorf("field path %q too short", path)
	}

	switch segments[0] {
	case "params":
		return descend(ctx.Params, segments[1:], path)
	case "results":
		result, ok := ctx.Results[segments[1]]
		if !ok {
			return nil, fmt.Errorf("no result recorded for node %q", segments[1])
		}

		if len(segments) == 2 {
			return result, nil
		}

		m, ok := result.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("result of node %q is not an object", segments[1])
		}

		return descend(m, segments[2:], path)
	case "nodes":
		if len(segments) != 3 || segments[2] != "status" {
			return nil, fmt.Errorf("field path %q: nodes root supports only nodes.<id>.status", path)
		}

		status, ok := ctx.Statuses[segments[1]]
		if !ok {
			return nil, fmt.Errorf("no status recorded for node %q", segments[1])
		}

		return string(status), nil
	default:
		return nil, fmt.Errorf("field path %q must be rooted at params, results or nodes", path)
	}
}

func descend(m map[string]any, segments []string, fullPath string) (any, error) {
	var current any = m

	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field path %q: %q is not an object", fullPath, segment)
		}

		current, ok = obj[segment]
		if !ok {
			return nil, fmt.Errorf("field path %q: %q not found", fullPath, segment)
		}
	}

	return current, nil
}

func compare(fieldValue any, op CompareOp, literal any) (bool, error) {
	switch op {
	case OpEq:
		return scalarEqual(fieldValue, literal), nil
	case OpNe:
		return !scalarEqual(fieldValue, literal), nil
	case OpGt, OpGte, OpLt, OpLte:
		left, lok := toFloat(fieldValue)
		right, rok := toFloat(literal)

		if !lok || !rok {
			return false, fmt.Errorf("operator %s requires numeric operands, got %T and %T", op, fieldValue, literal)
		}

		switch op {
		case OpGt:
			return left > right, nil
		case OpGte:
			return left >= right, nil
		case OpLt:
			return left < right, nil
		default:
			return left <= right, nil
		}
	default:
		return false, fmt.Errorf("unknown compare operator %q", op)
	}
}

// scalarEqual compares two JSON scalars, normalizing numeric types so a
// decoded float64 matches a literal int.
func scalarEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}

		return false
	}

	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
