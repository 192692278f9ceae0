package models

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
)

// ErrorStrategy governs how a node failure affects the rest of a flow run.
type ErrorStrategy string

const (
	// StrategyFailFast skips every node not yet started once any node fails.
	StrategyFailFast ErrorStrategy = "fail_fast"
	// StrategyContinue lets independent branches proceed normally.
	StrategyContinue ErrorStrategy = "continue"
	// StrategySkipDownstream skips only the transitive downstream of a failure.
	StrategySkipDownstream ErrorStrategy = "skip_downstream"
)

// DefaultMaxParallel bounds concurrent node executions per flow run when
// the definition leaves it unset.
const DefaultMaxParallel = 5

// FlowNode is one vertex of a flow DAG. A node without a job reference is
// structural: it produces a status through its condition but performs no
// work.
type FlowNode struct {
	ID        string         `json:"id"                 validate:"required"`
	Name      string         `json:"name,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	Condition *Condition     `json:"condition,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	// UpstreamResults maps an upstream node id to the input-param name its
	// result is bound to when this node runs.
	UpstreamResults map[string]string `json:"upstream_results,omitempty"`
}

// IsVirtual reports whether the node carries no job and is evaluated only
// through its condition.
func (n *FlowNode) IsVirtual() bool {
	return n.JobID == ""
}

// FlowEdge is a directed dependency between two nodes. An edge condition
// further gates the target: the target is skipped unless every condition
// on its incoming edges holds.
type FlowEdge struct {
	Source    string     `json:"source" validate:"required"`
	Target    string     `json:"target" validate:"required"`
	Condition *Condition `json:"condition,omitempty"`
}

// JobFlow is a DAG definition over jobs. Like Job it is read-only to the
// engine.
type JobFlow struct {
	ID            string         `json:"id"              validate:"required"`
	Name          string         `json:"name"            validate:"required,min=1,max=100"`
	Nodes         []*FlowNode    `json:"nodes"           validate:"required,min=1"`
	Edges         []*FlowEdge    `json:"edges"`
	ErrorStrategy ErrorStrategy  `json:"error_strategy"  validate:"omitempty,oneof=fail_fast continue skip_downstream"`
	MaxParallel   int            `json:"max_parallel"    validate:"min=0"`
	Enabled       bool           `json:"enabled"`
	CronExpr      string         `json:"cron_expr,omitempty"`
	AlertChannels []string       `json:"alert_channels,omitempty"`
	ParamsSchema  map[string]any `json:"params_schema,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Strategy returns the configured error strategy, defaulting to continue.
func (f *JobFlow) Strategy() ErrorStrategy {
	if f.ErrorStrategy == "" {
		return StrategyContinue
	}

	return f.ErrorStrategy
}

// Parallelism returns the concurrency cap for one run of this flow.
func (f *JobFlow) Parallelism() int {
	if f.MaxParallel <= 0 {
		return DefaultMaxParallel
	}

	return f.MaxParallel
}

// Node returns the node with the given id, or nil.
func (f *JobFlow) Node(id string) *FlowNode {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// Validate checks the definition structurally: tags, duplicate node ids,
// condition grammar on nodes and edges, and the cron expression. Graph
// shape (cycles, dangling edges) is the resolver's concern.
func (f *JobFlow) Validate() error {
	var result *multierror.Error

	if err := validate.Struct(f); err != nil {
		result = multierror.Append(result, err)
	}

	seen := make(map[string]bool, len(f.Nodes))

	for _, n := range f.Nodes {
		if seen[n.ID] {
			result = multierror.Append(result, fmt.Errorf("duplicate node id %q", n.ID))
		}

		seen[n.ID] = true

		if n.Condition != nil {
			if err := n.Condition.Validate(); err != nil {
				result = multierror.Append(result, fmt.Errorf("node %s: %w", n.ID, err))
			}
		}
	}

	for _, e := range f.Edges {
		if e.Condition != nil {
			if err := e.Condition.Validate(); err != nil {
				result = multierror.Append(result, fmt.Errorf("edge %s->%s: %w", e.Source, e.Target, err))
			}
		}
	}

	if f.CronExpr != "" {
		if _, err := cron.ParseStandard(f.CronExpr); err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid cron expression %q: %w", f.CronExpr, err))
		}
	}

	return result.ErrorOrNil()
}
