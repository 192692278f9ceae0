// Package engine orchestrates flow executions: wave-based scheduling of
// ready nodes over a bounded worker pool, condition gating, and the
// configured partial-failure strategy.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quickops/jobflow/pkg/execerr"
	"github.com/quickops/jobflow/pkg/graph"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/quickops/jobflow/pkg/otelhelper"
	"github.com/quickops/jobflow/pkg/persistence"
	"github.com/quickops/jobflow/pkg/runner"
)

// JobRunner executes one job to a terminal outcome. The concrete runner
// satisfies it; tests script outcomes through it.
type JobRunner interface {
	Run(ctx context.Context, job *models.Job, trigger models.TriggerMode, params map[string]any, opts runner.Options) (*models.JobRun, error)
}

// FlowAlertNotifier receives failed flow runs. The alert dispatcher
// satisfies it.
type FlowAlertNotifier interface {
	DispatchFlow(ctx context.Context, flow *models.JobFlow, run *models.FlowRun)
}

// Engine executes flows. The orchestration loop is the single writer of
// all per-run state; node workers only report over a channel.
type Engine struct {
	logger   *slog.Logger
	runner   JobRunner
	jobs     persistence.JobRepository
	flowRuns persistence.FlowRunRepository
	alerts   FlowAlertNotifier
	tracer   trace.Tracer
}

func New(logger *slog.Logger, jobRunner JobRunner, jobs persistence.JobRepository, flowRuns persistence.FlowRunRepository, alerts FlowAlertNotifier) *Engine {
	return &Engine{
		logger:   logger.With("module", "dag_engine"),
		runner:   jobRunner,
		jobs:     jobs,
		flowRuns: flowRuns,
		alerts:   alerts,
		tracer:   otel.Tracer("jobflow/engine"),
	}
}

// nodeResult is what a worker reports back to the coordinator for one
// executed node.
type nodeResult struct {
	nodeID   string
	status   models.RunStatus
	runID    string
	result   any
	errMsg   string
	fatalErr error // engine-internal fault, aborts the run
}

// execution is the mutable state of one flow run, owned exclusively by
// the coordinator goroutine.
type execution struct {
	flow     *models.JobFlow
	graph    *graph.Graph
	run      *models.FlowRun
	jobsByID map[string]*models.Job

	pending  map[string]bool
	executed map[string]bool
	failed   map[string]bool
	skipped  map[string]bool
	results  map[string]any
}

// Execute runs the flow to a terminal FlowRun. Node-level failures are
// resolved by the flow's error strategy and never surface as errors;
// only configuration and engine-internal faults do.
func (e *Engine) Execute(ctx context.Context, flow *models.JobFlow, trigger models.TriggerMode, user string, params map[string]any) (*models.FlowRun, error) {
	exec, err := e.prepare(ctx, flow, params)
	if err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "flow.execute",
		attribute.String(otelhelper.FlowIDKey, flow.ID),
		attribute.String(otelhelper.FlowNameKey, flow.Name),
		attribute.String(otelhelper.TriggerModeKey, string(trigger)),
	)
	defer span.End()

	run := models.NewFlowRun(flow.ID, trigger, user, params)
	exec.run = run

	span.SetAttributes(attribute.String(otelhelper.RunIDKey, run.ID))

	if err := e.flowRuns.Save(ctx, run); err != nil {
		return nil, execerr.NewEngineError("save flow run", err)
	}

	logger := e.logger.With("flow_id", flow.ID, "flow_run_id", run.ID)
	logger.InfoContext(ctx, "Starting flow execution",
		"nodes", len(flow.Nodes),
		"strategy", flow.Strategy(),
		"max_parallel", flow.Parallelism(),
	)

	for len(exec.pending) > 0 {
		if ctx.Err() != nil {
			return e.finishCancelled(ctx, logger, exec)
		}

		ready := exec.readyNodes()
		if len(ready) == 0 {
			// The dependency chain of everything still pending was cut by a
			// failure or skip; none of it can ever become ready.
			logger.WarnContext(ctx, "Remaining nodes unreachable, skipping", "nodes", sortedKeys(exec.pending))
			exec.skipPending(models.RunStatusSkipped)

			break
		}

		logger.DebugContext(ctx, "Dispatching wave", "ready", ready)

		fatal := e.runWave(ctx, exec, ready)
		if fatal != nil {
			return e.finishFatal(ctx, logger, exec, fatal)
		}

		if ctx.Err() != nil {
			return e.finishCancelled(ctx, logger, exec)
		}

		if err := e.flowRuns.Save(ctx, run); err != nil {
			return e.finishFatal(ctx, logger, exec, execerr.NewEngineError("save flow run", err))
		}
	}

	run.Finish()

	if err := e.flowRuns.Save(context.WithoutCancel(ctx), run); err != nil {
		return run, execerr.NewEngineError("save flow run", err)
	}

	logger.InfoContext(ctx, "Flow execution finished",
		"status", run.Status,
		"duration_ms", run.DurationMS,
		"failed_nodes", run.FailedNodes,
		"skipped_nodes", run.SkippedNodes,
	)

	if run.Status == models.FlowStatusFailed {
		otelhelper.SetError(span, fmt.Errorf("flow run failed: %v", run.FailedNodes))
		e.alerts.DispatchFlow(ctx, flow, run)
	}

	return run, nil
}

// prepare validates the definition and resolves every referenced job.
// All of this happens before any flow run state exists: a configuration
// error leaves no trace.
func (e *Engine) prepare(ctx context.Context, flow *models.JobFlow, params map[string]any) (*execution, error) {
	if err := flow.Validate(); err != nil {
		return nil, execerr.NewConfigError("flow", flow.ID, err)
	}

	g := graph.FromFlow(flow)
	if err := g.Validate(); err != nil {
		return nil, execerr.NewConfigError("flow", flow.ID, err)
	}

	if err := models.ValidateParams(flow.ParamsSchema, params); err != nil {
		return nil, execerr.NewConfigError("flow", flow.ID, err)
	}

	jobsByID := make(map[string]*models.Job)

	for _, node := range flow.Nodes {
		if node.IsVirtual() {
			continue
		}

		if _, ok := jobsByID[node.JobID]; ok {
			continue
		}

		job, err := e.jobs.GetByID(ctx, node.JobID)
		if err != nil {
			return nil, execerr.NewEngineError("load job "+node.JobID, err)
		}

		if job == nil {
			return nil, execerr.NewConfigError("flow", flow.ID, fmt.Errorf("node %s references unknown job %q", node.ID, node.JobID))
		}

		jobsByID[node.JobID] = job
	}

	exec := &execution{
		flow:     flow,
		graph:    g,
		jobsByID: jobsByID,
		pending:  make(map[string]bool, len(flow.Nodes)),
		executed: make(map[string]bool),
		failed:   make(map[string]bool),
		skipped:  make(map[string]bool),
		results:  make(map[string]any),
	}

	for _, node := range flow.Nodes {
		exec.pending[node.ID] = true
	}

	return exec, nil
}

// runWave executes one set of ready nodes concurrently, bounded by the
// flow's parallelism cap, then folds the results back into the run state.
// It returns a non-nil error only for engine-internal faults.
func (e *Engine) runWave(ctx context.Context, exec *execution, ready []string) error {
	limit := exec.flow.Parallelism()
	if len(ready) < limit {
		limit = len(ready)
	}

	// Workers read a frozen snapshot of the run state; the barrier below
	// guarantees nothing mutates it until the whole wave reported back.
	evalCtx := exec.snapshot()

	sem := make(chan struct{}, limit)
	resultsCh := make(chan nodeResult, len(ready))

	for _, nodeID := range ready {
		node := exec.flow.Node(nodeID)

		sem <- struct{}{}

		go func() {
			defer func() { <-sem }()

			resultsCh <- e.executeNode(ctx, exec, node, evalCtx)
		}()
	}

	var fatal error

	anyFailed := false

	for range ready {
		res := <-resultsCh

		if res.fatalErr != nil && fatal == nil {
			fatal = res.fatalErr
		}

		if err := exec.record(res); err != nil {
			// Append-only violation; a bug, not a node failure.
			if fatal == nil {
				fatal = execerr.NewEngineError("record node status", err)
			}

			continue
		}

		if exec.failed[res.nodeID] {
			anyFailed = true

			if exec.flow.Strategy() == models.StrategySkipDownstream {
				exec.skipDownstream(res.nodeID)
			}
		}
	}

	if fatal != nil {
		return fatal
	}

	if anyFailed && exec.flow.Strategy() == models.StrategyFailFast {
		// The wave in flight ran to completion; everything not yet started
		// is abandoned.
		exec.skipPending(models.RunStatusSkipped)
	}

	return nil
}

// executeNode runs a single node to its terminal status. Condition
// evaluation errors count as node failures, not engine faults.
func (e *Engine) executeNode(ctx context.Context, exec *execution, node *models.FlowNode, evalCtx models.EvalContext) nodeResult {
	pass, err := e.evaluateConditions(exec.flow, node, evalCtx)
	if err != nil {
		return nodeResult{nodeID: node.ID, status: models.RunStatusFailed, errMsg: "condition evaluation: " + err.Error()}
	}

	if !pass {
		return nodeResult{nodeID: node.ID, status: models.RunStatusSkipped}
	}

	if node.IsVirtual() {
		return nodeResult{nodeID: node.ID, status: models.RunStatusSuccess}
	}

	job := exec.jobsByID[node.JobID]
	params := mergeParams(exec.run.InputParams, node, evalCtx.Results)

	run, err := e.runner.Run(ctx, job, models.TriggerFlow, params, runner.Options{
		User:      exec.run.TriggerUser,
		FlowRunID: exec.run.ID,
		NodeID:    node.ID,
	})
	if err != nil {
		return nodeResult{nodeID: node.ID, fatalErr: err}
	}

	return nodeResult{
		nodeID: node.ID,
		status: run.Status,
		runID:  run.ID,
		result: decodeResult(run.Result),
		errMsg: run.ErrorMsg,
	}
}

// evaluateConditions checks the node's own condition and every condition
// on its incoming edges; all must hold for the node to run.
func (e *Engine) evaluateConditions(flow *models.JobFlow, node *models.FlowNode, evalCtx models.EvalContext) (bool, error) {
	if node.Condition != nil {
		pass, err := node.Condition.Evaluate(evalCtx)
		if err != nil || !pass {
			return false, err
		}
	}

	for _, edge := range flow.Edges {
		if edge.Target != node.ID || edge.Condition == nil {
			continue
		}

		pass, err := edge.Condition.Evaluate(evalCtx)
		if err != nil || !pass {
			return false, err
		}
	}

	return true, nil
}

func (e *Engine) finishCancelled(ctx context.Context, logger *slog.Logger, exec *execution) (*models.FlowRun, error) {
	exec.skipPending(models.RunStatusCancelled)
	exec.run.MarkCancelled()

	if err := e.flowRuns.Save(context.WithoutCancel(ctx), exec.run); err != nil {
		return exec.run, execerr.NewEngineError("save flow run", err)
	}

	logger.InfoContext(ctx, "Flow execution cancelled", "duration_ms", exec.run.DurationMS)

	return exec.run, nil
}

func (e *Engine) finishFatal(ctx context.Context, logger *slog.Logger, exec *execution, fatal error) (*models.FlowRun, error) {
	exec.run.MarkFailed(fatal.Error())

	if err := e.flowRuns.Save(context.WithoutCancel(ctx), exec.run); err != nil {
		logger.ErrorContext(ctx, "Failed to persist aborted flow run", "error", err)
	}

	logger.ErrorContext(ctx, "Flow execution aborted", "error", fatal)

	return exec.run, fatal
}

// readyNodes restricts the resolver's readiness to still-pending nodes.
func (x *execution) readyNodes() []string {
	var ready []string

	for _, id := range x.graph.ReadyNodes(x.executed, x.skipped, x.failed, x.flow.Strategy()) {
		if x.pending[id] {
			ready = append(ready, id)
		}
	}

	return ready
}

// record folds one node result into the run state.
func (x *execution) record(res nodeResult) error {
	if err := x.run.SetNodeStatus(res.nodeID, res.status); err != nil {
		return err
	}

	if res.runID != "" {
		x.run.NodeRuns[res.nodeID] = res.runID
	}

	if res.result != nil {
		x.results[res.nodeID] = res.result
	}

	delete(x.pending, res.nodeID)

	switch res.status {
	case models.RunStatusFailed, models.RunStatusTimeout:
		x.executed[res.nodeID] = true
		x.failed[res.nodeID] = true
	case models.RunStatusSkipped:
		x.skipped[res.nodeID] = true
	default:
		x.executed[res.nodeID] = true
	}

	return nil
}

// skipDownstream marks the whole transitive downstream of a failed node
// as skipped.
func (x *execution) skipDownstream(nodeID string) {
	for _, id := range x.graph.DownstreamClosure(nodeID) {
		if !x.pending[id] {
			continue
		}

		_ = x.run.SetNodeStatus(id, models.RunStatusSkipped)
		x.skipped[id] = true

		delete(x.pending, id)
	}
}

// skipPending marks every not-yet-started node with the given terminal
// status and empties the pending set.
func (x *execution) skipPending(status models.RunStatus) {
	for _, id := range sortedKeys(x.pending) {
		_ = x.run.SetNodeStatus(id, status)

		if status == models.RunStatusSkipped {
			x.skipped[id] = true
		}

		delete(x.pending, id)
	}
}

// snapshot captures the evaluation context workers read during a wave.
func (x *execution) snapshot() models.EvalContext {
	statuses := make(map[string]models.RunStatus, len(x.run.NodeStatuses))
	for id, status := range x.run.NodeStatuses {
		statuses[id] = status
	}

	results := make(map[string]any, len(x.results))
	for id, result := range x.results {
		results[id] = result
	}

	return models.EvalContext{
		Params:   x.run.InputParams,
		Statuses: statuses,
		Results:  results,
	}
}

// mergeParams layers the effective input params of a node: flow input
// params, overridden by node-level params, overridden by declared
// upstream-result bindings.
func mergeParams(flowParams map[string]any, node *models.FlowNode, results map[string]any) map[string]any {
	merged := make(map[string]any, len(flowParams)+len(node.Params)+len(node.UpstreamResults))

	for k, v := range flowParams {
		merged[k] = v
	}

	for k, v := range node.Params {
		merged[k] = v
	}

	for upstreamID, paramName := range node.UpstreamResults {
		if result, ok := results[upstreamID]; ok {
			merged[paramName] = result
		}
	}

	return merged
}

// decodeResult turns a stored result payload back into a value conditions
// and bindings can address. Non-JSON payloads stay raw strings.
func decodeResult(raw string) any {
	if raw == "" {
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}

	return v
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
