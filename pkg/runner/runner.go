// Package runner executes single job attempts: one action executor
// invocation wrapped with timeout, retry, and run-record bookkeeping.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quickops/jobflow/pkg/execerr"
	"github.com/quickops/jobflow/pkg/executor"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/quickops/jobflow/pkg/otelhelper"
	"github.com/quickops/jobflow/pkg/persistence"
)

// AlertNotifier receives terminal run outcomes worth alerting on. The
// alert dispatcher satisfies it; tests substitute a recorder.
type AlertNotifier interface {
	DispatchJob(ctx context.Context, job *models.Job, run *models.JobRun, kind models.AlertKind)
}

// Options carry per-invocation context beyond the job definition itself.
type Options struct {
	// Deadline bounds the whole lineage including retries. Zero means the
	// ctx deadline (if any) applies alone.
	Deadline time.Time
	// User is the originating user for manual runs.
	User string
	// FlowRunID and NodeID back-reference the flow execution that
	// triggered this run, when there is one.
	FlowRunID string
	NodeID    string
}

// Runner owns the job run lifecycle. All side effects go through the run
// repository and the alert notifier; it never touches flow-level state.
type Runner struct {
	logger   *slog.Logger
	registry *executor.Registry
	runs     persistence.JobRunRepository
	alerts   AlertNotifier
	tracer   trace.Tracer
}

func NewRunner(logger *slog.Logger, registry *executor.Registry, runs persistence.JobRunRepository, alerts AlertNotifier) *Runner {
	return &Runner{
		logger:   logger.With("module", "job_runner"),
		registry: registry,
		runs:     runs,
		alerts:   alerts,
		tracer:   otel.Tracer("jobflow/runner"),
	}
}

// Run executes the job until a terminal outcome: success, exhausted
// retries, timeout, or cancellation. The returned run is the last attempt
// of the lineage. A non-nil error is returned only for configuration and
// engine-internal faults; action-level outcomes are expressed through the
// run's status.
func (r *Runner) Run(ctx context.Context, job *models.Job, trigger models.TriggerMode, params map[string]any, opts Options) (*models.JobRun, error) {
	if !opts.Deadline.IsZero() {
		var cancel context.CancelFunc

		ctx, cancel = context.WithDeadline(ctx, opts.Deadline)
		defer cancel()
	}

	if err := models.ValidateParams(job.ParamsSchema, params); err != nil {
		return nil, execerr.NewConfigError("job", job.ID, err)
	}

	if err := r.registry.ValidateConfig(job.Type, job.Config); err != nil {
		return nil, execerr.NewConfigError("job", job.ID, err)
	}

	exec, err := r.registry.Create(job.Type)
	if err != nil {
		return nil, execerr.NewEngineError("create executor", err)
	}

	var run *models.JobRun

	for {
		if run == nil {
			run = models.NewJobRun(job.ID, trigger, params)
			run.TriggerUser = opts.User
			run.FlowRunID = opts.FlowRunID
			run.NodeID = opts.NodeID
		} else {
			run = run.NewRetryAttempt()
		}

		if err := r.runs.Save(ctx, run); err != nil {
			return nil, execerr.NewEngineError("save job run", err)
		}

		logger := r.logger.With("job_id", job.ID, "run_id", run.ID, "trace_id", run.TraceID, "attempt", run.Attempt)
		logger.InfoContext(ctx, "Executing job attempt", "action_type", job.Type)

		attemptCtx, span := otelhelper.StartSpan(ctx, r.tracer, "job.attempt",
			attribute.String(otelhelper.JobIDKey, job.ID),
			attribute.String(otelhelper.RunIDKey, run.ID),
			attribute.String(otelhelper.RunTraceKey, run.TraceID),
			attribute.String(otelhelper.ActionTypeKey, string(job.Type)),
			attribute.String(otelhelper.TriggerModeKey, string(run.Trigger)),
		)

		result, execErr := r.executeAttempt(attemptCtx, exec, job, params)
		if execErr != nil {
			otelhelper.SetError(span, execErr)
		}

		span.End()

		switch {
		case execErr == nil:
			run.MarkSuccess(renderResult(result))

			if err := r.saveFinal(ctx, run); err != nil {
				return run, err
			}

			logger.InfoContext(ctx, "Job attempt succeeded", "duration_ms", run.DurationMS)

			// A lineage that recovered after failing gets a recovery notice.
			if run.Attempt > 0 {
				r.alerts.DispatchJob(ctx, job, run, models.AlertSuccess)
			}

			return run, nil

		case execerr.IsTimeout(execErr):
			// Timeouts are terminal for the attempt and never retried. This
			// covers both the job's own timeout and a caller deadline that
			// expired first.
			run.MarkTimeout(execErr.Error())

			if err := r.saveFinal(ctx, run); err != nil {
				return run, err
			}

			logger.WarnContext(ctx, "Job attempt timed out", "timeout_sec", job.TimeoutSec)

			if job.AlertOnTimeout {
				r.alerts.DispatchJob(ctx, job, run, models.AlertTimeout)
			}

			return run, nil

		case ctx.Err() != nil:
			run.MarkCancelled(execErr.Error())

			if err := r.saveFinal(ctx, run); err != nil {
				return run, err
			}

			logger.InfoContext(ctx, "Job attempt cancelled")

			return run, nil

		default:
			run.MarkFailed(execErr.Error())

			if err := r.saveFinal(ctx, run); err != nil {
				return run, err
			}

			if run.Attempt >= job.RetryCount {
				logger.ErrorContext(ctx, "Job failed, retries exhausted", "error", execErr, "attempts", run.Attempt+1)

				if job.AlertOnFailure {
					r.alerts.DispatchJob(ctx, job, run, models.AlertFailure)
				}

				return run, nil
			}

			logger.WarnContext(ctx, "Job attempt failed, scheduling retry",
				"error", execErr,
				"retry_in_sec", job.RetryIntervalSec,
				"retries_left", job.RetryCount-run.Attempt,
			)

			select {
			case <-time.After(job.RetryInterval()):
			case <-ctx.Done():
				next := run.NewRetryAttempt()
				next.MarkCancelled("cancelled while waiting to retry")

				if err := r.saveFinal(ctx, next); err != nil {
					return next, err
				}

				return next, nil
			}
		}
	}
}

// executeAttempt runs one executor invocation bounded by the job timeout.
// A deadline overrun of the attempt itself, as opposed to the caller's
// context, is classified as a timeout.
func (r *Runner) executeAttempt(ctx context.Context, exec executor.ActionExecutor, job *models.Job, params map[string]any) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, job.Timeout())
	defer cancel()

	result, err := exec.Execute(attemptCtx, job.Config, params)
	if err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		return nil, execerr.NewTimeoutError(job.ID, err)
	}

	if err != nil {
		return nil, execerr.NewActionError(job.ID, string(job.Type), err)
	}

	return result, nil
}

// saveFinal persists a terminal run record. It must succeed even when the
// caller's context was cancelled, so the write runs detached from it.
func (r *Runner) saveFinal(ctx context.Context, run *models.JobRun) error {
	if err := r.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		return execerr.NewEngineError("save job run", err)
	}

	return nil
}

func renderResult(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(b)
	}
}
