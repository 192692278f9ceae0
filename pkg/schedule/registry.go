// Package schedule keeps periodic-trigger registrations consistent with
// the enabled/disabled state and cron expressions of job and flow
// definitions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// TriggerRegistry is the periodic-trigger collaborator: it fires a
// callback whenever a registered expression is due. Registrations are
// keyed by caller-chosen ids.
type TriggerRegistry interface {
	// Register ensures the id is registered under expr. Re-registering an
	// unchanged expression is a no-op; a changed expression replaces the
	// old registration.
	Register(id, expr string, callback func()) error
	Unregister(id string)
	Entries() map[string]string // id -> expression
	Start()
	Stop(ctx context.Context) error
}

type registration struct {
	expr  string
	entry cron.EntryID
}

// CronRegistry implements TriggerRegistry on an in-process cron runner.
// A firing that overlaps a still-running previous firing of the same
// registration is skipped rather than stacked.
type CronRegistry struct {
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]registration
}

func NewCronRegistry(logger *slog.Logger) *CronRegistry {
	logger = logger.With("module", "trigger_registry")
	cronLogger := cronSlogAdapter{logger: logger}

	return &CronRegistry{
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		entries: make(map[string]registration),
	}
}

func (r *CronRegistry) Register(id, expr string, callback func()) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[id]; ok {
		if existing.expr == expr {
			return nil
		}

		r.cron.Remove(existing.entry)
	}

	entry, err := r.cron.AddFunc(expr, callback)
	if err != nil {
		return fmt.Errorf("failed to register schedule %s: %w", id, err)
	}

	r.entries[id] = registration{expr: expr, entry: entry}
	r.logger.Info("Registered schedule", "id", id, "cron", expr)

	return nil
}

func (r *CronRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[id]
	if !ok {
		return
	}

	r.cron.Remove(existing.entry)
	delete(r.entries, id)
	r.logger.Info("Unregistered schedule", "id", id)
}

func (r *CronRegistry) Entries() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make(map[string]string, len(r.entries))
	for id, reg := range r.entries {
		entries[id] = reg.expr
	}

	return entries
}

func (r *CronRegistry) Start() {
	r.cron.Start()
}

// Stop halts firing and waits for in-flight callbacks, bounded by ctx.
func (r *CronRegistry) Stop(ctx context.Context) error {
	stopped := r.cron.Stop()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronSlogAdapter struct {
	logger *slog.Logger
}

func (a cronSlogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a cronSlogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
