package cmd

import (
	"log/slog"

	"github.com/quickops/jobflow/pkg/executor"
	"github.com/quickops/jobflow/pkg/executor/httpcall"
	"github.com/quickops/jobflow/pkg/executor/script"
	"github.com/quickops/jobflow/pkg/executor/shellcmd"
	"github.com/quickops/jobflow/pkg/executor/sqlquery"
)

// NewExecutorRegistry assembles the closed set of action executors.
func NewExecutorRegistry(logger *slog.Logger) *executor.Registry {
	registry := executor.NewRegistry(logger)

	registry.Register(httpcall.NewExecutor(logger))
	registry.Register(shellcmd.NewExecutor(logger))
	registry.Register(sqlquery.NewExecutor(logger))
	registry.Register(script.NewExecutor(logger))

	return registry
}
