// Package sqlquery implements the sql action: one statement run against the
// configured database, with :name placeholders bound to input params as
// driver-level query arguments.
package sqlquery

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq" // postgres driver
	"github.com/quickops/jobflow/pkg/models"
)

// Executor runs a job's sql config section. Connections are pooled per
// driver and DSN so jobs on the same database share a pool across runs.
type Executor struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*sql.DB
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{
		logger: logger,
		conns:  make(map[string]*sql.DB),
	}
}

func (e *Executor) Type() models.ActionType {
	return models.ActionTypeSQL
}

// Schema returns the JSON schema for the sql config section.
func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"driver": map[string]any{
				"type":        "string",
				"description": "Database driver name.",
				"enum":        []string{"postgres"},
			},
			"dsn": map[string]any{
				"type":        "string",
				"description": "Connection string for the target database.",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Statement to run. :name placeholders are bound to input params.",
			},
		},
		"required":             []string{"driver", "dsn", "query"},
		"additionalProperties": false,
	}
}

// Execute runs the statement. SELECT statements return the result rows as
// a list of column→value maps; anything else returns the affected row
// count.
func (e *Executor) Execute(ctx context.Context, config models.ActionConfig, params map[string]any) (any, error) {
	cfg := config.SQL
	if cfg == nil {
		return nil, fmt.Errorf("sql config section missing")
	}

	db, err := e.open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	query, args := bindParams(cfg.Query, params)

	if isSelect(cfg.Query) {
		return e.runQuery(ctx, db, query, args)
	}

	return e.runExec(ctx, db, query, args)
}

// Close releases every pooled connection.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result *multierror.Error

	for key, db := range e.conns {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s: %w", key, err))
		}

		delete(e.conns, key)
	}

	return result.ErrorOrNil()
}

func (e *Executor) open(driver, dsn string) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := driver + "|" + dsn
	if db, ok := e.conns[key]; ok {
		return db, nil
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	e.conns[key] = db

	return db, nil
}

func (e *Executor) runQuery(ctx context.Context, db *sql.DB, query string, args []any) (any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			e.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	results := make([]map[string]any, 0)

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))

		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
			} else {
				row[column] = values[i]
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	e.logger.InfoContext(ctx, "SQL query completed", "rows", len(results))

	return results, nil
}

func (e *Executor) runExec(ctx context.Context, db *sql.DB, query string, args []any) (any, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}

	e.logger.InfoContext(ctx, "SQL statement completed", "affected_rows", affected)

	return fmt.Sprintf("Affected rows: %d", affected), nil
}

var placeholderPattern = regexp.MustCompile(`(^|[^:]):([A-Za-z_][A-Za-z0-9_]*)`)

// bindParams rewrites :name placeholders that match an input param into
// positional arguments. Unmatched placeholders and ::type casts are left
// untouched.
func bindParams(query string, params map[string]any) (string, []any) {
	if len(params) == 0 {
		return query, nil
	}

	var args []any

	positions := make(map[string]int)

	bound := placeholderPattern.ReplaceAllStringFunc(query, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		prefix, name := groups[1], groups[2]

		value, ok := params[name]
		if !ok {
			return match
		}

		position, seen := positions[name]
		if !seen {
			args = append(args, value)
			position = len(args)
			positions[name] = position
		}

		return prefix + "$" + strconv.Itoa(position)
	})

	return bound, args
}

func isSelect(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT")
}
