package sqlquery_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/quickops/jobflow/pkg/executor/sqlquery"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func setupTestDatabase(t *testing.T) (context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("jobflow_test"),
			postgres.WithUsername("jobflow"),
			postgres.WithPassword("jobflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS cities")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "CREATE TABLE cities (name TEXT NOT NULL, population INT NOT NULL)")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "INSERT INTO cities (name, population) VALUES ('berlin', 3600000), ('paris', 2100000)")
	require.NoError(t, err)

	err = db.Close()
	require.NoError(t, err)

	t.Cleanup(cancel)

	return ctx, databaseURL
}

func TestExecutor_Execute_Select(t *testing.T) {
	ctx, databaseURL := setupTestDatabase(t)

	exec := sqlquery.NewExecutor(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	defer func() {
		err := exec.Close()
		require.NoError(t, err)
	}()

	config := models.ActionConfig{SQL: &models.SQLConfig{
		Driver: "postgres",
		DSN:    databaseURL,
		Query:  "SELECT name, population FROM cities WHERE name = :name",
	}}

	result, err := exec.Execute(ctx, config, map[string]any{"name": "berlin"})
	require.NoError(t, err)

	rows, isRows := result.([]map[string]any)
	require.True(t, isRows, "result should be a []map[string]any")
	require.Len(t, rows, 1)
	assert.Equal(t, "berlin", rows[0]["name"])
	assert.Equal(t, int64(3600000), rows[0]["population"])
}

func TestExecutor_Execute_Statement(t *testing.T) {
	ctx, databaseURL := setupTestDatabase(t)

	exec := sqlquery.NewExecutor(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	defer func() {
		err := exec.Close()
		require.NoError(t, err)
	}()

	config := models.ActionConfig{SQL: &models.SQLConfig{
		Driver: "postgres",
		DSN:    databaseURL,
		Query:  "UPDATE cities SET population = population + :growth",
	}}

	result, err := exec.Execute(ctx, config, map[string]any{"growth": 100})
	require.NoError(t, err)
	assert.Equal(t, "Affected rows: 2", result)
}

func TestExecutor_Execute_QueryError(t *testing.T) {
	ctx, databaseURL := setupTestDatabase(t)

	exec := sqlquery.NewExecutor(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	defer func() {
		err := exec.Close()
		require.NoError(t, err)
	}()

	config := models.ActionConfig{SQL: &models.SQLConfig{
		Driver: "postgres",
		DSN:    databaseURL,
		Query:  "SELECT nope FROM missing_table",
	}}

	_, err := exec.Execute(ctx, config, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")
}
