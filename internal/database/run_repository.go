package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/irfndi/tscv-go/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// ErrRunNotFound is returned when no run matches the requested ID.
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS evaluation_runs (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		metric TEXT NOT NULL,
		score NUMERIC(20, 6) NOT NULL,
		params JSONB NOT NULL DEFAULT '{}'::jsonb,
		summary JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
`

const createRunsKindIndex = `
	CREATE INDEX IF NOT EXISTS idx_evaluation_runs_kind_created
	ON evaluation_runs (kind, created_at DESC)
`

// RunRepository persists train, cross-validation and backtest summaries.
type RunRepository struct {
	pool DatabasePool
}

// NewRunRepository creates a new run repository.
func NewRunRepository(pool DatabasePool) *RunRepository {
	return &RunRepository{pool: pool}
}

// EnsureSchema creates the evaluation_runs table and its index.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createRunsTable, createRunsKindIndex} {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create evaluation_runs schema: %w", err)
		}
	}
	return nil
}

// Save inserts a run and fills CreatedAt from the database.
//
// Parameters:
//
//	ctx: Context.
//	run: The run to store; ID must be set.
//
// Returns:
//
//	error: Error if operation fails.
func (r *RunRepository) Save(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	query := `
		INSERT INTO evaluation_runs (id, kind, metric, score, params, summary)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		run.ID, run.Kind, run.Metric, run.Score,
		jsonOrEmpty(run.Params), jsonOrEmpty(run.Summary),
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns one run by ID, or ErrRunNotFound.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.RunRecord, error) {
	query := `
		SELECT id, kind, metric, score, params, summary, created_at
		FROM evaluation_runs
		WHERE id = $1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// List returns the newest runs first, optionally filtered by kind.
func (r *RunRepository) List(ctx context.Context, kind string, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `
		SELECT id, kind, metric, score, params, summary, created_at
		FROM evaluation_runs
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.RunRecord, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Delete removes one run, or returns ErrRunNotFound.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM evaluation_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (*models.RunRecord, error) {
	var run models.RunRecord
	var params, summary []byte
	if err := row.Scan(&run.ID, &run.Kind, &run.Metric, &run.Score, &params, &summary, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Params = json.RawMessage(params)
	run.Summary = json.RawMessage(summary)
	return &run, nil
}

func jsonOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
