package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/tscv-go/internal/telemetry"
)

// TracedPool wraps a DatabasePool and opens a client span per statement.
type TracedPool struct {
	pool DatabasePool
}

// NewTracedPool wraps pool.
func NewTracedPool(pool DatabasePool) *TracedPool {
	return &TracedPool{pool: pool}
}

// Query executes a query that returns rows.
func (db *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := startQuerySpan(ctx, "db.query", sql)
	defer span.End()

	rows, err := db.pool.Query(ctx, sql, args...)
	telemetry.RecordError(span, err)
	return rows, err
}

// QueryRow executes a query that returns at most one row. Scan errors
// surface to the caller, not the span.
func (db *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := startQuerySpan(ctx, "db.query_row", sql)
	defer span.End()

	return db.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a statement without returning rows.
func (db *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := startQuerySpan(ctx, "db.exec", sql)
	defer span.End()

	tag, err := db.pool.Exec(ctx, sql, args...)
	if err != nil {
		telemetry.RecordError(span, err)
		return tag, err
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	return tag, nil
}

func startQuerySpan(ctx context.Context, name, sql string) (context.Context, trace.Span) {
	return telemetry.StartSpan(ctx, telemetry.Tracer(), name,
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operationName(sql)),
		attribute.String("db.statement", strings.Join(strings.Fields(sql), " ")),
	)
}

// operationName returns the leading SQL keyword.
func operationName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
