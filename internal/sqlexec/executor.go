// Package sqlexec executes read queries against relational stores over a
// pooled connection. PostgreSQL runs on a pgx pool; MySQL and SQLite run on
// database/sql with their respective drivers.
//
// Key features include:
//   - Column-tagged row tuples, or an affected-row count for statements without rows
//   - Read-only transactions on PostgreSQL
//   - A row ceiling so a single query cannot pull an unbounded result
//   - Cached schema inspection (tables, columns, foreign keys, row counts)
package sqlexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"querygate/cli/internal/dsn"
)

// DefaultMaxRows is the row ceiling applied when none is configured.
const DefaultMaxRows = 1000

// Result is a relational result before normalization.
type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	// ReturnsRows is false for statements that only report an affected count.
	ReturnsRows bool
	// Truncated is true when the row ceiling cut the result short.
	Truncated bool
}

// PoolStats reports connection pool sizing.
type PoolStats struct {
	Total int
	Idle  int
	InUse int
	Max   int
}

// conn is the driver-specific part of an Executor.
type conn interface {
	query(ctx context.Context, maxRows int, sql string, args ...any) (*Result, error)
	ping(ctx context.Context) error
	close()
	stats() PoolStats
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxRows sets the row ceiling.
func WithMaxRows(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Executor) { e.log = l }
}

// Executor executes SQL statements using a connection pool.
// It is safe for concurrent use.
type Executor struct {
	dialect   dsn.Dialect
	conn      conn
	inspector *SchemaInspector
	maxRows   int
	log       *zap.SugaredLogger
}

func newExecutor(dialect dsn.Dialect, c conn, opts ...Option) *Executor {
	e := &Executor{
		dialect: dialect,
		conn:    c,
		maxRows: DefaultMaxRows,
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.inspector = NewSchemaInspector(dialect, e.introspect)
	return e
}

// NewPostgres creates an Executor from an existing pgx pool.
func NewPostgres(pool *pgxpool.Pool, opts ...Option) *Executor {
	return newExecutor(dsn.Postgres, &pgxConn{pool: pool}, opts...)
}

// Open connects to the store behind connString, which must already be in the
// form the dialect's driver expects (see dsn.Parse).
func Open(ctx context.Context, dialect dsn.Dialect, connString string, opts ...Option) (*Executor, error) {
	switch dialect {
	case dsn.Postgres:
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool, opts...), nil
	case dsn.MySQL, dsn.SQLite:
		db, err := openSQL(dialect, connString)
		if err != nil {
			return nil, err
		}
		return NewSQL(db, dialect, opts...), nil
	}
	return nil, fmt.Errorf("sqlexec: unsupported dialect %q", dialect)
}

// Dialect returns the executor's dialect.
func (e *Executor) Dialect() dsn.Dialect { return e.dialect }

// Execute runs sql and returns its rows or affected count.
func (e *Executor) Execute(ctx context.Context, sql string) (*Result, error) {
	res, err := e.conn.query(ctx, e.maxRows, sql)
	if err != nil {
		e.log.Debugw("query failed", "dialect", e.dialect, "sql", preview(sql), "error", err)
		return nil, err
	}
	if res.Truncated {
		e.log.Infow("result truncated", "dialect", e.dialect, "max_rows", e.maxRows)
	}
	return res, nil
}

// introspect runs catalog queries for the schema inspector. It bypasses the
// row ceiling.
func (e *Executor) introspect(ctx context.Context, sql string, args ...any) (*Result, error) {
	return e.conn.query(ctx, 0, sql, args...)
}

// Ping verifies the pool can reach the server.
func (e *Executor) Ping(ctx context.Context) error { return e.conn.ping(ctx) }

// Close releases the pool.
func (e *Executor) Close() { e.conn.close() }

// Stats returns pool sizing.
func (e *Executor) Stats() PoolStats { return e.conn.stats() }

// Inspector returns the schema inspector bound to this executor.
func (e *Executor) Inspector() *SchemaInspector { return e.inspector }

func preview(sql string) string {
	sql = strings.TrimSpace(sql)
	if len(sql) > 100 {
		return sql[:100] + "..."
	}
	return sql
}
