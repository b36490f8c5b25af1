// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"querygate/cli/internal/dsn"
)

// rowStatement matches statements that produce a result set.
var rowStatement = regexp.MustCompile(`(?i)^\s*\(?\s*(select|with|show|explain|describe|desc|pragma|values|table)\b`)

func driverName(dialect dsn.Dialect) string {
	if dialect == dsn.SQLite {
		return "sqlite"
	}
	return "mysql"
}

func openSQL(dialect dsn.Dialect, connString string) (*sql.DB, error) {
	db, err := sql.Open(driverName(dialect), connString)
	if err != nil {
		return nil, err
	}
	if dialect == dsn.SQLite && (strings.Contains(connString, ":memory:") || strings.Contains(connString, "mode=memory")) {
		// every connection to an in-memory database is a new database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewSQL creates an Executor over a database/sql pool.
func NewSQL(db *sql.DB, dialect dsn.Dialect, opts ...Option) *Executor {
	return newExecutor(dialect, &sqlConn{db: db, dialect: dialect}, opts...)
}

type sqlConn struct {
	db      *sql.DB
	dialect dsn.Dialect
}

func (c *sqlConn) query(ctx context.Context, maxRows int, query string, args ...any) (*Result, error) {
	if !rowStatement.MatchString(query) {
		r, err := c.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		n, _ := r.RowsAffected()
		return &Result{Columns: []string{}, Rows: [][]any{}, RowsAffected: n}, nil
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols, Rows: [][]any{}, ReturnsRows: true}
	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = columnValue(v, types[i])
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

// columnValue decodes the text-protocol bytes MySQL returns for numeric
// columns into numbers. Other values pass through unchanged.
func columnValue(v any, ct *sql.ColumnType) any {
	b, ok := v.([]byte)
	if !ok || ct == nil {
		return v
	}
	switch strings.ToUpper(ct.DatabaseTypeName()) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
	case "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT":
		if n, err := strconv.ParseUint(string(b), 10, 64); err == nil {
			return n
		}
	case "DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT":
		return b
	}
	return string(b)
}

func (c *sqlConn) ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *sqlConn) close() { _ = c.db.Close() }

func (c *sqlConn) stats() PoolStats {
	s := c.db.Stats()
	return PoolStats{
		Total: s.OpenConnections,
		Idle:  s.Idle,
		InUse: s.InUse,
		Max:   s.MaxOpenConnections,
	}
}
