// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxConn struct {
	pool *pgxpool.Pool
}

// query runs sql inside a read-only transaction on one pooled connection.
func (c *pgxConn) query(ctx context.Context, maxRows int, sql string, args ...any) (*Result, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	res := &Result{Columns: make([]string, len(fds)), Rows: [][]any{}, ReturnsRows: len(fds) > 0}
	for i, fd := range fds {
		res.Columns[i] = fd.Name
	}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !res.ReturnsRows {
		res.RowsAffected = rows.CommandTag().RowsAffected()
	}
	return res, nil
}

func (c *pgxConn) ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *pgxConn) close() { c.pool.Close() }

func (c *pgxConn) stats() PoolStats {
	s := c.pool.Stat()
	return PoolStats{
		Total: int(s.TotalConns()),
		Idle:  int(s.IdleConns()),
		InUse: int(s.AcquiredConns()),
		Max:   int(s.MaxConns()),
	}
}
