// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"

	"querygate/cli/internal/dsn"
)

type healthQueries struct {
	tableCount string
	size       string
	version    string
}

var healthByDialect = map[dsn.Dialect]healthQueries{
	dsn.Postgres: {
		tableCount: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public'`,
		size:       `SELECT pg_size_pretty(pg_database_size(current_database()))`,
		version:    `SELECT version()`,
	},
	dsn.MySQL: {
		tableCount: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE()`,
		size:       `SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = DATABASE()`,
		version:    `SELECT VERSION()`,
	},
	dsn.SQLite: {
		tableCount: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`,
		size:       `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
		version:    `SELECT sqlite_version()`,
	},
}

// Health pings the store and collects table_count, database_size and version.
// Individual statistic failures are skipped; only a failed ping is an error.
func (e *Executor) Health(ctx context.Context) (map[string]any, error) {
	if err := e.Ping(ctx); err != nil {
		return nil, err
	}

	details := map[string]any{}
	q, ok := healthByDialect[e.dialect]
	if !ok {
		return details, nil
	}
	for key, sql := range map[string]string{
		"table_count":   q.tableCount,
		"database_size": q.size,
		"version":       q.version,
	} {
		res, err := e.introspect(ctx, sql)
		if err != nil || len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
			e.log.Debugw("health statistic unavailable", "stat", key, "error", err)
			continue
		}
		details[key] = res.Rows[0][0]
	}
	return details, nil
}
