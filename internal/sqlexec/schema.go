// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"querygate/cli/internal/dsn"
)

// SchemaInfo describes the tables of one database.
type SchemaInfo struct {
	Tables      []TableInfo
	ForeignKeys []ForeignKey
}

// TableInfo describes one table or view.
type TableInfo struct {
	Name     string
	Type     string
	RowCount int64
	Columns  []ColumnInfo
}

// ColumnInfo describes one column.
type ColumnInfo struct {
	Name       string
	Type       string
	Nullable   bool
	Default    string
	PrimaryKey bool
	// EnumValues lists the values allowed by a CHECK (... IN (...)) constraint.
	EnumValues []string
}

// ForeignKey is a single-column foreign key edge.
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// queryFunc runs a catalog query.
type queryFunc func(ctx context.Context, sql string, args ...any) (*Result, error)

// SchemaInspector queries the catalog of a relational store and caches the
// result until Invalidate is called.
type SchemaInspector struct {
	dialect dsn.Dialect
	query   queryFunc

	mu    sync.RWMutex
	cache *SchemaInfo
}

// NewSchemaInspector creates a new SchemaInspector for the dialect.
func NewSchemaInspector(dialect dsn.Dialect, query queryFunc) *SchemaInspector {
	return &SchemaInspector{dialect: dialect, query: query}
}

// Schema returns the cached schema, loading it on first use or when refresh is set.
func (si *SchemaInspector) Schema(ctx context.Context, refresh bool) (*SchemaInfo, error) {
	if !refresh {
		si.mu.RLock()
		cached := si.cache
		si.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
	}

	var (
		info *SchemaInfo
		err  error
	)
	switch si.dialect {
	case dsn.Postgres:
		info, err = si.loadPostgres(ctx)
	case dsn.MySQL:
		info, err = si.loadMySQL(ctx)
	case dsn.SQLite:
		info, err = si.loadSQLite(ctx)
	default:
		err = fmt.Errorf("sqlexec: no schema inspection for %q", si.dialect)
	}
	if err != nil {
		return nil, err
	}

	si.mu.Lock()
	si.cache = info
	si.mu.Unlock()
	return info, nil
}

// Invalidate drops the cached schema.
func (si *SchemaInspector) Invalidate() {
	si.mu.Lock()
	si.cache = nil
	si.mu.Unlock()
}

const (
	pgTablesQuery = `
		SELECT t.table_name, t.table_type, COALESCE(s.n_live_tup, 0)
		FROM information_schema.tables t
		LEFT JOIN pg_stat_user_tables s ON s.schemaname = t.table_schema AND s.relname = t.table_name
		WHERE t.table_schema = $1
		ORDER BY t.table_name`

	pgColumnsQuery = `
		SELECT table_name, column_name, data_type, is_nullable, COALESCE(column_default, '')
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`

	pgPrimaryKeysQuery = `
		SELECT kc.table_name, kc.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kc
		  ON tc.constraint_name = kc.constraint_name AND tc.table_schema = kc.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'`

	pgForeignKeysQuery = `
		SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
		ORDER BY tc.table_name, kcu.column_name`

	pgCheckConstraintsQuery = `
		SELECT c.table_name, c.column_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.constraint_column_usage c
		  ON cc.constraint_name = c.constraint_name AND cc.constraint_schema = c.constraint_schema
		WHERE cc.constraint_schema = $1`

	mysqlTablesQuery = `
		SELECT table_name, table_type, COALESCE(table_rows, 0)
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		ORDER BY table_name`

	mysqlColumnsQuery = `
		SELECT table_name, column_name, data_type, is_nullable, COALESCE(column_default, ''), column_key
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`

	mysqlForeignKeysQuery = `
		SELECT table_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL
		ORDER BY table_name, column_name`

	sqliteTablesQuery = `
		SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`
)

const pgSchema = "public"

func (si *SchemaInspector) loadPostgres(ctx context.Context) (*SchemaInfo, error) {
	info, index, err := si.loadTables(ctx, pgTablesQuery, pgSchema)
	if err != nil {
		return nil, err
	}

	cols, err := si.query(ctx, pgColumnsQuery, pgSchema)
	if err != nil {
		return nil, err
	}
	addColumns(index, cols)

	if pks, err := si.query(ctx, pgPrimaryKeysQuery, pgSchema); err == nil {
		for _, row := range pks.Rows {
			if c := findColumn(index, str(row[0]), str(row[1])); c != nil {
				c.PrimaryKey = true
			}
		}
	}
	if checks, err := si.query(ctx, pgCheckConstraintsQuery, pgSchema); err == nil {
		for _, row := range checks.Rows {
			if c := findColumn(index, str(row[0]), str(row[1])); c != nil {
				c.EnumValues = extractEnumValues(str(row[2]))
			}
		}
	}

	fks, err := si.query(ctx, pgForeignKeysQuery, pgSchema)
	if err != nil {
		return nil, err
	}
	info.ForeignKeys = foreignKeys(fks)
	return info, nil
}

func (si *SchemaInspector) loadMySQL(ctx context.Context) (*SchemaInfo, error) {
	info, index, err := si.loadTables(ctx, mysqlTablesQuery)
	if err != nil {
		return nil, err
	}

	cols, err := si.query(ctx, mysqlColumnsQuery)
	if err != nil {
		return nil, err
	}
	addColumns(index, cols)
	for _, row := range cols.Rows {
		if len(row) > 5 && str(row[5]) == "PRI" {
			if c := findColumn(index, str(row[0]), str(row[1])); c != nil {
				c.PrimaryKey = true
			}
		}
	}

	fks, err := si.query(ctx, mysqlForeignKeysQuery)
	if err != nil {
		return nil, err
	}
	info.ForeignKeys = foreignKeys(fks)
	return info, nil
}

func (si *SchemaInspector) loadSQLite(ctx context.Context) (*SchemaInfo, error) {
	tables, err := si.query(ctx, sqliteTablesQuery)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{}
	for _, row := range tables.Rows {
		name := str(row[0])
		t := TableInfo{Name: name, Type: strings.ToUpper(str(row[1]))}
		literal := "'" + strings.ReplaceAll(name, "'", "''") + "'"

		cols, err := si.query(ctx, `SELECT name, type, "notnull", COALESCE(dflt_value, ''), pk FROM pragma_table_info(`+literal+`)`)
		if err != nil {
			return nil, err
		}
		for _, c := range cols.Rows {
			t.Columns = append(t.Columns, ColumnInfo{
				Name:       str(c[0]),
				Type:       str(c[1]),
				Nullable:   num(c[2]) == 0,
				Default:    str(c[3]),
				PrimaryKey: num(c[4]) > 0,
			})
		}

		if count, err := si.query(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(dsn.SQLite, name)); err == nil && len(count.Rows) == 1 {
			t.RowCount = num(count.Rows[0][0])
		}

		fks, err := si.query(ctx, `SELECT "table", "from", "to" FROM pragma_foreign_key_list(`+literal+`)`)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks.Rows {
			info.ForeignKeys = append(info.ForeignKeys, ForeignKey{
				Table: name, Column: str(fk[1]), ReferencedTable: str(fk[0]), ReferencedColumn: str(fk[2]),
			})
		}
		info.Tables = append(info.Tables, t)
	}
	return info, nil
}

func (si *SchemaInspector) loadTables(ctx context.Context, query string, args ...any) (*SchemaInfo, map[string]*TableInfo, error) {
	res, err := si.query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	info := &SchemaInfo{Tables: make([]TableInfo, 0, len(res.Rows))}
	for _, row := range res.Rows {
		info.Tables = append(info.Tables, TableInfo{Name: str(row[0]), Type: str(row[1]), RowCount: num(row[2])})
	}
	index := make(map[string]*TableInfo, len(info.Tables))
	for i := range info.Tables {
		index[info.Tables[i].Name] = &info.Tables[i]
	}
	return info, index, nil
}

func addColumns(index map[string]*TableInfo, res *Result) {
	for _, row := range res.Rows {
		t, ok := index[str(row[0])]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, ColumnInfo{
			Name:     str(row[1]),
			Type:     str(row[2]),
			Nullable: strings.EqualFold(str(row[3]), "YES"),
			Default:  str(row[4]),
		})
	}
}

func findColumn(index map[string]*TableInfo, table, column string) *ColumnInfo {
	t, ok := index[table]
	if !ok {
		return nil
	}
	for i := range t.Columns {
		if t.Columns[i].Name == column {
			return &t.Columns[i]
		}
	}
	return nil
}

func foreignKeys(res *Result) []ForeignKey {
	out := make([]ForeignKey, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, ForeignKey{
			Table: str(row[0]), Column: str(row[1]), ReferencedTable: str(row[2]), ReferencedColumn: str(row[3]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

var (
	enumInPattern  = regexp.MustCompile(`(?i)IN\s*\(\s*([^)]+)\)`)
	enumAnyPattern = regexp.MustCompile(`(?i)=\s*ANY\s*\(\s*\(?\s*ARRAY\s*\[([^\]]+)\]`)
)

// extractEnumValues extracts enum values from a check constraint clause.
// It supports patterns like:
//   - "status IN ('queued','running','done','failed')"
//   - "status = ANY (ARRAY['queued'::text, 'running'::text, ...])"
func extractEnumValues(checkClause string) []string {
	if m := enumInPattern.FindStringSubmatch(checkClause); m != nil {
		return parseEnumValueList(m[1])
	}
	if m := enumAnyPattern.FindStringSubmatch(checkClause); m != nil {
		return parseEnumValueList(m[1])
	}
	return nil
}

// parseEnumValueList parses a comma-separated list of quoted values,
// dropping type casts like ::text.
func parseEnumValueList(valueList string) []string {
	var result []string
	for _, val := range strings.Split(valueList, ",") {
		val = strings.TrimSpace(val)
		if idx := strings.Index(val, "::"); idx >= 0 {
			val = val[:idx]
		}
		val = strings.Trim(strings.TrimSpace(val), "'\"()")
		if val != "" {
			result = append(result, val)
		}
	}
	return result
}

// QuoteIdent quotes a table name for the dialect.
func QuoteIdent(dialect dsn.Dialect, name string) string {
	switch dialect {
	case dsn.Postgres:
		return pgx.Identifier{name}.Sanitize()
	case dsn.MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func num(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(x), 10, 64)
		return n
	}
	return 0
}
