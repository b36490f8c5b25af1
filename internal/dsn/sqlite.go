// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"path/filepath"
	"strings"
)

// SQLiteResolver handles sqlite:// URLs and file: URIs.
//
//	sqlite:///var/data/app.db  -> /var/data/app.db
//	sqlite://local.db          -> local.db
//	sqlite://:memory:          -> :memory:
//	file:app.db?mode=ro        -> file:app.db?mode=ro
type SQLiteResolver struct{}

func NewSQLiteResolver() *SQLiteResolver { return &SQLiteResolver{} }

func (r *SQLiteResolver) Parse(dsn string) (*DSNInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	info := &DSNInfo{Type: SQLite, Params: make(map[string]string), Original: dsn}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "file:"):
		info.Path = trimmed
	case strings.HasPrefix(lower, "sqlite://"):
		rest := trimmed[len("sqlite://"):]
		path, params, _ := strings.Cut(rest, "?")
		info.Path = path
		for _, param := range strings.Split(params, "&") {
			if k, v, ok := strings.Cut(param, "="); ok {
				info.Params[k] = v
			}
		}
	default:
		return nil, NewParseError(dsn, "missing or invalid scheme", "use sqlite:///path/to/file.db or file:path.db")
	}

	if info.Path == "" {
		return nil, NewParseError(dsn, "missing database path", "use sqlite:///path/to/file.db or sqlite://:memory:")
	}
	if info.Path != ":memory:" && !strings.HasPrefix(strings.ToLower(info.Path), "file:") {
		info.Database = strings.TrimSuffix(filepath.Base(info.Path), filepath.Ext(info.Path))
	} else {
		info.Database = "main"
	}
	return info, nil
}

// Normalize returns the data source name modernc.org/sqlite expects.
func (r *SQLiteResolver) Normalize(info *DSNInfo) (string, error) {
	if info == nil {
		return "", NewParseError("", "nil DSN info", "")
	}
	if params := encodeParams(info.Params); params != "" {
		return info.Path + "?" + params, nil
	}
	return info.Path, nil
}

func (r *SQLiteResolver) Validate(dsn string) error {
	_, err := r.Parse(dsn)
	return err
}
