// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"fmt"
	"strings"
)

// Family is the closed set of store families the pipeline can talk to.
type Family string

const (
	Relational Family = "relational"
	Document   Family = "document"
)

// Dialect is the concrete engine behind a Family.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
	MongoDB  Dialect = "mongodb"
	Unknown  Dialect = "unknown"
)

// Family returns the store family of the dialect.
func (d Dialect) Family() Family {
	switch d {
	case Postgres, MySQL, SQLite:
		return Relational
	case MongoDB:
		return Document
	}
	return ""
}

// Kind identifies a store: its family plus dialect tag.
type Kind struct {
	Family  Family
	Dialect Dialect
}

func (k Kind) String() string {
	return fmt.Sprintf("%s/%s", k.Family, k.Dialect)
}

// IsDocument reports whether the kind targets a document store.
func (k Kind) IsDocument() bool { return k.Family == Document }

// KindOf returns the Kind for a dialect.
func KindOf(d Dialect) Kind {
	return Kind{Family: d.Family(), Dialect: d}
}

// ParseDialect maps user-facing names to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mongodb", "mongo", "document-store":
		return MongoDB, nil
	}
	return Unknown, fmt.Errorf("unsupported database kind %q", s)
}

// Descriptor describes how to reach one store.
type Descriptor struct {
	Dialect  Dialect `json:"dialect"`
	URI      string  `json:"uri"`
	Database string  `json:"database,omitempty"`
}

// Kind returns the descriptor's store kind.
func (d Descriptor) Kind() Kind { return KindOf(d.Dialect) }

// DSNInfo contains parsed information from a DSN string
type DSNInfo struct {
	Type     Dialect
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Path     string
	Params   map[string]string
	Original string
}

// String returns the original DSN string
func (d *DSNInfo) String() string {
	return d.Original
}

// Resolver is an interface for database-specific DSN resolution
type Resolver interface {
	// Parse parses a DSN string and returns normalized DSN info
	Parse(dsn string) (*DSNInfo, error)

	// Normalize converts DSN info to the connection string the driver expects
	Normalize(info *DSNInfo) (string, error)

	// Validate checks if the DSN is valid for the database type
	Validate(dsn string) error
}

// ParseError represents an error that occurred during DSN parsing
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid DSN format: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid DSN format: %s", e.Reason)
}

// NewParseError creates a new ParseError
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{
		DSN:    dsn,
		Reason: reason,
		Hint:   hint,
	}
}
