// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"
)

// DetectDialect detects the database dialect from a DSN string
func DetectDialect(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))

	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres
	case strings.HasPrefix(lower, "mysql://"):
		return MySQL
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"):
		return SQLite
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return MongoDB
	}

	return Unknown
}

// ResolverFor returns the resolver for a dialect.
func ResolverFor(d Dialect) (Resolver, error) {
	switch d {
	case Postgres:
		return NewPostgreSQLResolver(), nil
	case MySQL:
		return NewMySQLResolver(), nil
	case SQLite:
		return NewSQLiteResolver(), nil
	case MongoDB:
		return NewMongoDBResolver(), nil
	}
	return nil, NewParseError("", "unknown database type", "use postgres://, mysql://, sqlite://, or mongodb://")
}

func resolverForDSN(dsn string) (Resolver, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}
	r, err := ResolverFor(DetectDialect(dsn))
	if err != nil {
		return nil, NewParseError(dsn, "unknown database type", "use postgres://, mysql://, sqlite://, or mongodb://")
	}
	return r, nil
}

// Parse parses a DSN string and returns the driver-ready connection string.
// This is the main entry point for DSN parsing
func Parse(dsn string) (string, error) {
	resolver, err := resolverForDSN(dsn)
	if err != nil {
		return "", err
	}

	info, err := resolver.Parse(dsn)
	if err != nil {
		return "", err
	}

	return resolver.Normalize(info)
}

// Validate validates a DSN string without normalizing it
func Validate(dsn string) error {
	resolver, err := resolverForDSN(dsn)
	if err != nil {
		return err
	}
	return resolver.Validate(dsn)
}

// ParseInfo parses a DSN string and returns detailed DSN info
// Useful for inspecting connection details
func ParseInfo(dsn string) (*DSNInfo, error) {
	resolver, err := resolverForDSN(dsn)
	if err != nil {
		return nil, err
	}
	return resolver.Parse(dsn)
}

// Describe builds a Descriptor from a raw connection string, filling in the
// logical database name when the DSN carries one.
func Describe(raw string) (Descriptor, error) {
	raw = strings.TrimSpace(raw)
	info, err := ParseInfo(raw)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Dialect: info.Type, URI: raw, Database: info.Database}, nil
}
