// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend defines the contract every data store adapter implements and
// the factory that builds a connected adapter from a connection descriptor.
// Relational stores are served by the sqlexec package, document stores by the
// docstore package; this package wraps both behind Adapter.
package backend

import (
	"context"

	"querygate/cli/internal/docquery"
	"querygate/cli/internal/dsn"
)

// Adapter is one live connection pool to one store.
// Implementations must allow concurrent Execute calls.
type Adapter interface {
	// Kind returns the store kind the adapter was built for.
	Kind() dsn.Kind
	// Connect opens the pool and verifies it. Failures are connection errors.
	Connect(ctx context.Context) error
	// Disconnect closes the pool. The adapter is unusable afterwards.
	Disconnect(ctx context.Context) error
	// TestConnection round-trips a trivial liveness operation.
	TestConnection(ctx context.Context) error
	// Schema lists tables or collections with their columns or sample fields.
	Schema(ctx context.Context) (*Schema, error)
	// Execute runs an already sanitized query.
	Execute(ctx context.Context, q Query) (*RawResult, error)
	// HealthCheck reports status and sizing statistics. It never returns an error;
	// failures are reported in the report itself.
	HealthCheck(ctx context.Context) HealthReport
}

// Query is the payload handed to Execute. Text is always set; Document is set
// for document stores when the text parsed as a command.
type Query struct {
	Text     string
	Document *docquery.Command
}

// Shape tags the variant held by a RawResult.
type Shape int

const (
	ShapeRows Shape = iota + 1
	ShapeAffected
	ShapeDocuments
	ShapeScalar
)

// RawResult is the adapter-native result before normalization.
type RawResult struct {
	Shape Shape

	// ShapeRows
	Columns []string
	Rows    [][]any

	// ShapeAffected
	RowsAffected int64

	// ShapeDocuments holds bson.D, bson.M or plain maps.
	Documents []any

	// ShapeScalar
	ScalarName string
	Scalar     any
}

// Len returns the number of rows or documents held.
func (r *RawResult) Len() int {
	if r == nil {
		return 0
	}
	switch r.Shape {
	case ShapeRows:
		return len(r.Rows)
	case ShapeDocuments:
		return len(r.Documents)
	}
	return 1
}

// Schema describes the objects of a store.
type Schema struct {
	Dialect       dsn.Dialect    `json:"dialect"`
	Database      string         `json:"database,omitempty"`
	Tables        []Table        `json:"tables,omitempty"`
	Collections   []Collection   `json:"collections,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// Table is a relational table or view.
type Table struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	RowCount int64    `json:"row_count"`
	Columns  []Column `json:"columns"`
}

// Column is a table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

// Collection is a document collection with fields taken from a sample document.
type Collection struct {
	Name          string        `json:"name"`
	DocumentCount int64         `json:"document_count"`
	Fields        []SampleField `json:"fields"`
}

// SampleField is one field seen in a sample document.
type SampleField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relationship is a foreign key edge.
type Relationship struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is the outcome of a health check.
type HealthReport struct {
	Status  string         `json:"status"`
	Dialect dsn.Dialect    `json:"dialect"`
	Details map[string]any `json:"details,omitempty"`
	Pool    *PoolStats     `json:"pool,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// PoolStats reports connection pool sizing.
type PoolStats struct {
	Total int `json:"total"`
	Idle  int `json:"idle"`
	InUse int `json:"in_use"`
	Max   int `json:"max"`
}
