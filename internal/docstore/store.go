// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package docstore executes document queries against a document database and
// describes its collections.
package docstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"querygate/cli/internal/docquery"
)

const (
	// DefaultFindLimit bounds finds that do not name a limit.
	DefaultFindLimit = 100
	// PipelineLimit is appended to pipelines without a $limit stage.
	PipelineLimit = 1000
	// FallbackLimit bounds the default read for unrecognized queries.
	FallbackLimit = 50
)

// Result is the outcome of one document query. Count is set instead of
// Documents when the query resolved to a count.
type Result struct {
	Collection string
	Documents  []bson.D
	Count      *int64
	// Fallback marks a default read chosen for unrecognized input.
	Fallback bool
}

// Store runs docquery commands.
type Store struct {
	db                Database
	defaultCollection string
	log               *zap.SugaredLogger

	mu          sync.RWMutex
	collections map[string]bool
}

type Option func(*Store)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDefaultCollection overrides docquery.DefaultCollection.
func WithDefaultCollection(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.defaultCollection = name
		}
	}
}

func New(db Database, opts ...Option) *Store {
	s := &Store{db: db, defaultCollection: docquery.DefaultCollection, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB returns the underlying database.
func (s *Store) DB() Database { return s.db }

// Run executes cmd. A nil cmd, or one that fails to decode, is answered with a
// bounded default read derived from text.
func (s *Store) Run(ctx context.Context, cmd *docquery.Command, text string) (*Result, error) {
	if cmd == nil {
		parsed, err := docquery.Parse(text)
		if err != nil {
			return s.fallback(ctx, text, err)
		}
		cmd = &parsed
	}

	switch cmd.Shape {
	case docquery.ShapeFind:
		return s.find(ctx, *cmd)
	case docquery.ShapePipeline, docquery.ShapeAggregate:
		return s.aggregate(ctx, *cmd)
	}
	return nil, fmt.Errorf("unsupported document command shape %s", cmd.Shape)
}

func (s *Store) collectionOf(cmd docquery.Command) string {
	if cmd.Collection == "" {
		return s.defaultCollection
	}
	return cmd.Collection
}

func (s *Store) find(ctx context.Context, cmd docquery.Command) (*Result, error) {
	filter, err := decodeDoc(cmd.Filter)
	if err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	projection, err := decodeDoc(cmd.Projection)
	if err != nil {
		return nil, fmt.Errorf("decode projection: %w", err)
	}
	sortSpec, err := decodeDoc(cmd.Sort)
	if err != nil {
		return nil, fmt.Errorf("decode sort: %w", err)
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = DefaultFindLimit
	}

	coll := s.collectionOf(cmd)
	docs, err := s.db.Find(ctx, coll, filter, FindOptions{Projection: projection, Sort: sortSpec, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &Result{Collection: coll, Documents: docs}, nil
}

func (s *Store) aggregate(ctx context.Context, cmd docquery.Command) (*Result, error) {
	stages := make([]bson.D, 0, len(cmd.Pipeline)+1)
	for i, raw := range cmd.Pipeline {
		stage, err := decodeDoc(raw)
		if err != nil {
			return nil, fmt.Errorf("decode stage %d: %w", i, err)
		}
		stages = append(stages, stage)
	}
	if !cmd.HasLimitStage() {
		stages = append(stages, bson.D{{Key: "$limit", Value: PipelineLimit}})
	}

	coll := s.collectionOf(cmd)
	docs, err := s.db.Aggregate(ctx, coll, stages)
	if err != nil {
		return nil, err
	}
	return &Result{Collection: coll, Documents: docs}, nil
}

var keywordCollections = []struct{ keyword, collection string }{
	{"customer", "customers"},
	{"product", "products"},
	{"order", "orders"},
}

func (s *Store) fallback(ctx context.Context, text string, parseErr error) (*Result, error) {
	var unrecognized *docquery.UnrecognizedError
	if stderrors.As(parseErr, &unrecognized) {
		for _, key := range unrecognized.Keys {
			if s.hasCollection(ctx, key) {
				return s.defaultRead(ctx, key)
			}
		}
	}

	lower := strings.ToLower(text)
	coll := s.defaultCollection
	for _, kc := range keywordCollections {
		if strings.Contains(lower, kc.keyword) {
			coll = kc.collection
			break
		}
	}
	s.log.Debugw("unrecognized document query, using default read", "collection", coll, "error", parseErr)

	if strings.Contains(lower, "count") {
		n, err := s.db.Count(ctx, coll, bson.D{})
		if err != nil {
			return nil, err
		}
		return &Result{Collection: coll, Count: &n, Fallback: true}, nil
	}
	return s.defaultRead(ctx, coll)
}

func (s *Store) defaultRead(ctx context.Context, coll string) (*Result, error) {
	docs, err := s.db.Find(ctx, coll, bson.D{}, FindOptions{Limit: FallbackLimit})
	if err != nil {
		return nil, err
	}
	return &Result{Collection: coll, Documents: docs, Fallback: true}, nil
}

func (s *Store) hasCollection(ctx context.Context, name string) bool {
	s.mu.RLock()
	known := s.collections
	s.mu.RUnlock()

	if known == nil {
		names, err := s.db.CollectionNames(ctx)
		if err != nil {
			s.log.Warnw("list collections failed", "error", err)
			return false
		}
		known = make(map[string]bool, len(names))
		for _, n := range names {
			known[n] = true
		}
		s.mu.Lock()
		s.collections = known
		s.mu.Unlock()
	}
	return known[name]
}

// Invalidate drops the cached collection list.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.collections = nil
	s.mu.Unlock()
}

func decodeDoc(raw []byte) (bson.D, error) {
	if len(raw) == 0 {
		return bson.D{}, nil
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// CollectionInfo describes one collection.
type CollectionInfo struct {
	Name          string
	DocumentCount int64
	Fields        []FieldInfo
}

// FieldInfo is a top-level field of a sample document.
type FieldInfo struct {
	Name string
	Type string
}

// Collections lists every non-system collection with its estimated size and
// the fields of one sample document.
func (s *Store) Collections(ctx context.Context) ([]CollectionInfo, error) {
	names, err := s.db.CollectionNames(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	known := make(map[string]bool, len(names))
	out := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		known[name] = true
		if strings.HasPrefix(name, "system.") {
			continue
		}
		info := CollectionInfo{Name: name}
		if n, err := s.db.EstimatedCount(ctx, name); err == nil {
			info.DocumentCount = n
		} else {
			s.log.Debugw("count failed", "collection", name, "error", err)
		}
		sample, err := s.db.Find(ctx, name, bson.D{}, FindOptions{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(sample) > 0 {
			for _, e := range sample[0] {
				info.Fields = append(info.Fields, FieldInfo{Name: e.Key, Type: TypeName(e.Value)})
			}
		}
		out = append(out, info)
	}

	s.mu.Lock()
	s.collections = known
	s.mu.Unlock()
	return out, nil
}

// Health pings the database and returns dbStats sizing figures.
func (s *Store) Health(ctx context.Context) (map[string]any, error) {
	if err := s.db.Ping(ctx); err != nil {
		return nil, err
	}
	stats, err := s.db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	details := map[string]any{"database": s.db.Name()}
	for _, key := range []string{"collections", "objects", "dataSize", "storageSize", "indexes"} {
		if v, ok := stats[key]; ok {
			details[key] = v
		}
	}
	return details, nil
}

// TypeName returns the BSON type name of a decoded value.
func TypeName(v any) string {
	switch v.(type) {
	case nil, primitive.Null:
		return "null"
	case string:
		return "string"
	case int32:
		return "int"
	case int64:
		return "long"
	case float64:
		return "double"
	case bool:
		return "bool"
	case primitive.ObjectID:
		return "objectId"
	case primitive.DateTime:
		return "date"
	case primitive.Decimal128:
		return "decimal"
	case primitive.Binary:
		return "binData"
	case primitive.Timestamp:
		return "timestamp"
	case primitive.Regex:
		return "regex"
	case bson.D, bson.M:
		return "object"
	case bson.A:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}
