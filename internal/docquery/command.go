// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package docquery implements the small query grammar accepted by document
// stores: a bare aggregation pipeline, a find object, or an aggregate object.
//
//	[{"$match": {...}}, {"$group": {...}}]
//	{"find": "customers", "filter": {...}, "limit": 5}
//	{"aggregate": "orders", "pipeline": [...]}
//
// Filters and stages are kept as raw JSON so that the document adapter can
// decode them as Extended JSON without this package knowing about BSON.
package docquery

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// DefaultCollection receives pipelines that do not name a collection.
const DefaultCollection = "orders"

// Shape discriminates the three command forms.
type Shape int

const (
	ShapePipeline Shape = iota + 1
	ShapeFind
	ShapeAggregate
)

func (s Shape) String() string {
	switch s {
	case ShapePipeline:
		return "pipeline"
	case ShapeFind:
		return "find"
	case ShapeAggregate:
		return "aggregate"
	}
	return "unknown"
}

// Command is a parsed document query.
type Command struct {
	Shape      Shape
	Collection string
	Filter     json.RawMessage
	Projection json.RawMessage
	Sort       json.RawMessage
	// Limit is zero when the query did not specify one.
	Limit    int64
	Pipeline []json.RawMessage
}

// ErrMalformed is returned for text that is not valid JSON of the grammar.
var ErrMalformed = stderrors.New("malformed document query")

// UnrecognizedError is returned for a JSON object that matches none of the
// command forms. Keys lists its top-level keys in sorted order.
type UnrecognizedError struct {
	Keys []string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("unrecognized document query with keys [%s]", strings.Join(e.Keys, ", "))
}

// Find builds a find command.
func Find(collection string, filter json.RawMessage, limit int64) Command {
	return Command{Shape: ShapeFind, Collection: collection, Filter: filter, Limit: limit}
}

// Aggregate builds an aggregate command.
func Aggregate(collection string, stages []json.RawMessage) Command {
	return Command{Shape: ShapeAggregate, Collection: collection, Pipeline: stages}
}

// Parse parses text into a Command.
func Parse(text string) (Command, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{}, fmt.Errorf("%w: empty query", ErrMalformed)
	}

	switch trimmed[0] {
	case '[':
		stages, err := parseStages([]byte(trimmed))
		if err != nil {
			return Command{}, err
		}
		return Command{Shape: ShapePipeline, Collection: DefaultCollection, Pipeline: stages}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return fromObject(obj)
	}
	return Command{}, fmt.Errorf("%w: expected [ or {", ErrMalformed)
}

func fromObject(obj map[string]json.RawMessage) (Command, error) {
	if raw, ok := obj["find"]; ok {
		cmd := Command{Shape: ShapeFind}
		if err := json.Unmarshal(raw, &cmd.Collection); err != nil || cmd.Collection == "" {
			return Command{}, fmt.Errorf("%w: find must name a collection", ErrMalformed)
		}
		for key, dst := range map[string]*json.RawMessage{"filter": &cmd.Filter, "projection": &cmd.Projection, "sort": &cmd.Sort} {
			raw, ok := obj[key]
			if !ok || isNull(raw) {
				continue
			}
			if !isObject(raw) {
				return Command{}, fmt.Errorf("%w: %s must be an object", ErrMalformed, key)
			}
			*dst = compact(raw)
		}
		limit, err := parseLimit(obj["limit"])
		if err != nil {
			return Command{}, err
		}
		cmd.Limit = limit
		return cmd, nil
	}

	if raw, ok := obj["pipeline"]; ok {
		stages, err := parseStages(raw)
		if err != nil {
			return Command{}, err
		}
		cmd := Command{Shape: ShapePipeline, Collection: DefaultCollection, Pipeline: stages}
		if coll, ok := obj["aggregate"]; ok {
			if err := json.Unmarshal(coll, &cmd.Collection); err != nil || cmd.Collection == "" {
				return Command{}, fmt.Errorf("%w: aggregate must name a collection", ErrMalformed)
			}
			cmd.Shape = ShapeAggregate
		} else if coll, ok := obj["collection"]; ok {
			_ = json.Unmarshal(coll, &cmd.Collection)
			if cmd.Collection == "" {
				cmd.Collection = DefaultCollection
			}
		}
		return cmd, nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Command{}, &UnrecognizedError{Keys: keys}
}

func parseStages(raw []byte) ([]json.RawMessage, error) {
	var stages []json.RawMessage
	if err := json.Unmarshal(raw, &stages); err != nil {
		return nil, fmt.Errorf("%w: pipeline must be an array: %v", ErrMalformed, err)
	}
	for i, stage := range stages {
		if !isObject(stage) {
			return nil, fmt.Errorf("%w: pipeline stage %d is not an object", ErrMalformed, i)
		}
		stages[i] = compact(stage)
	}
	return stages, nil
}

func parseLimit(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || isNull(raw) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative number", ErrMalformed)
	}
	return int64(f), nil
}

// WithDefaultLimit returns c with Limit set to n when c is a find without a limit.
func (c Command) WithDefaultLimit(n int64) Command {
	if c.Shape == ShapeFind && c.Limit == 0 {
		c.Limit = n
	}
	return c
}

// HasLimitStage reports whether the pipeline contains a $limit stage.
func (c Command) HasLimitStage() bool {
	for _, stage := range c.Pipeline {
		var obj map[string]json.RawMessage
		if json.Unmarshal(stage, &obj) == nil {
			if _, ok := obj["$limit"]; ok {
				return true
			}
		}
	}
	return false
}

// String renders the canonical text form of the command. Parse(c.String())
// yields an equal command.
func (c Command) String() string {
	var b bytes.Buffer
	switch c.Shape {
	case ShapePipeline:
		if c.Collection != "" && c.Collection != DefaultCollection {
			b.WriteString(`{"collection":`)
			b.Write(quote(c.Collection))
			b.WriteString(`,"pipeline":`)
			writeStages(&b, c.Pipeline)
			b.WriteString("}")
		} else {
			writeStages(&b, c.Pipeline)
		}
	case ShapeAggregate:
		b.WriteString(`{"aggregate":`)
		b.Write(quote(c.Collection))
		b.WriteString(`,"pipeline":`)
		writeStages(&b, c.Pipeline)
		b.WriteString("}")
	case ShapeFind:
		b.WriteString(`{"find":`)
		b.Write(quote(c.Collection))
		for _, field := range []struct {
			name string
			raw  json.RawMessage
		}{{"filter", c.Filter}, {"projection", c.Projection}, {"sort", c.Sort}} {
			if len(field.raw) > 0 {
				fmt.Fprintf(&b, `,"%s":`, field.name)
				b.Write(field.raw)
			}
		}
		if c.Limit > 0 {
			fmt.Fprintf(&b, `,"limit":%d`, c.Limit)
		}
		b.WriteString("}")
	}
	return b.String()
}

func writeStages(b *bytes.Buffer, stages []json.RawMessage) {
	b.WriteString("[")
	for i, stage := range stages {
		if i > 0 {
			b.WriteString(",")
		}
		b.Write(stage)
	}
	b.WriteString("]")
}

func quote(s string) []byte {
	out, _ := json.Marshal(s)
	return out
}

func compact(raw json.RawMessage) json.RawMessage {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return raw
	}
	return json.RawMessage(b.Bytes())
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
