// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"time"

	"go.uber.org/zap"

	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
)

// DefaultConnectTimeout bounds Connect when the caller's context has no deadline.
const DefaultConnectTimeout = 15 * time.Second

type options struct {
	log               *zap.SugaredLogger
	maxRows           int
	defaultCollection string
	connectTimeout    time.Duration
}

// Option configures adapters built by New.
type Option func(*options)

// WithLogger sets the adapter logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxRows sets the relational row ceiling.
func WithMaxRows(n int) Option {
	return func(o *options) { o.maxRows = n }
}

// WithDefaultCollection sets the collection that receives pipelines naming none.
func WithDefaultCollection(name string) Option {
	return func(o *options) { o.defaultCollection = name }
}

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop().Sugar(), connectTimeout: DefaultConnectTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds the adapter for desc and connects it. The caller owns the
// returned adapter and must Disconnect it.
func New(ctx context.Context, desc dsn.Descriptor, opts ...Option) (Adapter, error) {
	a, err := build(desc, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func build(desc dsn.Descriptor, opts ...Option) (Adapter, error) {
	switch desc.Dialect {
	case dsn.Postgres, dsn.MySQL, dsn.SQLite:
		return NewRelational(desc, opts...), nil
	case dsn.MongoDB:
		return NewDocument(desc, opts...), nil
	}
	return nil, errors.Newf(errors.Config, "unsupported database kind %q", desc.Dialect)
}

// TestConnection connects a throwaway adapter for desc, round-trips it and
// disconnects it.
func TestConnection(ctx context.Context, desc dsn.Descriptor, opts ...Option) error {
	a, err := New(ctx, desc, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Disconnect(context.Background()) }()
	return a.TestConnection(ctx)
}

// Invalidator is implemented by adapters that cache their schema.
type Invalidator interface {
	Invalidate()
}

func withConnectDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

var errNotConnected = errors.New(errors.Connection, "not connected")
