// Package dbmanager owns the live store adapter. It connects the store named
// by the persisted record, swaps it on request and hands the active adapter
// to the query pipeline.
package dbmanager

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/cache"
	"querygate/cli/internal/config"
	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/logging"
)

// ErrNotConfigured is returned by Init when no store was ever saved.
var ErrNotConfigured = errors.New(errors.Config, "no database configured; run 'querygate connect'")

type connectFunc func(ctx context.Context, desc dsn.Descriptor, opts ...backend.Option) (backend.Adapter, error)

// Manager is safe for concurrent use. Init, Switch, Disconnect and Forget
// hold the switch lock from connect through persist and swap; Active only
// takes a read lock.
type Manager struct {
	records *config.Store
	cache   *cache.Cache
	opts    []backend.Option
	log     *zap.SugaredLogger
	connect connectFunc

	switchMu sync.Mutex

	mu      sync.RWMutex
	adapter backend.Adapter
	record  config.Record
}

type Option func(*Manager)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithCache sets the result cache cleared on every switch.
func WithCache(c *cache.Cache) Option { return func(m *Manager) { m.cache = c } }

// WithBackendOptions are passed to every adapter the manager builds.
func WithBackendOptions(opts ...backend.Option) Option {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

// New returns a manager persisting to records. Nothing is connected until
// Init or Switch.
func New(records *config.Store, opts ...Option) *Manager {
	m := &Manager{
		records: records,
		cache:   cache.Disabled(),
		log:     zap.NewNop().Sugar(),
		connect: backend.New,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Init connects the store named by the persisted record.
func (m *Manager) Init(ctx context.Context) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	rec, err := m.records.Load()
	if err != nil {
		return err
	}
	if !rec.Configured() {
		return ErrNotConfigured
	}

	a, err := m.connect(ctx, rec.Connection, m.opts...)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.adapter
	m.adapter, m.record = a, rec
	m.mu.Unlock()

	if old != nil {
		_ = old.Disconnect(ctx)
	}
	m.log.Infow("store connected", "dialect", rec.Connection.Dialect, "uri", logging.Mask(rec.Connection.URI))
	return nil
}

// Switch connects desc, persists it and makes it active. The previous
// adapter is disconnected and every cached result dropped. When the new
// store cannot be reached the previous one stays active.
func (m *Manager) Switch(ctx context.Context, desc dsn.Descriptor, source config.CredentialSource) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	a, err := m.connect(ctx, desc, m.opts...)
	if err != nil {
		return err
	}

	rec, err := m.records.Save(config.Record{
		DatabaseKind:     desc.Dialect,
		Connection:       desc,
		CredentialSource: source,
	})
	if err != nil {
		_ = a.Disconnect(ctx)
		return err
	}

	m.mu.Lock()
	old := m.adapter
	m.adapter, m.record = a, rec
	m.mu.Unlock()

	if old != nil {
		if err := old.Disconnect(ctx); err != nil {
			m.log.Warnw("disconnecting previous store failed", "error", err)
		}
	}
	if n := m.cache.Clear(ctx, cache.AllPattern); n > 0 {
		m.log.Debugw("cleared cached results", "count", n)
	}
	m.log.Infow("switched store", "dialect", desc.Dialect, "uri", logging.Mask(desc.URI))
	return nil
}

// Active returns the live adapter.
func (m *Manager) Active() (backend.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.adapter == nil {
		return nil, errors.New(errors.Connection, "no database connected")
	}
	return m.adapter, nil
}

// Record returns the record of the active store.
func (m *Manager) Record() config.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record
}

// Schema returns the active store's schema. refresh drops any cached schema
// first.
func (m *Manager) Schema(ctx context.Context, refresh bool) (*backend.Schema, error) {
	a, err := m.Active()
	if err != nil {
		return nil, err
	}
	if inv, ok := a.(backend.Invalidator); ok && refresh {
		inv.Invalidate()
	}
	return a.Schema(ctx)
}

// Health reports on the active store. Without one the report is unhealthy.
func (m *Manager) Health(ctx context.Context) backend.HealthReport {
	a, err := m.Active()
	if err != nil {
		return backend.HealthReport{Status: backend.StatusUnhealthy, Error: errors.MessageOf(err)}
	}
	return a.HealthCheck(ctx)
}

// Disconnect closes the active adapter. The persisted record is kept.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	return m.disconnect(ctx)
}

func (m *Manager) disconnect(ctx context.Context) error {
	m.mu.Lock()
	a := m.adapter
	m.adapter = nil
	m.mu.Unlock()

	if a == nil {
		return nil
	}
	return a.Disconnect(ctx)
}

// Forget disconnects and removes the persisted record.
func (m *Manager) Forget(ctx context.Context) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if err := m.disconnect(ctx); err != nil {
		m.log.Warnw("disconnect failed", "error", err)
	}
	m.mu.Lock()
	m.record = config.Default()
	m.mu.Unlock()
	m.cache.Clear(ctx, cache.AllPattern)
	return m.records.Clear()
}
