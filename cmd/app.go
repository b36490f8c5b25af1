package cmd

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/cache"
	"querygate/cli/internal/config"
	"querygate/cli/internal/dbmanager"
	"querygate/cli/internal/keychain"
	"querygate/cli/internal/logging"
	"querygate/cli/internal/metrics"
	"querygate/cli/internal/pipeline"
	"querygate/cli/internal/sanitize"
	"querygate/cli/internal/session"
)

// app is everything a command needs, built once per invocation.
type app struct {
	settings config.Settings
	records  *config.Store
	cache    *cache.Cache
	manager  *dbmanager.Manager
	registry *prometheus.Registry
}

// secrets returns the OS keychain, or nil when this platform has none.
func secrets() config.Secrets {
	km, err := keychain.GetManager()
	if err != nil {
		logging.For("keychain").Debugw("keychain unavailable", "error", err)
		return nil
	}
	return km
}

func newApp(ctx context.Context) (*app, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	records := config.NewStore(path, secrets())

	c, err := cache.Open(ctx, settings.CacheBackend, settings.RedisURL,
		cache.WithLogger(logging.For("cache")),
		cache.WithDefaultTTL(settings.CacheTTL),
	)
	if err != nil {
		return nil, err
	}

	mgr := dbmanager.New(records,
		dbmanager.WithLogger(logging.For("dbmanager")),
		dbmanager.WithCache(c),
		dbmanager.WithBackendOptions(
			backend.WithLogger(logging.For("backend")),
			backend.WithDefaultCollection(settings.DefaultCollection),
		),
	)

	return &app{
		settings: settings,
		records:  records,
		cache:    c,
		manager:  mgr,
		registry: prometheus.NewRegistry(),
	}, nil
}

// orchestrator wires the pipeline over the app's manager.
func (a *app) orchestrator() *pipeline.Orchestrator {
	log := logging.For("pipeline")
	return pipeline.New(a.manager,
		pipeline.WithLogger(log),
		pipeline.WithCache(a.cache),
		pipeline.WithSessions(session.NewStore(a.settings.HistoryCap)),
		pipeline.WithMetrics(metrics.New(a.registry)),
		pipeline.WithSanitizer(sanitize.New(
			sanitize.WithLogger(logging.For("sanitize")),
			sanitize.WithDefaultCollection(a.settings.DefaultCollection),
		)),
		pipeline.WithExecTimeout(a.settings.ExecTimeout),
		pipeline.WithCacheTimeout(a.settings.CacheTimeout),
	)
}

func (a *app) close() {
	_ = a.manager.Disconnect(context.Background())
	_ = logging.Sync()
}

// connected builds the app and connects the saved store.
func connected(ctx context.Context) (*app, error) {
	a, err := newApp(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.manager.Init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}
