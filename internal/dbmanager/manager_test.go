package dbmanager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/cache"
	"querygate/cli/internal/config"
	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/normalize"
)

func sqliteDesc(t *testing.T, name string) dsn.Descriptor {
	t.Helper()
	desc, err := dsn.Describe("sqlite://" + filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	return desc
}

func newManager(t *testing.T, opts ...Option) (*Manager, *config.Store) {
	t.Helper()
	records := config.NewStore(filepath.Join(t.TempDir(), config.FileName), nil)
	m := New(records, opts...)
	t.Cleanup(func() { _ = m.Disconnect(context.Background()) })
	return m, records
}

func TestInitWithoutRecord(t *testing.T) {
	m, _ := newManager(t)
	err := m.Init(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = m.Active()
	assert.True(t, errors.Is(err, errors.Connection))

	report := m.Health(context.Background())
	assert.Equal(t, backend.StatusUnhealthy, report.Status)
	assert.Equal(t, "no database connected", report.Error)
}

func TestSwitchPersistsAndInitRestores(t *testing.T) {
	ctx := context.Background()
	m, records := newManager(t)
	desc := sqliteDesc(t, "shop.db")

	require.NoError(t, m.Switch(ctx, desc, config.CredentialFile))
	a, err := m.Active()
	require.NoError(t, err)
	assert.Equal(t, dsn.SQLite, a.Kind().Dialect)
	assert.Equal(t, desc, m.Record().Connection)
	assert.NotNil(t, m.Record().LastUpdated)

	again := New(records)
	defer again.Disconnect(ctx)
	require.NoError(t, again.Init(ctx))
	b, err := again.Active()
	require.NoError(t, err)
	require.NoError(t, b.TestConnection(ctx))
	assert.Equal(t, desc.URI, again.Record().Connection.URI)
}

func TestSwitchDisconnectsPreviousAndClearsCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(ctx, cache.NewMemoryStore(cache.DefaultTTL))
	m, _ := newManager(t, WithCache(c))

	require.NoError(t, m.Switch(ctx, sqliteDesc(t, "a.db"), config.CredentialFile))
	first, err := m.Active()
	require.NoError(t, err)

	key := cache.Key("s1", "SELECT 1")
	require.True(t, c.Set(ctx, key, normalize.Result{RowCount: 1}, 0))

	require.NoError(t, m.Switch(ctx, sqliteDesc(t, "b.db"), config.CredentialFile))
	second, err := m.Active()
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	_, err = first.Execute(ctx, backend.Query{Text: "SELECT 1"})
	assert.True(t, errors.Is(err, errors.Connection), "previous adapter must be closed")

	_, hit := c.Get(ctx, key)
	assert.False(t, hit)
}

func TestFailedSwitchKeepsCurrentStore(t *testing.T) {
	ctx := context.Background()
	m, records := newManager(t)
	good := sqliteDesc(t, "good.db")
	require.NoError(t, m.Switch(ctx, good, config.CredentialFile))

	m.connect = func(context.Context, dsn.Descriptor, ...backend.Option) (backend.Adapter, error) {
		return nil, errors.New(errors.Connection, "connection refused")
	}
	err := m.Switch(ctx, dsn.Descriptor{Dialect: dsn.Postgres, URI: "postgres://localhost:1/x"}, config.CredentialFile)
	assert.True(t, errors.Is(err, errors.Connection))

	a, err := m.Active()
	require.NoError(t, err)
	require.NoError(t, a.TestConnection(ctx))

	rec, err := records.Load()
	require.NoError(t, err)
	assert.Equal(t, good.URI, rec.Connection.URI)
}

func TestSwitchPersistFailureDisconnectsNewAdapter(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	// keychain records cannot be saved without a secrets store
	err := m.Switch(ctx, sqliteDesc(t, "x.db"), config.CredentialKeychain)
	assert.True(t, errors.Is(err, errors.Config))
	_, err = m.Active()
	assert.Error(t, err)
}

func TestConcurrentSwitchesPersistTheActiveStore(t *testing.T) {
	ctx := context.Background()
	m, records := newManager(t)
	slow, fast := sqliteDesc(t, "slow.db"), sqliteDesc(t, "fast.db")

	slowStarted := make(chan struct{})
	release := make(chan struct{})
	fastConnected := make(chan struct{})
	m.connect = func(ctx context.Context, desc dsn.Descriptor, opts ...backend.Option) (backend.Adapter, error) {
		switch desc.URI {
		case slow.URI:
			close(slowStarted)
			<-release
		case fast.URI:
			close(fastConnected)
		}
		return backend.New(ctx, desc, opts...)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, m.Switch(ctx, slow, config.CredentialFile))
	}()
	<-slowStarted
	go func() {
		defer wg.Done()
		assert.NoError(t, m.Switch(ctx, fast, config.CredentialFile))
	}()

	select {
	case <-fastConnected:
		t.Fatal("second switch connected while the first was still in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	wg.Wait()

	rec, err := records.Load()
	require.NoError(t, err)
	assert.Equal(t, fast.URI, m.Record().Connection.URI)
	assert.Equal(t, m.Record().Connection.URI, rec.Connection.URI)
}

func TestSchemaRefresh(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	require.NoError(t, m.Switch(ctx, sqliteDesc(t, "shop.db"), config.CredentialFile))

	s, err := m.Schema(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, s.Tables)

	a, _ := m.Active()
	_, err = a.Execute(ctx, backend.Query{Text: "CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL)"})
	require.NoError(t, err)

	s, err = m.Schema(ctx, true)
	require.NoError(t, err)
	require.Len(t, s.Tables, 1)
	assert.Equal(t, "orders", s.Tables[0].Name)

	report := m.Health(ctx)
	assert.Equal(t, backend.StatusHealthy, report.Status)
}

func TestForgetRemovesRecord(t *testing.T) {
	ctx := context.Background()
	m, records := newManager(t)
	require.NoError(t, m.Switch(ctx, sqliteDesc(t, "shop.db"), config.CredentialFile))

	require.NoError(t, m.Forget(ctx))
	_, err := m.Active()
	assert.Error(t, err)
	_, err = os.Stat(records.Path())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, m.Record().Configured())
}
