package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/cache"
	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/session"
)

type fakeAdapter struct {
	kind    dsn.Kind
	calls   atomic.Int32
	delay   time.Duration
	execute func(q backend.Query) (*backend.RawResult, error)

	mu      sync.Mutex
	queries []backend.Query
}

func (f *fakeAdapter) Kind() dsn.Kind                       { return f.kind }
func (f *fakeAdapter) Connect(context.Context) error        { return nil }
func (f *fakeAdapter) Disconnect(context.Context) error     { return nil }
func (f *fakeAdapter) TestConnection(context.Context) error { return nil }
func (f *fakeAdapter) Schema(context.Context) (*backend.Schema, error) {
	return &backend.Schema{Dialect: f.kind.Dialect}, nil
}
func (f *fakeAdapter) HealthCheck(context.Context) backend.HealthReport {
	return backend.HealthReport{Status: backend.StatusHealthy}
}

func (f *fakeAdapter) Execute(ctx context.Context, q backend.Query) (*backend.RawResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.execute != nil {
		return f.execute(q)
	}
	return &backend.RawResult{
		Shape:   backend.ShapeRows,
		Columns: []string{"id", "name"},
		Rows:    [][]any{{int32(1), "Ada"}, {int32(2), "Grace"}},
	}, nil
}

type staticSource struct {
	adapter backend.Adapter
	err     error
}

func (s staticSource) Active() (backend.Adapter, error) { return s.adapter, s.err }

var (
	pgKind    = dsn.KindOf(dsn.Postgres)
	mongoKind = dsn.KindOf(dsn.MongoDB)
)

func newRedisCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(context.Background(), cache.NewRedisStore(client))
}

func TestProcessQuery_CompletesAndCaches(t *testing.T) {
	ctx := context.Background()
	a := &fakeAdapter{kind: pgKind}
	o := New(staticSource{adapter: a}, WithCache(newRedisCache(t)))

	resp, err := o.ProcessQuery(ctx, "SELECT id, name FROM customers", "s1")
	require.NoError(t, err)
	assert.Equal(t, Completed, resp.State)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, resp.RowCount)
	assert.NotEmpty(t, resp.RequestID)
	v, _ := resp.Records[0].Get("id")
	assert.Equal(t, int64(1), v)

	again, err := o.ProcessQuery(ctx, "SELECT id, name FROM customers", "s1")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, Completed, again.State)
	assert.Equal(t, resp.Records, again.Records)
	assert.Equal(t, int32(1), a.calls.Load())

	hist := o.History("s1")
	require.Len(t, hist, 4)
	assert.Equal(t, session.RoleUser, hist[0].Role)
	assert.Equal(t, session.RoleAssistant, hist[1].Role)

	st := o.Stats()
	assert.Equal(t, int64(2), st.QueriesProcessed)
	assert.Equal(t, int64(1), st.CacheHits)
	assert.Equal(t, 1, st.ActiveSessions)
}

func TestProcessQuery_MultiStatementDenied(t *testing.T) {
	ctx := context.Background()
	a := &fakeAdapter{kind: pgKind}
	c := newRedisCache(t)
	o := New(staticSource{adapter: a}, WithCache(c))

	resp, err := o.ProcessQuery(ctx, "SELECT 1; DROP TABLE users", "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.SafetyRejected))
	require.NotNil(t, resp)
	assert.Equal(t, Denied, resp.State)
	assert.NotEmpty(t, resp.Error)
	assert.Zero(t, a.calls.Load())
	assert.Zero(t, c.Stats().Sets)

	hist := o.History("s1")
	require.Len(t, hist, 1)
	assert.Equal(t, session.RoleUser, hist[0].Role)
	assert.Equal(t, int64(1), o.Stats().Denied)
}

func TestProcessQuery_WriteVariantsDeniedWithoutReadOnlyGuard(t *testing.T) {
	for _, d := range []dsn.Dialect{dsn.MySQL, dsn.SQLite} {
		a := &fakeAdapter{kind: dsn.KindOf(d)}
		o := New(staticSource{adapter: a})
		for _, q := range []string{
			"INSERT OR REPLACE INTO orders (id) VALUES (42)",
			"INSERT IGNORE INTO orders (id) VALUES (42)",
			"REPLACE INTO orders (id) VALUES (42)",
			"CREATE TEMPORARY TABLE t (id int)",
		} {
			resp, err := o.ProcessQuery(context.Background(), q, "s1")
			assert.True(t, errors.Is(err, errors.SafetyRejected), "%s: %s", d, q)
			require.NotNil(t, resp)
			assert.Equal(t, Denied, resp.State)
		}
		assert.Zero(t, a.calls.Load(), d)
	}
}

func TestProcessQuery_DocumentRecovery(t *testing.T) {
	a := &fakeAdapter{kind: mongoKind, execute: func(backend.Query) (*backend.RawResult, error) {
		return &backend.RawResult{Shape: backend.ShapeDocuments, Documents: []any{map[string]any{"status": "paid"}}}, nil
	}}
	o := New(staticSource{adapter: a})

	resp, err := o.ProcessQuery(context.Background(), `db.orders.remove({"status":"x"})`, "s1")
	require.NoError(t, err)
	assert.True(t, resp.Recovered)
	assert.Equal(t, Completed, resp.State)

	require.Len(t, a.queries, 1)
	require.NotNil(t, a.queries[0].Document)
	assert.Equal(t, "orders", a.queries[0].Document.Collection)
	assert.Equal(t, int64(100), a.queries[0].Document.Limit)
}

func TestProcessQuery_InjectionDenied(t *testing.T) {
	a := &fakeAdapter{kind: mongoKind}
	o := New(staticSource{adapter: a})

	_, err := o.ProcessQuery(context.Background(), `[{"$match":{"$expr":{"$function":{"body":"function() {return true}"}}}}]`, "s1")
	assert.True(t, errors.Is(err, errors.SafetyRejected))
	assert.Zero(t, a.calls.Load())
}

func TestProcessQuery_ExecutionFailureIsDegraded(t *testing.T) {
	a := &fakeAdapter{kind: pgKind, execute: func(backend.Query) (*backend.RawResult, error) {
		return nil, errors.Wrap(errors.Execution, "query failed", stderrors.New(`relation "customers" does not exist`))
	}}
	c := newRedisCache(t)
	o := New(staticSource{adapter: a}, WithCache(c))

	resp, err := o.ProcessQuery(context.Background(), "SELECT * FROM customers", "s1")
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, Completed, resp.State)
	assert.Equal(t, 3, resp.RowCount)
	name, _ := resp.Records[0].Get("name")
	assert.Equal(t, "John Doe", name)
	assert.Zero(t, c.Stats().Sets)

	_, err = o.ProcessQuery(context.Background(), "SELECT * FROM customers", "s1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), a.calls.Load())
	assert.Equal(t, int64(2), o.Stats().Degraded)
}

func TestProcessQuery_NormalizationFailureIsDegraded(t *testing.T) {
	a := &fakeAdapter{kind: pgKind, execute: func(backend.Query) (*backend.RawResult, error) {
		return &backend.RawResult{Shape: backend.ShapeRows, Columns: []string{"a", "b"}, Rows: [][]any{{1}}}, nil
	}}
	o := New(staticSource{adapter: a})

	resp, err := o.ProcessQuery(context.Background(), "SELECT count(*) FROM things", "s1")
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	v, _ := resp.Records[0].Get("count")
	assert.Equal(t, int64(10), v)
}

func TestProcessQuery_NoAdapter(t *testing.T) {
	o := New(staticSource{err: errors.New(errors.Connection, "not connected")})

	resp, err := o.ProcessQuery(context.Background(), "SELECT 1", "s1")
	assert.True(t, errors.Is(err, errors.Connection))
	assert.Equal(t, Failed, resp.State)
	assert.Equal(t, 1, len(o.History("s1")))
}

func TestProcessQuery_ProposerFailure(t *testing.T) {
	a := &fakeAdapter{kind: pgKind}
	failing := ProposerFunc(func(context.Context, ProposalRequest) (Proposal, error) {
		return Proposal{}, stderrors.New("model unavailable")
	})
	o := New(staticSource{adapter: a}, WithProposer(failing))

	resp, err := o.ProcessQuery(context.Background(), "who bought the most?", "s1")
	assert.True(t, errors.Is(err, errors.Proposal))
	assert.Equal(t, Failed, resp.State)
	assert.Zero(t, a.calls.Load())
}

func TestProcessQuery_ProposerSeesHistoryAndKind(t *testing.T) {
	a := &fakeAdapter{kind: pgKind}
	var got ProposalRequest
	p := ProposerFunc(func(_ context.Context, req ProposalRequest) (Proposal, error) {
		got = req
		return Proposal{Intent: "list", QueryText: "SELECT name FROM customers", Kind: req.Kind}, nil
	})
	o := New(staticSource{adapter: a}, WithProposer(p))

	_, err := o.ProcessQuery(context.Background(), "first", "s1")
	require.NoError(t, err)
	resp, err := o.ProcessQuery(context.Background(), "list customers", "s1")
	require.NoError(t, err)

	assert.Equal(t, "list", resp.Intent)
	assert.Equal(t, "SELECT name FROM customers", resp.Query)
	assert.Equal(t, pgKind, got.Kind)
	require.Len(t, got.History, 2)
	assert.Equal(t, "first", got.History[0].Text)

	schema, err := got.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dsn.Postgres, schema.Dialect)
}

func TestProcessQuery_CancelledRecordsNothing(t *testing.T) {
	a := &fakeAdapter{kind: pgKind, delay: time.Second}
	o := New(staticSource{adapter: a})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp, err := o.ProcessQuery(ctx, "SELECT 1", "s1")
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, o.History("s1"))
}

func TestProcessQuery_ExecTimeoutDegrades(t *testing.T) {
	a := &fakeAdapter{kind: pgKind, delay: time.Second}
	o := New(staticSource{adapter: a}, WithExecTimeout(20*time.Millisecond))

	resp, err := o.ProcessQuery(context.Background(), "SELECT avg(total) FROM sales", "s1")
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	v, _ := resp.Records[0].Get("total")
	assert.Equal(t, 5000.0, v)
}

func TestProcessQuery_CacheDisabledStillCompletes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()
	c := cache.New(ctx, cache.NewRedisStore(client))
	require.False(t, c.Enabled())

	a := &fakeAdapter{kind: pgKind}
	o := New(staticSource{adapter: a}, WithCache(c))

	for i := 0; i < 2; i++ {
		resp, err := o.ProcessQuery(ctx, "SELECT 1", "s1")
		require.NoError(t, err)
		assert.False(t, resp.Cached)
		assert.Equal(t, Completed, resp.State)
	}
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestProcessQuery_ConcurrentIdenticalQueriesShareExecution(t *testing.T) {
	a := &fakeAdapter{kind: pgKind, delay: 100 * time.Millisecond}
	o := New(staticSource{adapter: a})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := o.ProcessQuery(context.Background(), "SELECT id, name FROM customers", "s1")
			assert.NoError(t, err)
			assert.Equal(t, 2, resp.RowCount)
		}()
	}
	wg.Wait()

	assert.Less(t, a.calls.Load(), int32(5))
	assert.Len(t, o.History("s1"), 10)
}

func TestStateTable(t *testing.T) {
	assert.True(t, CanTransition(Received, Sanitized))
	assert.True(t, CanTransition(Sanitized, Cached))
	assert.False(t, CanTransition(Received, Executed))
	assert.False(t, CanTransition(Completed, Failed))
	assert.False(t, CanTransition(Denied, Executed))
	assert.True(t, Denied.Terminal())
	assert.True(t, Failed.Terminal())

	tr := newTracker()
	require.NoError(t, tr.to(Sanitized))
	assert.Error(t, tr.to(Completed))
	tr.fail()
	assert.Equal(t, []State{Received, Sanitized, Failed}, tr.trail)

	text, err := Completed.MarshalText()
	require.NoError(t, err)
	var s State
	require.NoError(t, s.UnmarshalText(text))
	assert.Equal(t, Completed, s)
}

func TestFallbackRecords(t *testing.T) {
	tests := []struct {
		kind  dsn.Kind
		text  string
		field string
		want  any
	}{
		{pgKind, "select * from products", "name", "Laptop Pro"},
		{pgKind, "select * from orders", "status", "completed"},
		{pgKind, "select count(*) from x", "count", int64(10)},
		{pgKind, "select avg(x) from y", "average", 250.0},
		{pgKind, "show tables", "message", "Query executed successfully"},
		{mongoKind, `[{"$group":{"_id":null,"revenue":{"$sum":"$total"}}}]`, "total_revenue", 1849.95},
		{mongoKind, `{"find":"customers"}`, "city", "New York"},
		{mongoKind, `{"find":"widgets"}`, "result", "Sample data"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			recs := fallbackRecords(tt.kind, tt.text)
			require.NotEmpty(t, recs)
			v, ok := recs[0].Get(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestFallbackRecordsAreCopies(t *testing.T) {
	recs := fallbackRecords(pgKind, "select * from customers")
	require.NotEmpty(t, recs)
	recs[0][0].Value = "changed"
	recs[0] = recs[0][:1]

	again := fallbackRecords(pgKind, "select * from customers")
	v, ok := again[0].Get("id")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.Len(t, again[0], 5)
}
