// Package pipeline runs one question through proposal, sanitization,
// execution, normalization and caching, and records the exchange in the
// session history.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/cache"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/metrics"
	"querygate/cli/internal/normalize"
	"querygate/cli/internal/sanitize"
	"querygate/cli/internal/session"
)

const (
	DefaultExecTimeout  = 30 * time.Second
	DefaultCacheTimeout = 2 * time.Second
	// historyWindow is how many recent messages a proposer sees.
	historyWindow = 3
)

// AdapterSource hands out the currently active adapter.
type AdapterSource interface {
	// Active returns the live adapter or a connection error when there is none.
	Active() (backend.Adapter, error)
}

// Response describes one processed question. Denied and failed requests also
// return a Response alongside the error.
type Response struct {
	RequestID       string             `json:"request_id"`
	Question        string             `json:"question"`
	Intent          string             `json:"intent,omitempty"`
	Query           string             `json:"query,omitempty"`
	State           State              `json:"state"`
	Records         []normalize.Record `json:"records"`
	RowCount        int                `json:"row_count"`
	ExecutionTimeMS float64            `json:"execution_time_ms"`
	Cached          bool               `json:"cached"`
	Degraded        bool               `json:"degraded"`
	Recovered       bool               `json:"recovered,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// Stats summarizes the orchestrator's activity.
type Stats struct {
	QueriesProcessed int64         `json:"queries_processed"`
	CacheHits        int64         `json:"cache_hits"`
	Denied           int64         `json:"denied"`
	Degraded         int64         `json:"degraded"`
	Errors           int64         `json:"errors"`
	AvgResponseTime  time.Duration `json:"avg_response_time_ns"`
	ActiveSessions   int           `json:"active_sessions"`
	Cache            cache.Stats   `json:"cache"`
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	source    AdapterSource
	proposer  Proposer
	sanitizer *sanitize.Sanitizer
	cache     *cache.Cache
	sessions  *session.Store
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger

	execTimeout  time.Duration
	cacheTimeout time.Duration

	group singleflight.Group

	mu        sync.Mutex
	stats     Stats
	totalTime time.Duration
}

type Option func(*Orchestrator)

func WithProposer(p Proposer) Option { return func(o *Orchestrator) { o.proposer = p } }

func WithSanitizer(s *sanitize.Sanitizer) Option { return func(o *Orchestrator) { o.sanitizer = s } }

func WithCache(c *cache.Cache) Option { return func(o *Orchestrator) { o.cache = c } }

func WithSessions(s *session.Store) Option { return func(o *Orchestrator) { o.sessions = s } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithExecTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.execTimeout = d
		}
	}
}

func WithCacheTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.cacheTimeout = d
		}
	}
}

// New builds an orchestrator over source. Unset collaborators default to a
// Passthrough proposer, a fresh sanitizer, a disabled cache and an empty
// session store.
func New(source AdapterSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:       source,
		proposer:     Passthrough{},
		log:          zap.NewNop().Sugar(),
		execTimeout:  DefaultExecTimeout,
		cacheTimeout: DefaultCacheTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sanitizer == nil {
		o.sanitizer = sanitize.New(sanitize.WithLogger(o.log))
	}
	if o.cache == nil {
		o.cache = cache.Disabled()
	}
	if o.sessions == nil {
		o.sessions = session.NewStore(session.DefaultCap)
	}
	return o
}

// ProcessQuery answers question within sessionID. Connection failures,
// safety rejections and proposer failures are returned as errors; execution
// failures produce a degraded response built from fixed sample records.
func (o *Orchestrator) ProcessQuery(ctx context.Context, question, sessionID string) (*Response, error) {
	start := time.Now()
	resp := &Response{RequestID: uuid.NewString(), Question: question, Records: []normalize.Record{}}
	log := o.log.With("request_id", resp.RequestID, "session", sessionID)
	tr := newTracker()

	finish := func(err error) (*Response, error) {
		elapsed := time.Since(start)
		resp.State = tr.state
		if err != nil {
			resp.Error = errors.MessageOf(err)
		}
		if ctx.Err() != nil {
			log.Debugw("request cancelled, history not recorded", "state", tr.state)
			return nil, ctx.Err()
		}
		o.record(sessionID, resp, elapsed)
		o.account(resp, err, elapsed)
		return resp, err
	}

	adapter, err := o.source.Active()
	if err != nil {
		tr.fail()
		return finish(errors.Wrap(errors.Connection, "no active database", err))
	}
	kind := adapter.Kind()

	proposal, err := o.proposer.Propose(ctx, ProposalRequest{
		Question: question,
		Kind:     kind,
		History:  o.sessions.Recent(sessionID, historyWindow),
		Schema:   adapter.Schema,
	})
	if err != nil {
		tr.fail()
		if ctx.Err() != nil {
			return finish(ctx.Err())
		}
		return finish(errors.Wrap(errors.Proposal, "could not build a query", err))
	}
	resp.Intent = proposal.Intent

	outcome, err := o.sanitizer.Sanitize(kind, proposal.QueryText)
	_ = tr.to(Sanitized)
	resp.Query = outcome.Query
	if err != nil {
		_ = tr.to(Denied)
		o.metrics.RecordVerdict(string(kind.Family), "deny")
		log.Infow("query denied", "rule", outcome.Verdict.Rule, "kind", kind.String())
		return finish(err)
	}
	resp.Recovered = outcome.Recovered
	if outcome.Recovered {
		o.metrics.RecordVerdict(string(kind.Family), "recovered")
	} else {
		o.metrics.RecordVerdict(string(kind.Family), "allow")
	}

	key := cache.Key(sessionID, outcome.Query)
	if res, ok := o.cacheGet(ctx, key); ok {
		_ = tr.to(Cached)
		_ = tr.to(Completed)
		resp.Cached = true
		resp.fill(res)
		log.Debugw("cache hit", "key", key)
		return finish(nil)
	}

	_ = tr.to(Executed)
	v, err, shared := o.group.Do(key, func() (any, error) {
		res, err := o.execute(ctx, adapter, outcome)
		if err == nil {
			o.cacheSet(ctx, key, res)
		}
		return res, err
	})
	if err != nil {
		if ctx.Err() != nil {
			tr.fail()
			return finish(ctx.Err())
		}
		if errors.Is(err, errors.Connection) {
			tr.fail()
			return finish(err)
		}
		log.Warnw("execution failed, serving fallback records", "error", err, "kind", kind.String())
		_ = tr.to(Normalized)
		_ = tr.to(Completed)
		resp.Degraded = true
		resp.Error = errors.MessageOf(err)
		records := fallbackRecords(kind, outcome.Query)
		resp.Records, resp.RowCount = records, len(records)
		resp.ExecutionTimeMS = float64(time.Since(start)) / float64(time.Millisecond)
		return finish(nil)
	}
	res := v.(normalize.Result)
	_ = tr.to(Normalized)
	resp.fill(res)
	_ = tr.to(Cached)
	_ = tr.to(Completed)
	log.Debugw("query completed", "rows", res.RowCount, "shared", shared, "elapsed_ms", resp.ExecutionTimeMS)
	return finish(nil)
}

func (r *Response) fill(res normalize.Result) {
	r.Records = res.Records
	r.RowCount = res.RowCount
	r.ExecutionTimeMS = res.ExecutionMillis()
}

func (o *Orchestrator) execute(ctx context.Context, adapter backend.Adapter, outcome sanitize.Outcome) (normalize.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.execTimeout)
	defer cancel()

	start := time.Now()
	raw, err := adapter.Execute(ctx, backend.Query{Text: outcome.Query, Document: outcome.Command})
	if err != nil {
		if errors.KindOf(err) == "" {
			err = errors.Wrap(errors.Execution, "query failed", err)
		}
		return normalize.Result{}, err
	}
	return normalize.FromRaw(raw, time.Since(start))
}

func (o *Orchestrator) cacheGet(ctx context.Context, key string) (normalize.Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, o.cacheTimeout)
	defer cancel()
	res, ok := o.cache.Get(ctx, key)
	if o.cache.Enabled() {
		o.metrics.RecordCache(ok)
	}
	return res, ok
}

func (o *Orchestrator) cacheSet(ctx context.Context, key string, res normalize.Result) {
	ctx, cancel := context.WithTimeout(ctx, o.cacheTimeout)
	defer cancel()
	o.cache.Set(ctx, key, res, 0)
}

// record appends the exchange to the session. Only completed requests get an
// assistant message.
func (o *Orchestrator) record(sessionID string, resp *Response, elapsed time.Duration) {
	msgs := []session.Message{{Role: session.RoleUser, Text: resp.Question}}
	if resp.State == Completed {
		msgs = append(msgs, session.Message{
			Role: session.RoleAssistant,
			Text: summary(resp),
			Metadata: map[string]any{
				"request_id":        resp.RequestID,
				"query":             resp.Query,
				"row_count":         resp.RowCount,
				"cached":            resp.Cached,
				"degraded":          resp.Degraded,
				"processing_time_s": elapsed.Seconds(),
			},
		})
	}
	o.sessions.Append(sessionID, msgs...)
}

func summary(resp *Response) string {
	noun := "records"
	if resp.RowCount == 1 {
		noun = "record"
	}
	switch {
	case resp.Degraded:
		return fmt.Sprintf("The query could not be executed; showing %d sample %s.", resp.RowCount, noun)
	case resp.Cached:
		return fmt.Sprintf("Returned %d %s from cache.", resp.RowCount, noun)
	}
	return fmt.Sprintf("Returned %d %s.", resp.RowCount, noun)
}

func (o *Orchestrator) account(resp *Response, err error, elapsed time.Duration) {
	outcome := metrics.OutcomeCompleted
	o.mu.Lock()
	switch {
	case resp.State == Denied:
		o.stats.Denied++
		outcome = metrics.OutcomeDenied
	case err != nil:
		o.stats.Errors++
		outcome = metrics.OutcomeFailed
	default:
		o.stats.QueriesProcessed++
		o.totalTime += elapsed
		if resp.Cached {
			o.stats.CacheHits++
			outcome = metrics.OutcomeCached
		}
		if resp.Degraded {
			o.stats.Degraded++
			outcome = metrics.OutcomeDegraded
		}
	}
	o.mu.Unlock()
	o.metrics.RecordQuery(outcome, elapsed)
}

// Stats returns a snapshot of the orchestrator's counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	s := o.stats
	if s.QueriesProcessed > 0 {
		s.AvgResponseTime = o.totalTime / time.Duration(s.QueriesProcessed)
	}
	o.mu.Unlock()
	s.ActiveSessions = len(o.sessions.Sessions())
	s.Cache = o.cache.Stats()
	return s
}

// Schema returns the active store's schema.
func (o *Orchestrator) Schema(ctx context.Context) (*backend.Schema, error) {
	adapter, err := o.source.Active()
	if err != nil {
		return nil, errors.Wrap(errors.Connection, "no active database", err)
	}
	return adapter.Schema(ctx)
}

// History returns the session's messages, oldest first.
func (o *Orchestrator) History(sessionID string) []session.Message {
	return o.sessions.History(sessionID)
}
