// Package cache stores normalized query results keyed by session and query
// fingerprint. It is best-effort: when the backing store is unreachable the
// cache turns itself off and every lookup is a miss.
package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"querygate/cli/internal/errors"
	"querygate/cli/internal/normalize"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 300 * time.Second

// Backend names accepted by Open.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Stats is a snapshot of cache activity.
type Stats struct {
	Backend string  `json:"backend"`
	Enabled bool    `json:"enabled"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is safe for concurrent use.
type Cache struct {
	store      Store
	enabled    bool
	defaultTTL time.Duration
	log        *zap.SugaredLogger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errs   atomic.Int64
}

type Option func(*Cache)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// New wraps store, pinging it once. An unreachable store yields a disabled cache.
func New(ctx context.Context, store Store, opts ...Option) *Cache {
	c := &Cache{store: store, enabled: store != nil, defaultTTL: DefaultTTL, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(c)
	}
	if store == nil {
		return c
	}
	if err := store.Ping(ctx); err != nil {
		c.enabled = false
		c.log.Warnw("cache store unreachable, caching disabled", "backend", store.Name(), "error", err)
		return c
	}
	c.log.Debugw("cache ready", "backend", store.Name(), "ttl", c.defaultTTL)
	return c
}

// Disabled returns a cache that never stores anything.
func Disabled() *Cache {
	return &Cache{defaultTTL: DefaultTTL, log: zap.NewNop().Sugar()}
}

// Open builds a cache for the named backend.
func Open(ctx context.Context, backend, redisURL string, opts ...Option) (*Cache, error) {
	switch strings.ToLower(backend) {
	case BackendRedis:
		store, err := DialRedis(redisURL)
		if err != nil {
			return nil, errors.Wrap(errors.Config, "invalid redis url", err)
		}
		return New(ctx, store, opts...), nil
	case BackendMemory, "":
		return New(ctx, NewMemoryStore(DefaultTTL), opts...), nil
	case BackendNone:
		return New(ctx, nil, opts...), nil
	}
	return nil, errors.Newf(errors.Config, "unknown cache backend %q", backend)
}

// Enabled reports whether the cache is storing results.
func (c *Cache) Enabled() bool { return c.enabled }

// Fingerprint hashes query text into a short stable hex string.
func Fingerprint(text string) string {
	sum := xxh3.HashString128(strings.TrimSpace(text)).Bytes()
	return hex.EncodeToString(sum[:])
}

// Key builds the cache key for a query in a session.
func Key(sessionID, text string) string {
	return fmt.Sprintf("query:%s:%s", sessionID, Fingerprint(text))
}

// AllPattern matches every query result key.
const AllPattern = "query:*"

// SessionPattern matches every key of one session.
func SessionPattern(sessionID string) string {
	return fmt.Sprintf("query:%s:*", sessionID)
}

// Get returns the cached result for key. Store and decode failures are
// counted and reported as misses.
func (c *Cache) Get(ctx context.Context, key string) (normalize.Result, bool) {
	if !c.enabled {
		c.misses.Add(1)
		return normalize.Result{}, false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.fail("get", key, err)
		c.misses.Add(1)
		return normalize.Result{}, false
	}
	if !ok {
		c.misses.Add(1)
		return normalize.Result{}, false
	}

	var res normalize.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.fail("decode", key, err)
		c.misses.Add(1)
		return normalize.Result{}, false
	}
	c.hits.Add(1)
	return res, true
}

// Set stores res under key. A non-positive ttl means the default.
func (c *Cache) Set(ctx context.Context, key string, res normalize.Result, ttl time.Duration) bool {
	if !c.enabled {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.fail("encode", key, err)
		return false
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.fail("set", key, err)
		return false
	}
	c.sets.Add(1)
	return true
}

// Delete removes key, reporting whether it existed.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.enabled {
		return false
	}
	ok, err := c.store.Delete(ctx, key)
	if err != nil {
		c.fail("delete", key, err)
		return false
	}
	return ok
}

// Clear removes every key matching pattern.
func (c *Cache) Clear(ctx context.Context, pattern string) int {
	if !c.enabled {
		return 0
	}
	n, err := c.store.Clear(ctx, pattern)
	if err != nil {
		c.fail("clear", pattern, err)
	}
	return n
}

func (c *Cache) Stats() Stats {
	s := Stats{
		Backend: BackendNone,
		Enabled: c.enabled,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Errors:  c.errs.Load(),
	}
	if c.store != nil {
		s.Backend = c.store.Name()
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *Cache) fail(op, key string, err error) {
	c.errs.Add(1)
	c.log.Warnw("cache operation failed", "op", op, "key", key,
		"error", errors.Wrap(errors.Cache, op+" failed", err))
}
