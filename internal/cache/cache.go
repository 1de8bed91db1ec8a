// Package cache is the read-through TTL cache in front of the directory.
//
// Entries live under "entity:{id}" or the "all-entities" snapshot key. An
// entry is visible while its age is at most the TTL. Concurrent misses on
// the same key may both reach the directory; the last write wins.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/logger"
)

const (
	// DefaultTTL bounds staleness of cached accounts.
	DefaultTTL = 300 * time.Second
	// DefaultSweepEvery runs an expiry sweep on every Nth single-account read.
	DefaultSweepEvery = 10
	// AllKey holds the full account list snapshot.
	AllKey = "all-entities"
)

// EntityKey returns the cache key for one account.
func EntityKey(id string) string { return "entity:" + id }

type entry struct {
	one      *directory.Entity
	all      []directory.Entity
	cachedAt time.Time
}

// Cache wraps a directory.Client with per-key TTL caching.
type Cache struct {
	client     directory.Client
	ttl        time.Duration
	sweepEvery uint64
	now        func() time.Time
	log        *logger.Logger
	metrics    *Metrics

	mu      sync.RWMutex
	entries map[string]entry
	reads   atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

func WithTTL(d time.Duration) Option { return func(c *Cache) { c.ttl = d } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func WithLogger(l *logger.Logger) Option { return func(c *Cache) { c.log = l } }

func WithMetrics(m *Metrics) Option { return func(c *Cache) { c.metrics = m } }

// WithSweepEvery sets N for the opportunistic sweep; 0 disables it.
func WithSweepEvery(n int) Option {
	return func(c *Cache) { c.sweepEvery = uint64(n) }
}

// New creates an empty cache over client.
func New(client directory.Client, opts ...Option) *Cache {
	c := &Cache{
		client:     client,
		ttl:        DefaultTTL,
		sweepEvery: DefaultSweepEvery,
		now:        time.Now,
		log:        logger.NewNop(),
		entries:    make(map[string]entry),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "cache")
	return c
}

// GetOne returns the account or false. Directory failures are logged and
// never cached.
func (c *Cache) GetOne(ctx context.Context, id string) (*directory.Entity, bool) {
	e, err := c.Load(ctx, id)
	if err != nil {
		return nil, false
	}
	return e, true
}

// Load is GetOne that surfaces the directory error, so callers can tell
// directory.ErrNotFound from other failures.
func (c *Cache) Load(ctx context.Context, id string) (*directory.Entity, error) {
	if c.sweepEvery > 0 && c.reads.Add(1)%c.sweepEvery == 0 {
		c.SweepExpired()
	}

	key := EntityKey(id)
	if ent, ok := c.lookup(key); ok && ent.one != nil {
		c.metrics.hit()
		return ent.one.Clone(), nil
	}
	c.metrics.miss()

	e, err := c.client.FetchOne(ctx, id)
	if err != nil {
		c.metrics.fetchError()
		c.log.Warn("fetching account failed", "id", id, "error", err)
		return nil, err
	}
	c.store(key, entry{one: e.Clone(), cachedAt: c.now()})
	return e.Clone(), nil
}

// GetAll returns the normalized account list, or false when the directory
// failed or returned nothing. Empty results are never cached.
func (c *Cache) GetAll(ctx context.Context) ([]directory.Entity, bool) {
	list, err := c.LoadAll(ctx)
	if err != nil || len(list) == 0 {
		return nil, false
	}
	return list, true
}

// LoadAll is GetAll that surfaces the directory error.
func (c *Cache) LoadAll(ctx context.Context) ([]directory.Entity, error) {
	if ent, ok := c.lookup(AllKey); ok {
		c.metrics.hit()
		return copyList(ent.all), nil
	}
	c.metrics.miss()

	resp, err := c.client.FetchAll(ctx)
	if err != nil {
		c.metrics.fetchError()
		c.log.Warn("fetching account list failed", "error", err)
		return nil, err
	}
	list := directory.Normalize(resp)
	if len(list) == 0 {
		return nil, nil
	}
	c.store(AllKey, entry{all: copyList(list), cachedAt: c.now()})
	return list, nil
}

// InvalidateOne drops the cached account, if any.
func (c *Cache) InvalidateOne(id string) {
	c.mu.Lock()
	delete(c.entries, EntityKey(id))
	n := len(c.entries)
	c.mu.Unlock()
	c.metrics.invalidated()
	c.metrics.setSize(n)
}

// InvalidateList drops only the list snapshot.
func (c *Cache) InvalidateList() {
	c.mu.Lock()
	delete(c.entries, AllKey)
	n := len(c.entries)
	c.mu.Unlock()
	c.metrics.invalidated()
	c.metrics.setSize(n)
}

// InvalidateAll drops every entry including the list snapshot.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	c.metrics.invalidated()
	c.metrics.setSize(0)
}

// SweepExpired removes every entry older than the TTL and returns how many
// were removed.
func (c *Cache) SweepExpired() int {
	now := c.now()
	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.cachedAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.evicted(removed)
	c.metrics.setSize(n)
	if removed > 0 {
		c.log.Debug("swept expired entries", "removed", removed, "remaining", n)
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys reports the stored keys; used by diagnostics and tests.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

func (c *Cache) lookup(key string) (entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return entry{}, false
	}
	if c.now().Sub(e.cachedAt) > c.ttl {
		c.mu.Lock()
		// re-check: another caller may have refreshed it
		if cur, ok := c.entries[key]; ok && c.now().Sub(cur.cachedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return entry{}, false
	}
	return e, true
}

func (c *Cache) store(key string, e entry) {
	c.mu.Lock()
	c.entries[key] = e
	n := len(c.entries)
	c.mu.Unlock()
	c.metrics.setSize(n)
}

func copyList(in []directory.Entity) []directory.Entity {
	out := make([]directory.Entity, len(in))
	for i := range in {
		out[i] = *in[i].Clone()
	}
	return out
}
