// Package cache keeps fetched module fragments in memory with per-module
// TTLs. A failed refresh falls back to the last good fragment.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hostgenius/panel/internal/module"
	"github.com/hostgenius/panel/internal/observability"
)

// ErrNotFetchable is returned for modules rendered locally.
var ErrNotFetchable = errors.New("cache: module has no source URL")

// Fetcher retrieves the fragment at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Resolver looks up module descriptors.
type Resolver interface {
	Describe(id string) (module.Descriptor, error)
}

// State is the lifecycle position of one module's entry.
type State int

const (
	Absent State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Result is what Get hands back to the renderer.
type Result struct {
	Content   string
	FetchedAt time.Time
	// Degraded is set when a refresh failed and an older fragment was served.
	Degraded bool
	// FromCache is set when no request was made.
	FromCache bool
}

// EntryInfo describes one cached entry for debug listings.
type EntryInfo struct {
	ID        string
	FetchedAt time.Time
	Age       time.Duration
	TTL       time.Duration
	State     State
}

type entry struct {
	content   string
	fetchedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	fetcher  Fetcher
	resolver Resolver
	policy   Policy
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Collector

	mu      sync.Mutex
	entries map[string]entry
	gens    map[string]uint64 // bumped by Invalidate
	epoch   uint64            // bumped by InvalidateAll

	inflight singleflight.Group
}

// generation identifies the invalidation state a fetch started under.
// A fetch only stores its result if no invalidation happened since.
type generation struct {
	id    uint64
	epoch uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for degraded serves and invalidations.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics records cache activity on m.
func WithMetrics(m *observability.Collector) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates an empty cache that fetches through f and resolves module
// URLs through r.
func New(f Fetcher, r Resolver, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  f,
		resolver: r,
		policy:   DefaultPolicy(),
		now:      time.Now,
		logger:   zap.NewNop(),
		entries:  make(map[string]entry),
		gens:     make(map[string]uint64),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Policy returns the active TTL policy.
func (c *Cache) Policy() Policy {
	return c.policy
}

// Get returns the fragment for id, fetching it when the entry is absent,
// stale, or the module is force-reloaded. Concurrent calls for the same
// id share one request unless an invalidation happened in between. The
// shared request is not canceled with any single caller's ctx; each
// caller stops waiting when its own ctx is done.
func (c *Cache) Get(ctx context.Context, id string) (Result, error) {
	d, err := c.resolver.Describe(id)
	if err != nil {
		return Result{}, err
	}
	if !d.Fetchable() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFetchable, id)
	}

	c.mu.Lock()
	e, ok := c.entries[id]
	gen := generation{id: c.gens[id], epoch: c.epoch}
	c.mu.Unlock()
	if ok && !c.policy.Forced(id) && c.stateOf(id, e) == Fresh {
		c.count(c.hits(), id)
		return Result{Content: e.content, FetchedAt: e.fetchedAt, FromCache: true}, nil
	}

	key := fmt.Sprintf("%s@%d.%d", id, gen.epoch, gen.id)
	flight := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (any, error) {
		return c.refresh(flight, id, d.URL, gen)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// refresh performs the single request for id and applies the
// stale-on-error fallback.
func (c *Cache) refresh(ctx context.Context, id, url string, gen generation) (Result, error) {
	c.count(c.fetches(), id)
	content, err := c.fetcher.Fetch(ctx, url)
	if err == nil {
		e := entry{content: content, fetchedAt: c.now()}
		c.mu.Lock()
		current := gen == generation{id: c.gens[id], epoch: c.epoch}
		if current {
			c.entries[id] = e
		}
		c.mu.Unlock()
		if !current {
			c.logger.Debug("discarding fragment fetched before invalidation", zap.String("module", id))
		}
		return Result{Content: e.content, FetchedAt: e.fetchedAt}, nil
	}

	c.count(c.fetchErrors(), id)
	c.mu.Lock()
	prior, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("fetch failed with nothing cached", zap.String("module", id), zap.Error(err))
		return Result{}, err
	}

	c.count(c.degraded(), id)
	c.logger.Warn("serving stale fragment after failed refresh",
		zap.String("module", id),
		zap.Time("fetched_at", prior.fetchedAt),
		zap.Duration("age", c.now().Sub(prior.fetchedAt)),
		zap.Error(err),
	)
	return Result{Content: prior.content, FetchedAt: prior.fetchedAt, Degraded: true}, nil
}

// Invalidate drops the entry for id. An in-flight fetch is not canceled,
// but its result is no longer stored and the next Get issues a new
// request.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	_, ok := c.entries[id]
	delete(c.entries, id)
	c.gens[id]++
	c.mu.Unlock()
	if ok {
		c.count(c.invalidations(), id)
		c.logger.Debug("invalidated", zap.String("module", id))
	}
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.entries = make(map[string]entry)
	c.epoch++
	c.mu.Unlock()

	for _, id := range ids {
		c.count(c.invalidations(), id)
	}
	c.logger.Debug("invalidated all", zap.Int("entries", len(ids)))
}

// State reports where id sits in the Absent/Fresh/Stale lifecycle.
// Force-reloaded modules with an entry report Stale.
func (c *Cache) State(id string) State {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return Absent
	}
	return c.stateOf(id, e)
}

// Snapshot lists cached entries sorted by id.
func (c *Cache) Snapshot() []EntryInfo {
	now := c.now()
	c.mu.Lock()
	out := make([]EntryInfo, 0, len(c.entries))
	for id, e := range c.entries {
		out = append(out, EntryInfo{
			ID:        id,
			FetchedAt: e.fetchedAt,
			Age:       now.Sub(e.fetchedAt),
			TTL:       c.policy.TTL(id),
			State:     c.stateAt(id, e, now),
		})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunInvalidator drops id's entry every interval until ctx is done. It
// never refetches; the next Get goes to the network.
func (c *Cache) RunInvalidator(ctx context.Context, id string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Invalidate(id)
		}
	}
}

func (c *Cache) stateOf(id string, e entry) State {
	return c.stateAt(id, e, c.now())
}

func (c *Cache) stateAt(id string, e entry, now time.Time) State {
	if c.policy.Forced(id) || now.Sub(e.fetchedAt) >= c.policy.TTL(id) {
		return Stale
	}
	return Fresh
}
