// Package cache memoizes query responses for a short time. Entries are tagged
// with the datasets they were computed from and dropped when one of those
// datasets is refreshed.
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-analytics/src/logger"
	"market-analytics/src/models"

	"golang.org/x/sync/singleflight"
)

// Stats are counters exposed through health
type Stats struct {
	Entries      int    `json:"entries"`
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	Invalidation uint64 `json:"invalidations"`
	Disabled     bool   `json:"disabled"`
}

// ResponseCache is safe for concurrent use
type ResponseCache struct {
	logger     *logger.Logger
	ttl        time.Duration
	maxEntries int
	disabled   bool
	now        func() time.Time

	mu          sync.RWMutex
	entries     map[string]*models.MCacheEntry
	byDataset   map[string]map[string]struct{}
	generations map[string]uint64

	group         singleflight.Group
	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// -----------------------------------------------------------------------------

func NewResponseCache(cfg models.MCacheConfig, log *logger.Logger) *ResponseCache {
	return &ResponseCache{
		logger:      log,
		ttl:         time.Duration(cfg.TTLSeconds) * time.Second,
		maxEntries:  cfg.MaxEntries,
		disabled:    cfg.Disabled,
		now:         time.Now,
		entries:     make(map[string]*models.MCacheEntry),
		byDataset:   make(map[string]map[string]struct{}),
		generations: make(map[string]uint64),
	}
}

// SetClock replaces the time source; tests use it to step past TTLs
func (c *ResponseCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// generationsLocked snapshots the generation of every dataset. Caller holds mu.
func (c *ResponseCache) generationsLocked(datasets []string) []uint64 {
	gens := make([]uint64, len(datasets))
	for i, ds := range datasets {
		gens[i] = c.generations[ds]
	}
	return gens
}

func sameGenerations(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------

// GetOrCompute returns the cached value of key, or runs fn and caches its
// result under the given dataset tags for ttl (the configured TTL when zero).
// Errors are returned but never cached. A result computed while one of its
// datasets was invalidated is returned to the caller but not stored.
func (c *ResponseCache) GetOrCompute(key string, datasets []string, ttl time.Duration, fn func() (interface{}, error)) (interface{}, error) {
	if c.disabled {
		return fn()
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.RLock()
	now := c.now()
	gens := c.generationsLocked(datasets)
	entry, ok := c.entries[key]
	if ok && !entry.Expired(now) && sameGenerations(entry.Generations, gens) {
		c.mu.RUnlock()
		c.hits.Add(1)
		return entry.Value, nil
	}
	c.mu.RUnlock()
	c.misses.Add(1)

	// Callers observing different generations must not share a computation
	flightKey := key + "#" + joinGenerations(gens)
	v, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		value, err := fn()
		if err != nil {
			return nil, err
		}
		c.store(key, datasets, gens, ttl, value)
		return value, nil
	})
	return v, err
}

// -----------------------------------------------------------------------------

func (c *ResponseCache) store(key string, datasets []string, gens []uint64, ttl time.Duration, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !sameGenerations(gens, c.generationsLocked(datasets)) {
		return
	}
	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.purgeLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.logger.Debug("cache full (%d entries), not storing %s", len(c.entries), key)
			return
		}
	}

	c.entries[key] = &models.MCacheEntry{
		Key:         key,
		Value:       value,
		InsertedAt:  now,
		TTL:         ttl,
		Datasets:    datasets,
		Generations: gens,
	}
	for _, ds := range datasets {
		keys, ok := c.byDataset[ds]
		if !ok {
			keys = make(map[string]struct{})
			c.byDataset[ds] = keys
		}
		keys[key] = struct{}{}
	}
}

// -----------------------------------------------------------------------------

// InvalidateDataset drops every entry tagged with dataset and bumps its
// generation so in-flight computations do not store stale results
func (c *ResponseCache) InvalidateDataset(dataset string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[dataset]++
	removed := 0
	for key := range c.byDataset[dataset] {
		if entry, ok := c.entries[key]; ok {
			c.removeLocked(entry)
			removed++
		}
	}
	delete(c.byDataset, dataset)
	c.invalidations.Add(1)
	return removed
}

// -----------------------------------------------------------------------------

// OnRefreshEvent invalidates a dataset once its full rebuild is installed.
// Partial hydration leaves the cache alone.
func (c *ResponseCache) OnRefreshEvent(event models.MRefreshEvent) {
	if event.Phase != models.PhaseFullHydrate || event.Status != models.StatusCompleted {
		return
	}
	n := c.InvalidateDataset(event.Dataset)
	c.logger.Info("invalidated %d cached responses for %s (snapshot v%d)", n, event.Dataset, event.SnapshotVersion)
}

// -----------------------------------------------------------------------------

func (c *ResponseCache) removeLocked(entry *models.MCacheEntry) {
	delete(c.entries, entry.Key)
	for _, ds := range entry.Datasets {
		if keys, ok := c.byDataset[ds]; ok {
			delete(keys, entry.Key)
			if len(keys) == 0 {
				delete(c.byDataset, ds)
			}
		}
	}
}

func (c *ResponseCache) purgeLocked(now time.Time) int {
	removed := 0
	for _, entry := range c.entries {
		if entry.Expired(now) {
			c.removeLocked(entry)
			removed++
		}
	}
	return removed
}

// Purge removes expired entries
func (c *ResponseCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

// -----------------------------------------------------------------------------

// RunJanitor purges expired entries every interval until ctx is done
func (c *ResponseCache) RunJanitor(ctx context.Context, interval time.Duration) {
	if c.disabled || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				c.logger.Debug("purged %d expired cache entries", n)
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (c *ResponseCache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Entries:      n,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Invalidation: c.invalidations.Load(),
		Disabled:     c.disabled,
	}
}

// -----------------------------------------------------------------------------

func joinGenerations(gens []uint64) string {
	parts := make([]string, len(gens))
	for i, g := range gens {
		parts[i] = strconv.FormatUint(g, 10)
	}
	return strings.Join(parts, ".")
}

// -----------------------------------------------------------------------------

// Key builds a cache key from an endpoint name and its parameters. List
// parameters must already be sorted by the caller.
func Key(endpoint string, params ...string) string {
	return endpoint + "?" + strings.Join(params, "&")
}
