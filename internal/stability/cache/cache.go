// Package cache memoizes lookups of externally owned resource handles.
package cache

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/stability/metrics"
)

// Lookup resolves a key against the external source (a DOM-like tree).
// It must not have side effects beyond the lookup itself.
type Lookup interface {
	Lookup(key string) (domain.Handle, bool)
}

// LookupFunc adapts a plain function to Lookup.
type LookupFunc func(key string) (domain.Handle, bool)

// Lookup calls f(key).
func (f LookupFunc) Lookup(key string) (domain.Handle, bool) {
	return f(key)
}

// Stats counts cache activity since creation.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Absent  int64 `json:"absent"`
	Clears  int64 `json:"clears"`
}

// Cache memoizes successful lookups only. An absent result is never stored,
// so a later lookup can still populate the entry once the resource exists.
// There is no eviction beyond Clear and Invalidate.
type Cache struct {
	source Lookup
	log    *slog.Logger

	mu      sync.RWMutex
	entries map[string]domain.Handle
	epoch   uint64 // bumped by Clear and Invalidate
	stats   Stats
}

// New creates a cache in front of source.
func New(source Lookup, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		source:  source,
		log:     log.With("component", "resource-cache"),
		entries: make(map[string]domain.Handle),
	}
}

// Get returns the handle for key, querying the source on a miss.
// A lookup that overlaps a Clear or Invalidate is discarded and repeated,
// so a handle from before the reset is never memoized.
func (c *Cache) Get(key string) (domain.Handle, bool) {
	for {
		c.mu.RLock()
		h, ok := c.entries[key]
		epoch := c.epoch
		c.mu.RUnlock()
		if ok {
			c.mu.Lock()
			c.stats.Hits++
			c.mu.Unlock()
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return h, true
		}

		h, found := c.source.Lookup(key)
		if !found || isNil(h) {
			c.mu.Lock()
			c.stats.Absent++
			c.mu.Unlock()
			metrics.CacheLookups.WithLabelValues("absent").Inc()
			c.log.Warn("Resource not found", "key", key)
			return nil, false
		}

		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			c.log.Debug("Cache reset during lookup, retrying", "key", key)
			continue
		}
		c.stats.Misses++
		metrics.CacheLookups.WithLabelValues("miss").Inc()

		// Another caller may have resolved the key while we were querying.
		// The first stored handle wins.
		if existing, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return existing, true
		}
		c.entries[key] = h
		c.mu.Unlock()
		return h, true
	}
}

// isNil also catches typed nils such as (*T)(nil) wrapped in a Handle.
func isNil(h domain.Handle) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Invalidate drops a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.epoch++
	c.mu.Unlock()
}

// Clear discards every memoized entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]domain.Handle)
	c.epoch++
	c.stats.Clears++
	c.mu.Unlock()

	c.log.Debug("Resource cache cleared", "entries", n)
}

// Len returns the number of memoized entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
