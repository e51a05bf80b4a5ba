// Package capability implements the Capability Cache (spec §3): a
// TTL-bounded map from model id to "does this model's structured-output
// probe succeed", with at-most-one probe in flight per key (I5).
package capability

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultTTL = time.Hour

// entry is one cached probe outcome.
type entry struct {
	value   bool
	probed  time.Time
}

// Cache answers "does modelId support structured output" with a 1-hour TTL,
// sharing a single in-flight probe across concurrent first-time callers.
//
// Adapted from the dedupe-cache shape (TTL map guarded by a mutex), extended
// with golang.org/x/sync/singleflight because dedupe-style caches only
// coalesce keys already seen, never concurrent *first* lookups of the same
// key — which is exactly what I5 requires.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	group   singleflight.Group
}

// New creates a capability cache with the default 1-hour TTL.
func New() *Cache {
	return &Cache{entries: make(map[string]entry), ttl: defaultTTL}
}

// NewWithTTL creates a capability cache with an explicit TTL, for tests.
func NewWithTTL(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]entry), ttl: ttl}
}

// Lookup returns the cached value and whether it is present and unexpired.
func (c *Cache) Lookup(modelID string) (value bool, ok bool) {
	return c.lookupAt(modelID, time.Now())
}

func (c *Cache) lookupAt(modelID string, now time.Time) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[modelID]
	if !found {
		return false, false
	}
	if c.ttl > 0 && now.Sub(e.probed) >= c.ttl {
		return false, false
	}
	return e.value, true
}

// Set stores a probe outcome.
func (c *Cache) Set(modelID string, value bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[modelID] = entry{value: value, probed: time.Now()}
}

// Invalidate removes a cached entry, used when a live call hits a
// format-error response that contradicts a cached "true".
func (c *Cache) Invalidate(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, modelID)
}

// ProbeFunc runs a structured-output probe and reports whether it succeeded.
type ProbeFunc func(ctx context.Context) (bool, error)

// GetOrProbe returns the cached value for modelID, or — if absent/expired —
// runs probe exactly once even if called concurrently by multiple callers
// for the same modelID, caching the result before returning it.
func (c *Cache) GetOrProbe(ctx context.Context, modelID string, probe ProbeFunc) (bool, error) {
	if v, ok := c.Lookup(modelID); ok {
		return v, nil
	}
	result, err, _ := c.group.Do(modelID, func() (any, error) {
		// Re-check under the singleflight key: another caller may have
		// populated the cache between our Lookup and Do.
		if v, ok := c.Lookup(modelID); ok {
			return v, nil
		}
		ok, probeErr := probe(ctx)
		if probeErr != nil {
			return false, probeErr
		}
		c.Set(modelID, ok)
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}
