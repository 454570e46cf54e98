package engine

import (
	"sync"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// Cache memoizes the most recent evaluation under its input fingerprint.
// It holds at most one live entry: any key change (new prices, settings
// edit, day rollover) or TTL expiry replaces it synchronously.
//
// The mutex is held for the duration of a recomputation, so concurrent
// callers during a miss wait for the single in-flight compute rather than
// duplicating it.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	key        string
	value      types.EvaluationResult
	computedAt time.Time
	valid      bool
}

// NewCache creates a cache with the given TTL and clock. The TTL should sit
// just under the host's polling interval so polls mostly hit while price or
// settings changes still take effect promptly.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now}
}

// Get returns the cached value for key, computing and storing it when the
// key is cold or the entry expired. The second return reports a cache hit.
// A failed compute leaves the previous entry untouched so a caller can keep
// using it until it expires.
func (c *Cache) Get(key string, compute func() (types.EvaluationResult, error)) (types.EvaluationResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.key == key && c.now().Sub(c.computedAt) < c.ttl {
		return c.value, true, nil
	}

	value, err := compute()
	if err != nil {
		return types.EvaluationResult{}, false, err
	}

	c.key = key
	c.value = value
	c.computedAt = c.now()
	c.valid = true
	return value, false, nil
}

// Latest returns the stored entry regardless of key, if it has not expired.
// It serves as a fallback when a fresh evaluation fails validation.
func (c *Cache) Latest() (types.EvaluationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.now().Sub(c.computedAt) >= c.ttl {
		return types.EvaluationResult{}, false
	}
	return c.value, true
}

// Invalidate drops the stored entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}
