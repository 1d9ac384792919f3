package export

import (
	"sync"
	"time"
)

type coalesceEntry struct {
	ready   chan struct{}
	result  *Result
	err     error
	expires time.Time
	// invalid marks an in-flight entry whose source changed mid-render.
	// Current waiters still get the result; it is never cached.
	invalid bool
}

// Coalescer deduplicates concurrent export requests for the same key and
// keeps completed results in a bounded TTL cache. Waiters for an in-flight
// generation share the single result instead of each spawning a renderer.
// Failed generations are not cached so the next caller retries.
type Coalescer struct {
	mu         sync.Mutex
	entries    map[string]*coalesceEntry
	ttl        time.Duration
	maxEntries int
}

// NewCoalescer creates a coalescer holding at most maxEntries cached results,
// each valid for ttl after completion.
func NewCoalescer(ttl time.Duration, maxEntries int) *Coalescer {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &Coalescer{
		entries:    make(map[string]*coalesceEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Do returns the cached result for key, joins an in-flight generation, or
// runs fn itself.
func (c *Coalescer) Do(key string, fn func() (*Result, error)) (*Result, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		select {
		case <-e.ready:
			if e.err == nil && time.Now().Before(e.expires) {
				c.mu.Unlock()
				return e.result, nil
			}
			// Stale or failed entry, fall through and regenerate.
			delete(c.entries, key)
		default:
			// Generation in flight, wait for it.
			c.mu.Unlock()
			<-e.ready
			return e.result, e.err
		}
	}

	c.evictLocked()
	e := &coalesceEntry{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	result, err := fn()

	c.mu.Lock()
	e.result = result
	e.err = err
	e.expires = time.Now().Add(c.ttl)
	if (err != nil || e.invalid) && c.entries[key] == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	close(e.ready)

	return result, err
}

// Invalidate drops the cached result for key, forcing the next request to
// regenerate. Called after a plan mutation.
func (c *Coalescer) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		select {
		case <-e.ready:
			delete(c.entries, key)
		default:
			// In flight: current waiters keep their result, but it must
			// not be cached once the generation finishes.
			e.invalid = true
		}
	}
}

// Len reports the number of tracked entries.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked keeps the map under maxEntries. Expired entries go first, then
// the entry closest to expiry. In-flight entries are never evicted.
func (c *Coalescer) evictLocked() {
	if len(c.entries) < c.maxEntries {
		return
	}

	now := time.Now()
	var oldestKey string
	var oldestExpiry time.Time
	for key, e := range c.entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if now.After(e.expires) {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = e.expires
		}
	}

	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
