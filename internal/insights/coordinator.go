// CLAUDE:SUMMARY Request coordinator — per-key dedup windows plus a TTL result cache, injected not global
package insights

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/config"
)

// RequestMode selects the dedup window applied to a request.
type RequestMode int

const (
	// ModeForced bypasses dedup entirely; the cache is still consulted by
	// callers that want it but a forced request is never rejected.
	ModeForced RequestMode = iota
	// ModeCached allows a cached result, so near-simultaneous requests are
	// cheap; the window only has to absorb accidental double-clicks.
	ModeCached
	// ModeFresh always does real work, so repeats are throttled harder.
	ModeFresh
)

// TooFrequentError reports a request rejected inside its dedup window.
type TooFrequentError struct {
	RetryAfter time.Duration
}

func (e *TooFrequentError) Error() string {
	return fmt.Sprintf("request repeated too quickly, retry in %dms", e.RetryAfter.Milliseconds())
}

type cacheEntry struct {
	value    any
	storedAt time.Time
}

// Coordinator deduplicates repeated pipeline requests per key and caches
// results for a short TTL. Values are opaque to it; callers store whatever
// payload the keyed operation produces. It is injected into the services
// that need it; there is one per process, owned by main.
type Coordinator struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	cache    map[string]cacheEntry

	cachedWindow time.Duration
	freshWindow  time.Duration
	ttl          time.Duration
	now          func() time.Time
}

func NewCoordinator(cfg config.InsightsConfig) *Coordinator {
	c := &Coordinator{
		lastSeen:     make(map[string]time.Time),
		cache:        make(map[string]cacheEntry),
		cachedWindow: time.Duration(cfg.CachedDedupMs) * time.Millisecond,
		freshWindow:  time.Duration(cfg.FreshDedupMs) * time.Millisecond,
		ttl:          time.Duration(cfg.CacheTTLMin) * time.Minute,
		now:          time.Now,
	}
	if c.cachedWindow <= 0 {
		c.cachedWindow = time.Second
	}
	if c.freshWindow <= 0 {
		c.freshWindow = 3 * time.Second
	}
	if c.ttl <= 0 {
		c.ttl = 15 * time.Minute
	}
	return c
}

// SetClock overrides the time source for tests.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Key builds the dedup/cache key for a request.
func Key(userID, operation string) string { return userID + "/" + operation }

// Check admits or rejects a request. A valid cached result short-circuits
// dedup and is returned with its age in whole minutes. Otherwise the
// request is rejected with a TooFrequentError when another request for the
// same key was admitted inside the mode's window. An admitted request
// updates the window.
func (c *Coordinator) Check(key string, mode RequestMode) (any, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	if mode != ModeFresh {
		if e, ok := c.cache[key]; ok {
			age := now.Sub(e.storedAt)
			if age <= c.ttl {
				return e.value, int(age.Minutes()), nil
			}
			delete(c.cache, key)
		}
	}

	window := c.window(mode)
	if window > 0 {
		if last, ok := c.lastSeen[key]; ok {
			elapsed := now.Sub(last)
			if elapsed < window {
				return nil, 0, &TooFrequentError{RetryAfter: window - elapsed}
			}
		}
	}
	c.lastSeen[key] = now
	return nil, 0, nil
}

// Store records a generated result for TTL reuse.
func (c *Coordinator) Store(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{value: value, storedAt: c.now()}
}

// Invalidate drops any cached result for the key. Called after new events
// land so the next request regenerates.
func (c *Coordinator) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
}

// InvalidatePrefix drops every cached result whose key starts with prefix.
// Used for operations keyed by extra parameters, like analytics per window.
func (c *Coordinator) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.cache {
		if strings.HasPrefix(key, prefix) {
			delete(c.cache, key)
		}
	}
}

func (c *Coordinator) window(mode RequestMode) time.Duration {
	switch mode {
	case ModeCached:
		return c.cachedWindow
	case ModeFresh:
		return c.freshWindow
	default:
		return 0
	}
}
