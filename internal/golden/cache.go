package golden

import (
	"context"
	"sync"
	"time"
)

// Cached wraps a Source with a short-lived code-set cache. The code set is
// fetched on every view and export, and those reads dominate admin traffic;
// descriptions and full-table reads pass through uncached.
type Cached struct {
	Source
	ttl time.Duration

	mu      sync.Mutex
	set     CodeSet
	fetched time.Time
}

// NewCached wraps src. A non-positive ttl disables caching.
func NewCached(src Source, ttl time.Duration) *Cached {
	return &Cached{Source: src, ttl: ttl}
}

func (c *Cached) ListCodes(ctx context.Context) CodeSet {
	if c.ttl <= 0 {
		return c.Source.ListCodes(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// An empty cached set means the last fetch failed; retry instead of
	// serving "nothing valid" for a full TTL.
	if c.set != nil && len(c.set) > 0 && time.Since(c.fetched) < c.ttl {
		return c.set
	}
	c.set = c.Source.ListCodes(ctx)
	c.fetched = time.Now()
	return c.set
}
