package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// CachedProvider memoizes route lookups for a TTL. Route geometry between
// fixed rallying points changes rarely, so a short TTL removes most of the
// provider round-trips during match computation.
type CachedProvider struct {
	inner Provider
	ttl   time.Duration

	mu    sync.RWMutex
	store map[string]cacheEntry
}

type cacheEntry struct {
	route Route
	ts    time.Time
}

func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, ttl: ttl, store: make(map[string]cacheEntry)}
}

func (c *CachedProvider) Route(ctx context.Context, points []types.Point) (Route, error) {
	k := cacheKey(points)

	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if ok && time.Since(e.ts) <= c.ttl {
		return e.route, nil
	}

	route, err := c.inner.Route(ctx, points)
	if err != nil {
		return Route{}, err
	}

	c.mu.Lock()
	c.store[k] = cacheEntry{route: route, ts: time.Now()}
	c.mu.Unlock()
	return route, nil
}

func cacheKey(points []types.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
	}
	return strings.Join(parts, "->")
}
