package supabase

import (
	"context"
	"sync"
	"time"

	supa "github.com/supabase-community/supabase-go"
)

// clientCache keeps one backend client per access token until the token
// expires or the TTL runs out, whichever is first.
type clientCache struct {
	mu         sync.RWMutex
	items      map[string]cachedClient
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cachedClient struct {
	client    *supa.Client
	expiresAt time.Time
}

func newClientCache(ttl time.Duration, maxEntries int) *clientCache {
	return &clientCache{
		items:      make(map[string]cachedClient),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *clientCache) get(token string) (*supa.Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[token]
	if !ok || !c.now().Before(item.expiresAt) {
		return nil, false
	}
	return item.client, true
}

// set stores client for token. tokenExpiry may be zero when unknown.
func (c *clientCache) set(token string, client *supa.Client, tokenExpiry time.Time) {
	expiresAt := c.now().Add(c.ttl)
	if !tokenExpiry.IsZero() && tokenExpiry.Before(expiresAt) {
		expiresAt = tokenExpiry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.maxEntries {
		c.removeExpiredLocked()
	}
	if len(c.items) >= c.maxEntries {
		for key := range c.items {
			delete(c.items, key)
			break
		}
	}
	c.items[token] = cachedClient{client: client, expiresAt: expiresAt}
}

func (c *clientCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *clientCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeExpiredLocked()
}

func (c *clientCache) removeExpiredLocked() {
	now := c.now()
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// run periodically removes expired clients until ctx is done.
func (c *clientCache) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}
