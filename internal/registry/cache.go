package registry

import (
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// clientCache is a TTL cache for clients built from caller-forwarded tokens.
// Raw tokens never become map keys; entries are keyed by a blake2b digest.
type clientCache struct {
	mu      sync.RWMutex
	entries map[string]cachedClient
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

type cachedClient struct {
	client    any
	expiresAt time.Time
}

// newClientCache creates a cache with the given TTL.
// Call Close to stop the background eviction goroutine.
func newClientCache(ttl time.Duration) *clientCache {
	c := &clientCache{
		entries: make(map[string]cachedClient),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// cacheKey derives the cache key for a service and caller credentials.
func cacheKey(service, token, cloudID string) string {
	sum := blake2b.Sum256([]byte(service + "\x00" + cloudID + "\x00" + token))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached client and true if a valid entry exists.
func (c *clientCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.client, true
}

// Set stores a client with the configured TTL.
func (c *clientCache) Set(key string, client any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cachedClient{
		client:    client,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Len reports the number of entries, expired or not.
func (c *clientCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background eviction goroutine. Safe to call twice.
func (c *clientCache) Close() {
	c.once.Do(func() { close(c.done) })
}

// evictLoop removes expired entries every minute.
func (c *clientCache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *clientCache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}
