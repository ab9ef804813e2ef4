package tracker

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultSeenCacheSize = 10000

// SeenCache remembers recently alerted event keys. It is bounded, resets on
// restart and is only a first filter; the digest store's unique index is
// authoritative.
type SeenCache struct {
	cache *lru.Cache[string, struct{}]
}

// NewSeenCache creates a cache holding up to size keys.
func NewSeenCache(size int) (*SeenCache, error) {
	if size <= 0 {
		size = defaultSeenCacheSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &SeenCache{cache: cache}, nil
}

// Seen marks key and reports whether it was already present.
func (c *SeenCache) Seen(key string) bool {
	found, _ := c.cache.ContainsOrAdd(key, struct{}{})
	return found
}

// Forget removes key so a later occurrence is processed again.
func (c *SeenCache) Forget(key string) {
	c.cache.Remove(key)
}

// Len returns the number of remembered keys.
func (c *SeenCache) Len() int {
	return c.cache.Len()
}
