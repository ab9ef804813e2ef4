// Package cooldown rate limits chat commands per member.
package cooldown

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/chainsafe/mintwatch/pkg/config"
)

// Registry holds one token bucket per (command, user). Buckets idle for
// longer than the configured TTL are evicted.
type Registry struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRegistry creates a registry from cfg.
func NewRegistry(cfg config.CooldownConfig) *Registry {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	size := cfg.MaxUsers
	if size <= 0 {
		size = 10000
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Registry{
		limiters: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow consumes one token for userID on command. When the bucket is empty
// it returns false and how long until the next token.
func (r *Registry) Allow(command, userID string) (bool, time.Duration) {
	key := command + ":" + userID

	r.mu.Lock()
	lim, ok := r.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
	}
	// re-adding refreshes the idle TTL
	r.limiters.Add(key, lim)
	r.mu.Unlock()

	now := r.now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of live buckets.
func (r *Registry) Len() int {
	return r.limiters.Len()
}
