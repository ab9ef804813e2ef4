package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chainsafe/mintwatch/pkg/config"
)

func TestRegistry_Allow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(config.CooldownConfig{PerMinute: 6, Burst: 2, IdleTTL: time.Minute, MaxUsers: 10})
	r.now = func() time.Time { return now }

	ok, _ := r.Allow("price", "u1")
	assert.True(t, ok)
	ok, _ = r.Allow("price", "u1")
	assert.True(t, ok)

	ok, wait := r.Allow("price", "u1")
	assert.False(t, ok)
	assert.InDelta(t, float64(10*time.Second), float64(wait), float64(time.Millisecond))

	// buckets are per user and per command
	ok, _ = r.Allow("price", "u2")
	assert.True(t, ok)
	ok, _ = r.Allow("ask", "u1")
	assert.True(t, ok)

	now = now.Add(10 * time.Second)
	ok, _ = r.Allow("price", "u1")
	assert.True(t, ok)
}

func TestRegistry_Bounded(t *testing.T) {
	r := NewRegistry(config.CooldownConfig{PerMinute: 60, Burst: 1, IdleTTL: time.Minute, MaxUsers: 2})

	r.Allow("price", "a")
	r.Allow("price", "b")
	r.Allow("price", "c")
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Defaults(t *testing.T) {
	r := NewRegistry(config.CooldownConfig{})
	ok, _ := r.Allow("flex", "u1")
	assert.True(t, ok)
}
