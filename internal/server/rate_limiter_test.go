package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstAndRefill(t *testing.T) {
	t.Parallel()

	rl := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: 3 * time.Second})
	start := rl.last

	for i := range 3 {
		assert.True(t, rl.allowAt(start), "token %d", i)
	}
	assert.False(t, rl.allowAt(start), "bucket is empty")

	// one token refills every second
	assert.True(t, rl.allowAt(start.Add(time.Second)))
	assert.False(t, rl.allowAt(start.Add(time.Second)))

	// refill is capped at the burst size
	later := start.Add(time.Hour)
	for i := range 3 {
		assert.True(t, rl.allowAt(later), "token %d after idle", i)
	}
	assert.False(t, rl.allowAt(later))
}

func TestRateLimiterInvalidConfigFallsBack(t *testing.T) {
	t.Parallel()

	rl := newRateLimiter(RateLimitConfig{})
	start := rl.last
	assert.True(t, rl.allowAt(start))
	assert.False(t, rl.allowAt(start))
	assert.True(t, rl.allowAt(start.Add(time.Second)))
}
