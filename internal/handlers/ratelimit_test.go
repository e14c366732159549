package handlers

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_WindowAndReset(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "attempt %d", i+1)
	}
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "keys are independent")

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"), "window expired lazily")
}

func TestRateLimiter_Bounded(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute, 3)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		rl.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	assert.Equal(t, 3, rl.size())

	// full and nothing expired: the oldest key is evicted
	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.99"))
	assert.Equal(t, 3, rl.size())
	assert.True(t, rl.Allow("10.0.0.0"), "evicted key starts a fresh window")

	// everything expired: pruning clears the map
	now = now.Add(2 * time.Minute)
	rl.Allow("10.0.1.1")
	assert.Equal(t, 1, rl.size())
}
