package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterExhaustsBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("1.2.3.4"), "burst exhausted")

	// Other clients have their own budget.
	assert.True(t, rl.Allow("5.6.7.8"))
}

func TestRateLimiterCleanupEvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))

	// Not idle long enough: the drained bucket survives cleanup.
	rl.Cleanup(time.Minute)
	assert.False(t, rl.Allow("1.2.3.4"))

	// Idle past the cutoff: the entry is evicted and the budget resets.
	rl.mu.Lock()
	rl.visitors["1.2.3.4"].lastSeen = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()
	rl.Cleanup(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))
}
