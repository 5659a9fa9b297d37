package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
)

func testLimiter(limit int, window time.Duration, clock *time.Time) *Limiter {
	return NewLimiter(config.RateLimitConfig{
		Limit:         limit,
		Window:        window,
		IdleRetention: 5 * time.Minute,
	}, zap.NewNop(), WithClock(func() time.Time { return *clock }))
}

func TestAllowUnderLimit(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := testLimiter(3, 10*time.Second, &clock)

	for i := 0; i < 3; i++ {
		result := limiter.Allow("user:alice")
		assert.True(t, result.Allowed)
		assert.Equal(t, 2-i, result.Remaining)
	}
}

func TestDenyOverLimit(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	limiter := testLimiter(3, 10*time.Second, &clock)

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow("user:alice").Allowed)
	}

	clock = start.Add(time.Second)
	result := limiter.Allow("user:alice")
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 9*time.Second, result.RetryAfter,
		"retry is the time until the oldest request exits the window")
	assert.Equal(t, start.Add(10*time.Second), result.ResetAt)
}

func TestWindowSlides(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	limiter := testLimiter(3, 10*time.Second, &clock)

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow("user:alice").Allowed)
	}

	// Still within the window.
	clock = start.Add(9 * time.Second)
	assert.False(t, limiter.Allow("user:alice").Allowed)

	// The first request has aged out exactly one window later.
	clock = start.Add(10 * time.Second)
	assert.True(t, limiter.Allow("user:alice").Allowed)
}

func TestDenialDoesNotConsumeCapacity(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	limiter := testLimiter(2, 10*time.Second, &clock)

	require.True(t, limiter.Allow("user:alice").Allowed)
	require.True(t, limiter.Allow("user:alice").Allowed)

	// Hammering while denied must not push the reset time out.
	for i := 1; i <= 5; i++ {
		clock = start.Add(time.Duration(i) * time.Second)
		result := limiter.Allow("user:alice")
		assert.False(t, result.Allowed)
		assert.Equal(t, start.Add(10*time.Second), result.ResetAt)
	}

	clock = start.Add(10 * time.Second)
	assert.True(t, limiter.Allow("user:alice").Allowed)
}

func TestIdentifiersAreIndependent(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := testLimiter(1, 10*time.Second, &clock)

	assert.True(t, limiter.Allow("user:alice").Allowed)
	assert.False(t, limiter.Allow("user:alice").Allowed)
	assert.True(t, limiter.Allow("user:bob").Allowed)
	assert.True(t, limiter.Allow("ip:10.0.0.1").Allowed)
}

func TestConcurrentBurstNeverExceedsLimit(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := testLimiter(10, time.Minute, &clock)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("user:alice").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestReapIdle(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	limiter := testLimiter(3, 10*time.Second, &clock)

	limiter.Allow("user:alice")
	limiter.Allow("user:bob")

	clock = start.Add(3 * time.Minute)
	limiter.Allow("user:bob")

	clock = start.Add(6 * time.Minute)
	removed := limiter.ReapIdle()
	assert.Equal(t, 1, removed, "only alice's window is past the idle retention")

	// Reaped identifiers start fresh.
	assert.True(t, limiter.Allow("user:alice").Allowed)
}
