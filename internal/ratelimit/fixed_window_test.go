package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMemoryLimiter(clk clock.Clock) Limiter {
	return New(config.Config{
		Webhook: config.WebhookConfig{
			RateLimitEnabled: true,
			RateLimitPerSec:  1,
			RateLimitWindow:  time.Second,
		},
	}, zap.NewNop(), clk)
}

func TestMemoryLimiterFixedWindow(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	limiter := newMemoryLimiter(clk)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second request in the same window is rejected.
	ok, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different source has its own counter.
	ok, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	// The window resets after one second.
	clk.Advance(time.Second)
	ok, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterEvictsLapsedWindows(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	limiter := newMemoryLimiter(clk)
	ml, ok := limiter.(*memoryLimiter)
	require.True(t, ok)
	ctx := context.Background()

	for i := 0; i < sweepThreshold; i++ {
		_, err := ml.Allow(ctx, fmt.Sprintf("10.0.%d.%d", i/256, i%256))
		require.NoError(t, err)
	}
	require.Len(t, ml.windows, sweepThreshold)

	// Once every window has lapsed, the next request sweeps them all.
	clk.Advance(time.Second)
	allowed, err := ml.Allow(ctx, "192.168.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Len(t, ml.windows, 1)
}

func TestLimiterDisabledAllowsEverything(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	limiter := New(config.Config{}, zap.NewNop(), clk)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
