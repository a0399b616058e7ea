package upstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_AllowConsumesBurst(t *testing.T) {
	tb := NewTokenBucketRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "burst token %d", i)
	}
	assert.False(t, tb.Allow(), "bucket drained")
}

func TestTokenBucket_Refills(t *testing.T) {
	tb := NewTokenBucketRateLimiter(100, 1)
	require.True(t, tb.Allow())
	require.False(t, tb.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, tb.Allow(), "tokens refill over time")
}

func TestTokenBucket_WaitHonorsContext(t *testing.T) {
	tb := NewTokenBucketRateLimiter(0.1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucket_Stats(t *testing.T) {
	tb := NewTokenBucketRateLimiter(10, 2)
	tb.Allow()
	tb.Allow()
	tb.Allow() // blocked

	stats := tb.GetStats()
	assert.Equal(t, int64(2), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
	assert.Equal(t, float64(10), stats.Rate)
	assert.Equal(t, 2, stats.Burst)
}

func TestNewRateLimiter_ZeroRateIsNop(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, rl.Allow())
	}
	assert.NoError(t, rl.Wait(context.Background()))
}
