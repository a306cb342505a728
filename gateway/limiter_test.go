package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstThenWait(t *testing.T) {
	l := NewTokenBucketLimiter(20, 2)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "burst tokens should be immediate")

	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "third call should wait for refill")
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	l := NewPerMinuteLimiter(1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucketDefaults(t *testing.T) {
	l := NewTokenBucketLimiter(0, 0)
	assert.Equal(t, 1.0, l.rate)
	assert.Equal(t, 1, l.burst)
}
