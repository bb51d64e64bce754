package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitDisabledNeverBlocks(t *testing.T) {
	t.Parallel()

	limiter := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Wait(ctx, "http://example.com/feed"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitSeparatesHosts(t *testing.T) {
	t.Parallel()

	// One token per second with burst 1: a second request on the same host
	// would block, but a different host has its own bucket.
	limiter := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, limiter.Wait(ctx, "http://a.example.com/feed"))
	require.NoError(t, limiter.Wait(ctx, "http://b.example.com/feed"))
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	limiter := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	ctx := context.Background()
	require.NoError(t, limiter.Wait(ctx, "http://example.com/feed"))

	// The bucket is drained; a canceled context aborts the wait.
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, limiter.Wait(canceled, "http://example.com/feed"))
}

func TestWaitUnparsableURLStillLimits(t *testing.T) {
	t.Parallel()

	limiter := New(Config{DefaultRPS: 100, DefaultBurst: 1})
	require.NoError(t, limiter.Wait(context.Background(), "::not a url::"))
}
