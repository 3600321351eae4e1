package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBucketAllowsUpToCapacityThenRejects(t *testing.T) {
	now := time.Now()
	b := &Bucket{Capacity: 60, RefillRatePerSecond: 1, Tokens: 60, LastRefillTS: now}

	admitted := 0
	for i := 0; i < 61; i++ {
		if b.Allow(now) {
			admitted++
		}
	}

	require.Equal(t, 60, admitted)
}

func TestBucketRefillsOverTime(t *testing.T) {
	now := time.Now()
	b := &Bucket{Capacity: 10, RefillRatePerSecond: 1, Tokens: 0, LastRefillTS: now}

	require.False(t, b.Allow(now))

	later := now.Add(2 * time.Second)
	require.True(t, b.Allow(later))
}

func TestBucketRefillClampsToCapacity(t *testing.T) {
	now := time.Now()
	b := &Bucket{Capacity: 5, RefillRatePerSecond: 100, Tokens: 0, LastRefillTS: now}

	later := now.Add(10 * time.Second)
	b.Allow(later)

	b.mu.Lock()
	tokens := b.Tokens
	b.mu.Unlock()
	require.LessOrEqual(t, tokens, 5.0)
}

func TestLimiterCreatesOneBucketPerKey(t *testing.T) {
	l := NewLimiter()

	require.True(t, l.Allow("key-a", 60))
	require.True(t, l.Allow("key-b", 60))

	l.mu.RLock()
	count := len(l.buckets)
	l.mu.RUnlock()
	require.Equal(t, 2, count)
}

func TestLimiterConcurrentFirstAccessCreatesOneBucket(t *testing.T) {
	l := NewLimiter()

	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			l.Allow("shared-key", 60)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}

	l.mu.RLock()
	count := len(l.buckets)
	l.mu.RUnlock()
	require.Equal(t, 1, count)
}

func TestLimiterGaugeSinkReceivesRemainingTokens(t *testing.T) {
	l := NewLimiter()

	var gotKey string
	var gotRemaining float64
	l.SetGaugeSink(func(apiKeyID string, remaining float64) {
		gotKey = apiKeyID
		gotRemaining = remaining
	})

	l.Allow("key-a", 60)

	require.Equal(t, "key-a", gotKey)
	require.InDelta(t, 59.0, gotRemaining, 0.01)
}
