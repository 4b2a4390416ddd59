package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestLocalLimiterQuotaPerKey(t *testing.T) {
	l := NewLocalLimiter(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "alice"), "request %d", i)
	}
	assert.False(t, l.Allow(ctx, "alice"))
	assert.True(t, l.Allow(ctx, "bob"), "quota is per key")
}

func TestLocalLimiterRefills(t *testing.T) {
	l := NewLocalLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "k"))
	assert.False(t, l.Allow(ctx, "k"))
	time.Sleep(40 * time.Millisecond)
	assert.True(t, l.Allow(ctx, "k"))
}

func TestLocalLimiterEvictsIdleKeys(t *testing.T) {
	l := NewLocalLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		assert.True(t, l.Allow(ctx, key))
	}
	assert.Equal(t, 3, l.buckets.ItemCount())

	assert.Eventually(t, func() bool { return l.buckets.ItemCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.True(t, l.Allow(ctx, "a"), "an evicted key starts with a full bucket")
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedisLimiter(client, 1, time.Minute)
	assert.True(t, l.Allow(context.Background(), "k"))
	assert.True(t, l.Allow(context.Background(), "k"))
}
