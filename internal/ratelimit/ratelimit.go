// Package ratelimit enforces the per-sender SmartAI reply quota.
package ratelimit

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Limiter reports whether another request for key fits in its quota.
// Denied requests are not queued.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// LocalLimiter keeps one token bucket per key in process memory. Each bucket
// holds limit tokens and refills evenly over window. A bucket idle for longer
// than a window is full again, so idle buckets are evicted.
type LocalLimiter struct {
	buckets *cache.Cache // key -> *rate.Limiter
	every   rate.Limit
	burst   int
	idle    time.Duration
}

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &LocalLimiter{
		buckets: cache.New(2*window, window),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idle:    2 * window,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	limiter := l.bucket(key)
	// Refresh the idle deadline on every use.
	l.buckets.Set(key, limiter, l.idle)
	return limiter.Allow()
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	if existing, ok := l.buckets.Get(key); ok {
		return existing.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(l.every, l.burst)
	if err := l.buckets.Add(key, fresh, l.idle); err != nil {
		// Another request created it first.
		if existing, ok := l.buckets.Get(key); ok {
			return existing.(*rate.Limiter)
		}
	}
	return fresh
}

// RedisLimiter counts requests per key in fixed windows shared by every
// instance. Redis failures allow the request.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "instaflow:smartai:", limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, l.prefix+key)
	pipe.ExpireNX(ctx, l.prefix+key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Rate limiter unavailable, allowing request")
		return true
	}
	return int(incr.Val()) <= l.limit
}
