// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ProviderRateLimiter gates outbound calls to a single upstream backend
// (a web search API, a news API, a markets API) by provider name, so one
// noisy lane can't starve the token budget of every other lane sharing
// the same upstream across orchestrator instances.
type ProviderRateLimiter interface {
	Allow(ctx context.Context, provider string, limitPerMinute int) error
}

// MemoryRateLimiter tracks a sliding one-minute window per provider
// in-process. It is the default and the fallback used by
// RedisRateLimiter when Redis is unreachable.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	providers map[string][]time.Time
}

// NewMemoryRateLimiter creates a process-local rate limiter.
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{providers: make(map[string][]time.Time)}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, provider string, limitPerMinute int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	stamps := l.providers[provider]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limitPerMinute {
		l.providers[provider] = kept
		return fmt.Errorf("rate limit exceeded for provider %s: %d requests/minute (limit %d)", provider, len(kept), limitPerMinute)
	}

	l.providers[provider] = append(kept, now)
	return nil
}

// RedisRateLimiter shares the per-provider sliding window across every
// orchestrator instance using a Redis sorted set keyed by provider, so
// the per-provider ceiling holds fleet-wide rather than per-process.
// Redis errors fail open: an unreachable Redis degrades to best-effort
// in-memory limiting rather than blocking every lane.
type RedisRateLimiter struct {
	client   *redis.Client
	fallback *MemoryRateLimiter
}

// NewRedisRateLimiter wraps a Redis client for fleet-wide provider rate
// limiting.
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, fallback: NewMemoryRateLimiter()}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, provider string, limitPerMinute int) error {
	now := time.Now()
	key := "ratelimit:provider:" + provider

	pipe := l.client.Pipeline()
	minScore := now.Add(-time.Minute).UnixNano()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, 2*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return l.fallback.Allow(ctx, provider, limitPerMinute)
	}

	if count := countCmd.Val(); count >= int64(limitPerMinute) {
		return fmt.Errorf("rate limit exceeded for provider %s: %d requests/minute (limit %d)", provider, count, limitPerMinute)
	}
	return nil
}
