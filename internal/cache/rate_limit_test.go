// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter_AllowsWithinLimit(t *testing.T) {
	l := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Allow(ctx, "web-search", 5))
	}
}

func TestMemoryRateLimiter_BlocksOverLimit(t *testing.T) {
	l := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "news-api", 3))
	}
	assert.Error(t, l.Allow(ctx, "news-api", 3))
}

func TestMemoryRateLimiter_PerProviderIsolation(t *testing.T) {
	l := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, l.Allow(ctx, "markets-api", 2))
	}
	assert.Error(t, l.Allow(ctx, "markets-api", 2))
	assert.NoError(t, l.Allow(ctx, "web-search", 2))
}

func TestRedisRateLimiter_BlocksOverLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "web-search", 3))
	}
	assert.Error(t, l.Allow(ctx, "web-search", 3))
}

func TestRedisRateLimiter_FailsOpenWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	l := NewRedisRateLimiter(client)
	ctx := context.Background()

	assert.NoError(t, l.Allow(ctx, "web-search", 1))
}
