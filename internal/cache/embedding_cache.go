// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package cache provides the two pieces of shared mutable state the
// pipeline's concurrency model allows: the embedding cache (bounded LRU,
// TTL, read-mostly) and the per-provider rate-limit token buckets. Both
// default to an in-process implementation and upgrade to a Redis-backed
// one when EMBEDDING_CACHE_BACKEND=redis, so a multi-instance deployment
// shares one view of both.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// EmbeddingCache caches embed(text) -> vector results. Vectors are
// immutable once stored; reads dominate writes.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration)
}

type memoryEntry struct {
	key       string
	vector    []float32
	expiresAt time.Time
	elem      *list.Element
}

// MemoryEmbeddingCache is a bounded LRU with per-entry TTL. Safe for
// concurrent use.
type MemoryEmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*memoryEntry
	order    *list.List // front = most recently used
}

// NewMemoryEmbeddingCache creates an in-process embedding cache bounded
// to capacity entries.
func NewMemoryEmbeddingCache(capacity int) *MemoryEmbeddingCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryEmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*memoryEntry),
		order:    list.New(),
	}
}

func (c *MemoryEmbeddingCache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(entry)
		return nil, false
	}
	c.order.MoveToFront(entry.elem)
	return entry.vector, true
}

func (c *MemoryEmbeddingCache) Set(_ context.Context, key string, vector []float32, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.vector = vector
		existing.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(existing.elem)
		return
	}

	entry := &memoryEntry{key: key, vector: vector, expiresAt: time.Now().Add(ttl)}
	entry.elem = c.order.PushFront(entry)
	c.entries[key] = entry

	if len(c.entries) > c.capacity {
		c.evictOldest()
	}
}

func (c *MemoryEmbeddingCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeLocked(oldest.Value.(*memoryEntry))
}

func (c *MemoryEmbeddingCache) removeLocked(entry *memoryEntry) {
	c.order.Remove(entry.elem)
	delete(c.entries, entry.key)
}

// Len reports the current number of live (unexpired or not-yet-swept)
// entries; used by tests.
func (c *MemoryEmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisEmbeddingCache shares embedding vectors across orchestrator
// instances, keyed under an "emb:" namespace.
type RedisEmbeddingCache struct {
	client *redis.Client
}

// NewRedisEmbeddingCache wraps a Redis client for embedding storage.
func NewRedisEmbeddingCache(client *redis.Client) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{client: client}
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.client.Get(ctx, "emb:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		return nil, false
	}
	return vector, true
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, "emb:"+key, data, ttl).Err()
}
