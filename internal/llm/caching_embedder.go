// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/lumenquery/fusion/internal/cache"
)

const embeddingCacheTTL = 24 * time.Hour

// embedder is the minimal shape CachingEmbedder wraps; BedrockEmbedder
// satisfies it directly.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CachingEmbedder fronts any Embedder with an EmbeddingCache so repeated
// passages across queries (a frequently-cited homepage, a recurring
// snippet) never pay for a second model invocation. It satisfies
// citation.Embedder.
type CachingEmbedder struct {
	inner embedder
	cache cache.EmbeddingCache
}

// NewCachingEmbedder wraps inner with cache.
func NewCachingEmbedder(inner embedder, c cache.EmbeddingCache) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: c}
}

func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingCacheKey(text)
	if vec, ok := e.cache.Get(ctx, key); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, vec, embeddingCacheTTL)
	return vec, nil
}

func embeddingCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
