package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedding wraps an Embedding service with an LRU cache keyed by the
// SHA-256 of model+text. The cache is an explicit dependency, never a
// package-level singleton, so independent components can size their own.
type CachedEmbedding struct {
	inner Embedding
	cache *lru.Cache[string, []float64]
}

func NewCachedEmbedding(inner Embedding, size int) (*CachedEmbedding, error) {
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedding{inner: inner, cache: cache}, nil
}

func cacheKey(model, input string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + input))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedding) Embedding(ctx context.Context, input string, model string) ([]float64, error) {
	key := cacheKey(model, input)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embedding(ctx, input, model)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachedEmbedding) Embeddings(ctx context.Context, inputs []string, model string) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	var missing []string
	var missingIdx []int
	for i, input := range inputs {
		if vec, ok := c.cache.Get(cacheKey(model, input)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, input)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := c.inner.Embeddings(ctx, missing, model)
	if err != nil {
		return nil, err
	}
	for i, vec := range fetched {
		idx := missingIdx[i]
		out[idx] = vec
		c.cache.Add(cacheKey(model, inputs[idx]), vec)
	}
	return out, nil
}

// Len reports the number of cached vectors. Used by tests.
func (c *CachedEmbedding) Len() int {
	return c.cache.Len()
}
