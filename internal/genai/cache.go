package genai

import (
	"context"
	"sync"
)

// CachedEmbedder memoizes embeddings by input text. Embedding is a pure
// function of (text, model version), so for a fixed embedder instance
// the cache never goes stale.
//
// Safe for concurrent use. Only successful results are cached, so a
// transient ErrEmbeddingUnavailable does not poison an entry.
type CachedEmbedder struct {
	inner Embedder

	mu    sync.RWMutex
	cache map[string][]float32
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a memoization layer.
func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: make(map[string][]float32),
	}
}

// Embed returns the cached vector for text, embedding it on first use.
// Returned slices are copies; callers may mutate them freely.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	vec, ok := c.cache[text]
	c.mu.RUnlock()
	if ok {
		return cloneVector(vec), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[text] = cloneVector(vec)
	c.mu.Unlock()

	return vec, nil
}

// Len reports the number of cached entries.
func (c *CachedEmbedder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
