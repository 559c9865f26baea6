package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pauubach/narrassist/pkg/cache"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed by the
// SHA-256 of the input text.
type CachedEmbedder struct {
	inner Embedder
	lru   *cache.LRU[string, []float32]
}

// NewCachedEmbedder wraps inner with a bounded cache.
func NewCachedEmbedder(inner Embedder, maxEntries int, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		lru: cache.New[string, []float32](&cache.Config{
			MaxEntries: maxEntries,
			TTL:        ttl,
		}),
	}
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }
func (c *CachedEmbedder) Model() string  { return c.inner.Model() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashKey(text)
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Set(key, v)
	return v, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, t := range texts {
		if v, ok := c.lru.Get(hashKey(t)); ok {
			out[i] = v
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	batch := make([]string, len(missing))
	for i, idx := range missing {
		batch[i] = texts[idx]
	}
	vecs, err := c.inner.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	for i, idx := range missing {
		out[idx] = vecs[i]
		c.lru.Set(hashKey(texts[idx]), vecs[i])
	}
	return out, nil
}

// Stats exposes the underlying cache counters.
func (c *CachedEmbedder) Stats() cache.Stats { return c.lru.Stats() }

func hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
