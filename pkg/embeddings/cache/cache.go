// Package cache memoizes embeddings so repeated utterances and rebuilds of
// unchanged sources skip the embedding backend.
package cache

import (
	"context"
	"hash/fnv"

	"github.com/dgraph-io/ristretto"

	"github.com/nontawat9304/mali-chat/pkg/embeddings"
)

// Embedder wraps another Embedder with a ristretto cache keyed by text.
type Embedder struct {
	next  embeddings.Embedder
	cache *ristretto.Cache
}

// New wraps next with a cache holding roughly size vectors. A size of 0 or
// less returns next unchanged.
func New(next embeddings.Embedder, size int) (embeddings.Embedder, error) {
	if size <= 0 {
		return next, nil
	}

	// cost counts vectors, not bytes
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Embedder{next: next, cache: c}, nil
}

func key(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

// Embed returns a cached vector or asks the wrapped embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := key(text)
	if v, ok := e.cache.Get(k); ok {
		return v.([]float32), nil
	}

	v, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(k, v, 1)
	return v, nil
}

// Wait blocks until pending cache writes are visible.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close closes the cache and the wrapped embedder.
func (e *Embedder) Close() error {
	e.cache.Close()
	return e.next.Close()
}
