package index

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/driftdb/chunkindex/keys"
)

// Builder materializes a PartitionChunkIndex for one partition from
// backend metadata, on first use. The column store / metadata store
// that actually know how to list a partition's chunks are out of
// scope (spec.md §1); Cache only owns the LRU lifecycle around
// whatever Builder produces.
type Builder func(ctx context.Context, ds string, partitionKey keys.BinaryRecord) (PartitionChunkIndex, error)

// Cache is the process-wide LRU of hot partition indexes described in
// spec.md §3 ("one instance per hot partition... discarded by LRU").
// Each cached entry is owned by the scanning task that materialized
// it; no two tasks share an index mutably (spec.md §5), but Cache
// itself is safe for concurrent Get calls.
type Cache struct {
	mu      sync.Mutex
	inner   *lru.Cache[cacheKey, PartitionChunkIndex]
	build   Builder
	variant Variant
}

type cacheKey struct {
	dataset      string
	partitionKey string
}

// NewCache constructs a Cache of the given size (number of hot
// partitions to retain) backed by build for cache misses.
func NewCache(size int, variant Variant, build Builder) (*Cache, error) {
	inner, err := lru.New[cacheKey, PartitionChunkIndex](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, build: build, variant: variant}, nil
}

// Get returns the cached PartitionChunkIndex for (ds, partitionKey),
// building and caching it on a miss.
func (c *Cache) Get(ctx context.Context, ds string, partitionKey keys.BinaryRecord) (PartitionChunkIndex, error) {
	key := cacheKey{dataset: ds, partitionKey: string(partitionKey.Bytes())}

	c.mu.Lock()
	if idx, ok := c.inner.Get(key); ok {
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	idx, err := c.build(ctx, ds, partitionKey)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.inner.Get(key); ok {
		return existing, nil
	}
	c.inner.Add(key, idx)
	return idx, nil
}

// Invalidate drops the cached index for (ds, partitionKey), forcing
// the next Get to rebuild it. Used after a partition's chunk set
// changes out from under a cached index (e.g. compaction).
func (c *Cache) Invalidate(ds string, partitionKey keys.BinaryRecord) {
	key := cacheKey{dataset: ds, partitionKey: string(partitionKey.Bytes())}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}
