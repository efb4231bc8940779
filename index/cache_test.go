package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftdb/chunkindex/keys"
)

func TestCacheBuildsOnceThenReusesIndex(t *testing.T) {
	builds := 0
	cache, err := NewCache(2, RowKeyOrdered, func(ctx context.Context, ds string, pk keys.BinaryRecord) (PartitionChunkIndex, error) {
		builds++
		return New(RowKeyOrdered), nil
	})
	require.NoError(t, err)

	pk := longRec(t, 1)
	idx1, err := cache.Get(context.Background(), "ds", pk)
	require.NoError(t, err)
	idx2, err := cache.Get(context.Background(), "ds", pk)
	require.NoError(t, err)

	require.Same(t, idx1, idx2)
	require.Equal(t, 1, builds)
}

func TestCacheEvictsOnInvalidate(t *testing.T) {
	builds := 0
	cache, err := NewCache(2, RowKeyOrdered, func(ctx context.Context, ds string, pk keys.BinaryRecord) (PartitionChunkIndex, error) {
		builds++
		return New(RowKeyOrdered), nil
	})
	require.NoError(t, err)

	pk := longRec(t, 1)
	_, err = cache.Get(context.Background(), "ds", pk)
	require.NoError(t, err)

	cache.Invalidate("ds", pk)

	_, err = cache.Get(context.Background(), "ds", pk)
	require.NoError(t, err)
	require.Equal(t, 2, builds)
}
