package boltmeta

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/schema"
)

func openTestStore(t *testing.T) *Store {
	s, err := Open(filepath.Join(t.TempDir(), "meta.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func gdeltDataset() schema.Dataset {
	return schema.Dataset{
		Ref:           schema.DatasetRef{Name: "gdelt"},
		SchemaVersion: 0,
		Columns: []schema.ColumnDef{
			{Name: "monthYear", KeyType: "string"},
			{Name: "year", KeyType: "long"},
			{Name: "actor2Code", KeyType: "string"},
		},
		PartitionKeyNames: []string{"monthYear"},
		RowKeyNames:       []string{"year"},
	}
}

func partitionKey(t *testing.T, v string) keys.BinaryRecord {
	r, err := keys.Encode(keys.KeyLayout{keys.StringKey{}}, []any{v})
	require.NoError(t, err)
	return r
}

func TestDatasetRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutDataset(ctx, gdeltDataset()))

	got, err := s.GetDataset(ctx, schema.DatasetRef{Name: "gdelt"})
	require.NoError(t, err)
	require.Equal(t, "gdelt", got.Ref.Name)
	require.Len(t, got.Columns, 3)
	require.Equal(t, []string{"monthYear"}, got.PartitionKeyNames)
}

func TestGetDatasetMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDataset(context.Background(), schema.DatasetRef{Name: "none"})
	require.ErrorIs(t, err, schema.ErrNotFound)
}

func TestGetSchemaReturnsColumnMap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutDataset(ctx, gdeltDataset()))

	cols, err := s.GetSchema(ctx, schema.DatasetRef{Name: "gdelt"}, 0)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	require.Equal(t, "long", cols["year"].KeyType)

	_, err = s.GetSchema(ctx, schema.DatasetRef{Name: "gdelt"}, 99)
	require.ErrorIs(t, err, schema.ErrNotFound)
}

func TestPartitionLifecycle(t *testing.T) {
	t.Log("a partition must be created before shard updates apply, and each update appends exactly one shard entry")

	s := openTestStore(t)
	ctx := context.Background()
	ds := schema.DatasetRef{Name: "gdelt"}
	pk := partitionKey(t, "1979-1984")

	_, err := s.GetPartition(ctx, ds, pk)
	require.ErrorIs(t, err, schema.ErrNotFound)

	err = s.UpdatePartitionShards(ctx, ds, pk, schema.ShardEntry{Version: 0, AckRowID: 5})
	require.ErrorIs(t, err, schema.ErrNotFound)

	require.NoError(t, s.CreatePartition(ctx, ds, pk))
	require.Error(t, s.CreatePartition(ctx, ds, pk), "double create must fail")

	rec, err := s.GetPartition(ctx, ds, pk)
	require.NoError(t, err)
	require.Empty(t, rec.ShardVersions)
	require.True(t, rec.PartitionKey.Equal(pk))

	require.NoError(t, s.UpdatePartitionShards(ctx, ds, pk, schema.ShardEntry{Version: 0, FirstRowID: 0, LastRowID: 5, AckRowID: 5}))

	rec, err = s.GetPartition(ctx, ds, pk)
	require.NoError(t, err)
	require.Len(t, rec.ShardVersions, 1)
	require.Equal(t, int64(5), rec.ShardVersions[0].AckRowID)
}

func TestPartitionsWithSamePrefixDoNotCollide(t *testing.T) {
	t.Log("the dataset name is separated from the partition key bytes in the db key, so dataset 'a' + partition 'bc' never collides with dataset 'ab' + partition 'c'")

	s := openTestStore(t)
	ctx := context.Background()

	pkBC := partitionKey(t, "bc")
	pkC := partitionKey(t, "c")
	require.NoError(t, s.CreatePartition(ctx, schema.DatasetRef{Name: "a"}, pkBC))
	require.NoError(t, s.CreatePartition(ctx, schema.DatasetRef{Name: "ab"}, pkC))

	rec, err := s.GetPartition(ctx, schema.DatasetRef{Name: "a"}, pkBC)
	require.NoError(t, err)
	require.Equal(t, "a", rec.Dataset.Name)
}

func TestLargePartitionRecordRoundtrip(t *testing.T) {
	t.Log("records above the compression threshold take the zstd path and must read back identically")

	s := openTestStore(t)
	ctx := context.Background()
	ds := schema.DatasetRef{Name: "gdelt"}
	pk := partitionKey(t, "1979-1984")
	require.NoError(t, s.CreatePartition(ctx, ds, pk))

	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, s.UpdatePartitionShards(ctx, ds, pk, schema.ShardEntry{
			Version:    int32(i % 3),
			FirstRowID: int64(i * 10),
			LastRowID:  int64(i*10 + 9),
			AckRowID:   int64(i*10 + 9),
		}))
	}

	rec, err := s.GetPartition(ctx, ds, pk)
	require.NoError(t, err)
	require.Len(t, rec.ShardVersions, n)
	require.Equal(t, int64((n-1)*10+9), rec.ShardVersions[n-1].AckRowID)
}
