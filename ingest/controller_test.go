package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/schema"
	"github.com/driftdb/chunkindex/store/columnstore"
	"github.com/driftdb/chunkindex/store/columnstore/localfs"
	"github.com/driftdb/chunkindex/store/metadatastore/boltmeta"
)

func testMetaStore(t *testing.T) *boltmeta.Store {
	s, err := boltmeta.Open(filepath.Join(t.TempDir(), "meta.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func localfsConfig() columnstore.Config {
	return columnstore.Config{}
}

func gdeltDataset() schema.Dataset {
	return schema.Dataset{
		Ref: schema.DatasetRef{Name: "gdelt"},
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

// nextEvent reads one event with a test-sized timeout so a wedged
// controller fails the test instead of hanging it.
func nextEvent(t *testing.T, c *Controller) Event {
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for controller event")
		return Event{}
	}
}

func TestStartupMissingDataset(t *testing.T) {
	t.Log("S1: creating an ingester for a missing dataset must emit NoDatasetColumns and terminate")

	meta := testMetaStore(t)
	c := New(Config{}, meta, failingWriter{}, "none", partitionKey(t, "p"), []string{"id"}, nil, nil)

	require.NoError(t, c.StartAsync(context.Background()))
	require.Error(t, c.AwaitRunning(context.Background()))

	ev := nextEvent(t, c)
	require.Equal(t, NoDatasetColumns, ev.Kind)
	require.Equal(t, "none", ev.Dataset)
	require.ErrorIs(t, c.FailureCase(), ErrValidationFailed)
}

func TestStartupUndefinedColumns(t *testing.T) {
	t.Log("S2: requesting columns [monthYear, last] against gdelt must emit UndefinedColumns with exactly the missing names")

	meta := testMetaStore(t)
	ctx := context.Background()
	require.NoError(t, meta.PutDataset(ctx, gdeltDataset()))
	pk := partitionKey(t, "1979-1984")
	require.NoError(t, meta.CreatePartition(ctx, schema.DatasetRef{Name: "gdelt"}, pk))

	c := New(Config{}, meta, failingWriter{}, "gdelt", pk, []string{"monthYear", "last"}, nil, nil)
	require.NoError(t, c.StartAsync(ctx))
	require.Error(t, c.AwaitRunning(ctx))

	ev := nextEvent(t, c)
	require.Equal(t, UndefinedColumns, ev.Kind)
	require.Equal(t, []string{"last"}, ev.MissingColumns)
}

func TestStartupMissingPartition(t *testing.T) {
	meta := testMetaStore(t)
	ctx := context.Background()
	require.NoError(t, meta.PutDataset(ctx, gdeltDataset()))

	c := New(Config{}, meta, failingWriter{}, "gdelt", partitionKey(t, "not-created"), []string{"monthYear"}, nil, nil)
	require.NoError(t, c.StartAsync(ctx))
	require.Error(t, c.AwaitRunning(ctx))

	ev := nextEvent(t, c)
	require.Equal(t, NotFound, ev.Kind)
}

func startReadyController(t *testing.T, meta *boltmeta.Store, w Writer) *Controller {
	ctx := context.Background()
	require.NoError(t, meta.PutDataset(ctx, gdeltDataset()))
	pk := partitionKey(t, "1979-1984")
	require.NoError(t, meta.CreatePartition(ctx, schema.DatasetRef{Name: "gdelt"}, pk))

	c := New(Config{}, meta, w, "gdelt", pk, []string{"monthYear", "year"}, nil, nil)
	require.NoError(t, c.StartAsync(ctx))
	require.NoError(t, c.AwaitRunning(ctx))
	require.Equal(t, GoodToGo, nextEvent(t, c).Kind)

	t.Cleanup(func() {
		c.StopAsync()
		_ = c.AwaitTerminated(context.Background())
	})
	return c
}

func TestHappyPathIngest(t *testing.T) {
	t.Log("S3: a valid chunk must be persisted, acknowledged with Ack(ack_row), and recorded as exactly one shardVersions entry")

	meta := testMetaStore(t)
	store, err := localfs.New(t.TempDir(), localfsConfig(), nil)
	require.NoError(t, err)
	c := startReadyController(t, meta, NewStoreWriter(store))

	ctx := context.Background()
	require.NoError(t, c.Send(ctx, ChunkedColumns{
		Version:    0,
		FirstRowID: 0,
		LastRowID:  5,
		AckRowID:   5,
		Columns: map[string][]byte{
			"id":      {0, 1, 2, 3, 4, 5},
			"sqlDate": []byte("1979-01-01"),
		},
	}))

	ev := nextEvent(t, c)
	require.Equal(t, Ack, ev.Kind)
	require.Equal(t, "gdelt", ev.Dataset)
	require.Equal(t, int64(5), ev.RowID)

	rec, err := meta.GetPartition(ctx, schema.DatasetRef{Name: "gdelt"}, partitionKey(t, "1979-1984"))
	require.NoError(t, err)
	require.Len(t, rec.ShardVersions, 1)
	require.Equal(t, int64(5), rec.ShardVersions[0].AckRowID)
}

func TestInvalidVersionIsShardingError(t *testing.T) {
	t.Log("S4: version=-1 must emit ShardingError(ack_row) and leave shardVersions untouched")

	meta := testMetaStore(t)
	store, err := localfs.New(t.TempDir(), localfsConfig(), nil)
	require.NoError(t, err)
	c := startReadyController(t, meta, NewStoreWriter(store))

	ctx := context.Background()
	require.NoError(t, c.Send(ctx, ChunkedColumns{
		Version:    -1,
		FirstRowID: 0,
		LastRowID:  5,
		AckRowID:   5,
		Columns:    map[string][]byte{"id": {1}},
	}))

	ev := nextEvent(t, c)
	require.Equal(t, ShardingError, ev.Kind)
	require.Equal(t, int64(5), ev.RowID)

	rec, err := meta.GetPartition(ctx, schema.DatasetRef{Name: "gdelt"}, partitionKey(t, "1979-1984"))
	require.NoError(t, err)
	require.Empty(t, rec.ShardVersions)
}

func TestInvertedRowRangeIsShardingError(t *testing.T) {
	meta := testMetaStore(t)
	store, err := localfs.New(t.TempDir(), localfsConfig(), nil)
	require.NoError(t, err)
	c := startReadyController(t, meta, NewStoreWriter(store))

	require.NoError(t, c.Send(context.Background(), ChunkedColumns{
		Version:    0,
		FirstRowID: 10,
		LastRowID:  5,
		AckRowID:   10,
		Columns:    map[string][]byte{"id": {1}},
	}))
	require.Equal(t, ShardingError, nextEvent(t, c).Kind)
}

func TestWriterFailureKeepsControllerReady(t *testing.T) {
	t.Log("invariant 7 + §9: a writer failure emits ShardingError, must not touch shardVersions, and the controller keeps accepting chunks")

	meta := testMetaStore(t)
	c := startReadyController(t, meta, failingWriter{})

	ctx := context.Background()
	cc := ChunkedColumns{Version: 0, FirstRowID: 0, LastRowID: 5, AckRowID: 5, Columns: map[string][]byte{"id": {1}}}
	require.NoError(t, c.Send(ctx, cc))
	require.Equal(t, ShardingError, nextEvent(t, c).Kind)

	rec, err := meta.GetPartition(ctx, schema.DatasetRef{Name: "gdelt"}, partitionKey(t, "1979-1984"))
	require.NoError(t, err)
	require.Empty(t, rec.ShardVersions)

	// Still Ready: the next chunk is processed, not dropped.
	cc.AckRowID = 11
	require.NoError(t, c.Send(ctx, cc))
	ev := nextEvent(t, c)
	require.Equal(t, ShardingError, ev.Kind)
	require.Equal(t, int64(11), ev.RowID)
}

func TestStopDrainsEnqueuedChunks(t *testing.T) {
	t.Log("a stop signal drains already-enqueued chunks before terminating, within the graceful window")

	meta := testMetaStore(t)
	store, err := localfs.New(t.TempDir(), localfsConfig(), nil)
	require.NoError(t, err)
	c := startReadyController(t, meta, NewStoreWriter(store))

	ctx := context.Background()
	for i := int64(0); i < 3; i++ {
		require.NoError(t, c.Send(ctx, ChunkedColumns{
			Version:    0,
			FirstRowID: i * 10,
			LastRowID:  i*10 + 9,
			AckRowID:   i*10 + 9,
			Columns:    map[string][]byte{"id": {byte(i)}},
		}))
	}

	c.StopAsync()
	require.NoError(t, c.AwaitTerminated(ctx))

	acks := 0
	for done := false; !done; {
		select {
		case ev := <-c.Events():
			if ev.Kind == Ack {
				acks++
			}
		default:
			done = true
		}
	}
	require.Equal(t, 3, acks)
}

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) WriteChunk(context.Context, string, keys.BinaryRecord, ChunkedColumns) (uint64, error) {
	return 0, errors.New("backend unavailable")
}
