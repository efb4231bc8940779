package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/driftdb/chunkindex/chunk"
	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/store/columnstore"
)

// StoreWriter persists accepted chunks to a column store, assigning
// each partition's chunk ids monotonically. The first write to a
// partition seeds the counter from the chunks already on disk, so a
// restarted ingester continues the sequence rather than reusing ids.
type StoreWriter struct {
	store columnstore.Store

	mu   sync.Mutex
	next map[string]uint64
}

// NewStoreWriter wraps store as a controller Writer.
func NewStoreWriter(store columnstore.Store) *StoreWriter {
	return &StoreWriter{store: store, next: make(map[string]uint64)}
}

func (w *StoreWriter) allocateChunkID(ctx context.Context, dataset string, partitionKey keys.BinaryRecord) (uint64, error) {
	key := dataset + "\x00" + string(partitionKey.Bytes())

	w.mu.Lock()
	defer w.mu.Unlock()

	id, ok := w.next[key]
	if !ok {
		// Seed from what is already persisted. Descriptor keys are not
		// needed here, only ids, so a nil layout is fine.
		metas, err := w.store.ListChunks(ctx, dataset, partitionKey, nil)
		if err != nil {
			return 0, fmt.Errorf("seed chunk id counter: %w", err)
		}
		for _, m := range metas {
			if m.Info.ChunkID >= id {
				id = m.Info.ChunkID + 1
			}
		}
	}
	w.next[key] = id + 1
	return id, nil
}

// WriteChunk builds the chunk descriptor and persists the batch.
// When the producer did not supply explicit row-key bounds, the
// row-id range doubles as a single-long-column key interval.
func (w *StoreWriter) WriteChunk(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, cc ChunkedColumns) (uint64, error) {
	id, err := w.allocateChunkID(ctx, dataset, partitionKey)
	if err != nil {
		return 0, err
	}

	firstKey, lastKey := cc.FirstKey, cc.LastKey
	if len(firstKey) == 0 || len(lastKey) == 0 {
		layout := keys.KeyLayout{keys.LongKey{}}
		first, err := keys.Encode(layout, []any{cc.FirstRowID})
		if err != nil {
			return 0, err
		}
		last, err := keys.Encode(layout, []any{cc.LastRowID})
		if err != nil {
			return 0, err
		}
		firstKey, lastKey = first.Bytes(), last.Bytes()
	}

	data := columnstore.ChunkData{
		Meta: columnstore.ChunkMeta{
			Info: chunk.SetInfo{
				ChunkID:  id,
				NumRows:  int32(cc.LastRowID - cc.FirstRowID + 1),
				FirstKey: keys.FromBytes(nil, firstKey),
				LastKey:  keys.FromBytes(nil, lastKey),
			},
			Skips: cc.Skips,
		},
		Columns: cc.Columns,
	}
	if err := w.store.WriteChunk(ctx, dataset, partitionKey, data); err != nil {
		return 0, fmt.Errorf("persist chunk %d: %w", id, err)
	}
	return id, nil
}
