// Package columnstore defines the durable column store contract the
// core consumes: chunk persistence, per-partition chunk enumeration,
// and scan-split enumeration. Two backends implement it, localfs and
// objectstore.
package columnstore

import (
	"context"

	"github.com/driftdb/chunkindex/chunk"
	"github.com/driftdb/chunkindex/keys"
)

// ChunkMeta is the persisted descriptor for one chunk: its SetInfo
// plus the skip offsets its ingestion produced against older chunks.
type ChunkMeta struct {
	Info  chunk.SetInfo
	Skips map[uint64][]uint32
}

// ChunkData is a full chunk as handed to WriteChunk: the descriptor
// and the encoded column buffers, keyed by column name.
type ChunkData struct {
	Meta    ChunkMeta
	Columns map[string][]byte
}

// Split is a backend-defined unit of parallel scan work, tagged with
// the hostnames preferred for executing it.
type Split struct {
	ID        string
	Hostnames []string
}

// Store is the narrow column store interface. Implementations must be
// safe for concurrent use; a single ingester owns writes to any one
// partition, but reads happen concurrently from scanning tasks.
type Store interface {
	// WriteChunk persists data under (dataset, partitionKey). The
	// write must be atomic from a reader's point of view: ListChunks
	// never observes a chunk whose column buffers are missing.
	WriteChunk(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, data ChunkData) error

	// ListChunks returns the descriptors of every chunk in the
	// partition, in ascending chunk id order. rowKeyLayout is the
	// projection's row-key layout, used to re-wrap the persisted
	// first/last keys so they compare correctly.
	ListChunks(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, rowKeyLayout keys.KeyLayout) ([]ChunkMeta, error)

	// ReadColumns fetches the requested column buffers of one chunk.
	// Requesting a column the chunk does not hold is an error.
	ReadColumns(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, chunkID uint64, columns []string) (map[string][]byte, error)

	// GetScanSplits partitions the dataset's key space into at most
	// splitsPerNode splits for parallel scanning.
	GetScanSplits(ctx context.Context, dataset string, splitsPerNode int) ([]Split, error)

	// ListPartitions enumerates the partition keys covered by split.
	ListPartitions(ctx context.Context, dataset string, split Split) ([]keys.BinaryRecord, error)
}
