// Package index implements the per-partition chunk index: two
// interchangeable variants over chunk descriptors and skip offsets,
// sharing one query surface (spec.md §4.3).
package index

import (
	"github.com/driftdb/chunkindex/chunk"
	"github.com/driftdb/chunkindex/keys"
)

// Entry is one (chunk descriptor, skip offsets) pair as yielded by the
// index's iteration methods.
type Entry struct {
	Info   chunk.SetInfo
	Skips  []uint32
}

// PartitionChunkIndex is the shared contract both variants satisfy.
// AllChunks and RowKeyRange return restartable, finite sequences;
// iteration order is implementation-defined but stable until the next
// mutation.
type PartitionChunkIndex interface {
	// Add inserts info, merging skips into the skip map for whatever
	// chunk ids they target (not necessarily info's own id).
	Add(info chunk.SetInfo, skips map[uint64][]uint32) error

	NumChunks() int

	AllChunks() []Entry

	// RowKeyRange returns every chunk whose key interval intersects
	// [lo, hi], with no false negatives.
	RowKeyRange(lo, hi keys.BinaryRecord) []Entry

	// SingleChunk returns the 0-or-1 entry identified by (firstKey, id).
	SingleChunk(firstKey keys.BinaryRecord, id uint64) []Entry
}

// Variant selects which concrete PartitionChunkIndex implementation
// New constructs. There is no runtime polymorphism beyond this tagged
// dispatch (spec.md §9 Design Notes).
type Variant int

const (
	// RowKeyOrdered favors range-heavy scans: chunks are kept sorted
	// by (first_key, chunk_id) so RowKeyRange can prune by position.
	RowKeyOrdered Variant = iota
	// ChunkIDOrdered favors full-partition or recency-ordered scans:
	// chunks are kept in ascending chunk_id (ingest) order.
	ChunkIDOrdered
)

// New constructs a PartitionChunkIndex of the requested variant.
func New(variant Variant) PartitionChunkIndex {
	switch variant {
	case ChunkIDOrdered:
		return newChunkIDIndex()
	default:
		return newRowKeyIndex()
	}
}

