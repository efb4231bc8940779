package index

import (
	"sort"
	"sync"

	"github.com/driftdb/chunkindex/chunk"
	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/skip"
)

// rowKeyIndex keeps chunk descriptors sorted by (first_key, chunk_id)
// in a single slice, binary-search-inserted on Add. A slice rather
// than a tree-shaped ordered map is used deliberately here: unlike the
// chunk-id-ordered variant (where ingest order already equals sort
// order, so a plain insertion-ordered map suffices -- see chunkid.go),
// out-of-order backfill ingestion means first_key does not generally
// equal ingest order, and there is no ordered-tree-by-composite-key
// type anywhere in this module's third-party dependency set. See
// DESIGN.md for the fuller justification.
type rowKeyIndex struct {
	mu      sync.RWMutex
	entries []chunk.SetInfo
	skips   *skip.Map
}

func newRowKeyIndex() *rowKeyIndex {
	return &rowKeyIndex{skips: skip.NewMap()}
}

// less implements the (first_key, chunk_id) comparator of spec.md
// §4.1, with chunk_id as the unique tiebreaker.
func less(a, b chunk.SetInfo) bool {
	switch keys.Compare(a.FirstKey, b.FirstKey) {
	case keys.Less:
		return true
	case keys.Greater:
		return false
	default:
		return a.ChunkID < b.ChunkID
	}
}

func (idx *rowKeyIndex) Add(info chunk.SetInfo, skips map[uint64][]uint32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pos := sort.Search(len(idx.entries), func(i int) bool { return !less(idx.entries[i], info) })
	if pos < len(idx.entries) && idx.entries[pos].ChunkID == info.ChunkID && idx.entries[pos].FirstKey.Equal(info.FirstKey) {
		idx.entries[pos] = info
	} else {
		idx.entries = append(idx.entries, chunk.SetInfo{})
		copy(idx.entries[pos+1:], idx.entries[pos:])
		idx.entries[pos] = info
	}

	idx.addSkipsLocked(skips)
	return nil
}

func (idx *rowKeyIndex) addSkipsLocked(skips map[uint64][]uint32) {
	for targetID, offsets := range skips {
		idx.skips.Add(targetID, offsets)
	}
}

func (idx *rowKeyIndex) NumChunks() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *rowKeyIndex) AllChunks() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Entry, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = Entry{Info: e, Skips: idx.skips.OffsetsFor(e.ChunkID)}
	}
	return out
}

// RowKeyRange prunes by taking the head of the sorted slice up to
// first_key <= hi, then filters by intersection, matching the
// "head map up to (hi, +inf)" strategy of spec.md §4.3's variant A.
func (idx *rowKeyIndex) RowKeyRange(lo, hi keys.BinaryRecord) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	headEnd := sort.Search(len(idx.entries), func(i int) bool {
		return keys.Compare(idx.entries[i].FirstKey, hi) == keys.Greater
	})

	out := make([]Entry, 0, headEnd)
	for _, e := range idx.entries[:headEnd] {
		if _, ok := e.Intersection(lo, hi); ok {
			out = append(out, Entry{Info: e, Skips: idx.skips.OffsetsFor(e.ChunkID)})
		}
	}
	return out
}

func (idx *rowKeyIndex) SingleChunk(firstKey keys.BinaryRecord, id uint64) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	pos := sort.Search(len(idx.entries), func(i int) bool {
		return !less(idx.entries[i], chunk.SetInfo{FirstKey: firstKey, ChunkID: id})
	})
	if pos < len(idx.entries) && idx.entries[pos].ChunkID == id && idx.entries[pos].FirstKey.Equal(firstKey) {
		e := idx.entries[pos]
		return []Entry{{Info: e, Skips: idx.skips.OffsetsFor(e.ChunkID)}}
	}
	return nil
}
