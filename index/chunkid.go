package index

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/driftdb/chunkindex/chunk"
	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/skip"
)

// chunkIDIndex keeps chunk descriptors in an ordered map keyed by
// chunk_id, held in ascending chunk_id order. Chunk ids normally arrive
// in increasing order at ingest, so Add appends at the back; an id that
// arrives after a larger one is moved before the first larger id. A
// re-Add of an existing id updates the value in place without moving
// its position.
type chunkIDIndex struct {
	mu      sync.RWMutex
	entries *orderedmap.OrderedMap[uint64, chunk.SetInfo]
	skips   *skip.Map
}

func newChunkIDIndex() *chunkIDIndex {
	return &chunkIDIndex{
		entries: orderedmap.New[uint64, chunk.SetInfo](),
		skips:   skip.NewMap(),
	}
}

func (idx *chunkIDIndex) Add(info chunk.SetInfo, skips map[uint64][]uint32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, present := idx.entries.Set(info.ChunkID, info); !present {
		mark, moved := uint64(0), false
		for p := idx.entries.Newest().Prev(); p != nil && p.Key > info.ChunkID; p = p.Prev() {
			mark, moved = p.Key, true
		}
		if moved {
			if err := idx.entries.MoveBefore(info.ChunkID, mark); err != nil {
				return err
			}
		}
	}
	for targetID, offsets := range skips {
		idx.skips.Add(targetID, offsets)
	}
	return nil
}

func (idx *chunkIDIndex) NumChunks() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entries.Len()
}

func (idx *chunkIDIndex) AllChunks() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]Entry, 0, idx.entries.Len())
	for pair := idx.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Entry{Info: pair.Value, Skips: idx.skips.OffsetsFor(pair.Key)})
	}
	return out
}

// RowKeyRange performs a linear scan filtered by intersection, per
// spec.md §4.3's variant B (no ordering by key to exploit for
// pruning; results come back in ascending chunk_id order).
func (idx *chunkIDIndex) RowKeyRange(lo, hi keys.BinaryRecord) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Entry
	for pair := idx.entries.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := pair.Value.Intersection(lo, hi); ok {
			out = append(out, Entry{Info: pair.Value, Skips: idx.skips.OffsetsFor(pair.Key)})
		}
	}
	return out
}

func (idx *chunkIDIndex) SingleChunk(firstKey keys.BinaryRecord, id uint64) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	info, ok := idx.entries.Get(id)
	if !ok || !info.FirstKey.Equal(firstKey) {
		return nil
	}
	return []Entry{{Info: info, Skips: idx.skips.OffsetsFor(id)}}
}
