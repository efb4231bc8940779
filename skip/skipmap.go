// Package skip implements the per-partition skip map: for each chunk,
// the ascending, de-duplicated set of row offsets that later chunks
// have superseded and that the scan executor must filter out.
package skip

import (
	"sort"
	"sync"

	"github.com/FastFilter/xorfilter"
)

// xorFilterThreshold is the minimum skip-set size before a Row builds
// an approximate xorfilter.Xor8 membership filter alongside its exact
// sorted offsets. Below this size a linear/binary scan of the exact
// set is already as fast as building and probing a filter.
const xorFilterThreshold = 256

// Row holds one chunk's skip offsets: an exact ascending, deduplicated
// slice, and -- once the set is large enough to be worth it -- an
// approximate xorfilter.Xor8 used as a cheap pre-check. The filter can
// only produce false positives, never false negatives, so a "maybe"
// answer from it is always confirmed against the exact slice before a
// row is actually dropped; a "no" answer is trusted outright.
type Row struct {
	mu      sync.RWMutex
	offsets []uint32
	filter  *xorfilter.Xor8
}

// NewRow builds a Row from an initial set of offsets, which need not
// be sorted or deduplicated.
func NewRow(offsets []uint32) *Row {
	r := &Row{}
	r.merge(offsets)
	return r
}

// Offsets returns the current ascending, deduplicated offset slice.
// Callers must not mutate the returned slice.
func (r *Row) Offsets() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.offsets
}

// Skipped reports whether offset is in the skip set.
func (r *Row) Skipped(offset uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.filter != nil && !r.filter.Contains(uint64(offset)) {
		return false
	}
	i := sort.Search(len(r.offsets), func(i int) bool { return r.offsets[i] >= offset })
	return i < len(r.offsets) && r.offsets[i] == offset
}

// Merge unions newOffsets into the skip set. Idempotent: re-adding an
// already-present offset is harmless, matching spec.md §4.3's
// "idempotent set-union" contract for skip map updates.
func (r *Row) Merge(newOffsets []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merge(newOffsets)
}

// merge must be called with r.mu held for writing.
func (r *Row) merge(newOffsets []uint32) {
	if len(newOffsets) == 0 && r.offsets != nil {
		return
	}
	combined := append(append([]uint32{}, r.offsets...), newOffsets...)
	sort.Slice(combined, func(i, j int) bool { return combined[i] < combined[j] })
	deduped := combined[:0]
	var last uint32
	first := true
	for _, o := range combined {
		if first || o != last {
			deduped = append(deduped, o)
			last = o
			first = false
		}
	}
	r.offsets = deduped

	if len(r.offsets) >= xorFilterThreshold {
		keys := make([]uint64, len(r.offsets))
		for i, o := range r.offsets {
			keys[i] = uint64(o)
		}
		if f, err := xorfilter.Populate(keys); err == nil {
			r.filter = f
		}
	} else {
		r.filter = nil
	}
}

// Map is a partition's full skip map: chunk_id -> Row. Safe for
// concurrent use; skip maps are mutated only from the ingester that
// owns the partition (spec.md §5), but reads happen concurrently from
// scanning tasks.
type Map struct {
	mu   sync.RWMutex
	rows map[uint64]*Row
}

// NewMap constructs an empty skip map.
func NewMap() *Map {
	return &Map{rows: make(map[uint64]*Row)}
}

// Add merges offsets into the skip row for targetChunkID, creating the
// row if this is the first skip entry seen for that chunk id.
func (m *Map) Add(targetChunkID uint64, offsets []uint32) {
	m.mu.Lock()
	row, ok := m.rows[targetChunkID]
	if !ok {
		row = NewRow(nil)
		m.rows[targetChunkID] = row
	}
	m.mu.Unlock()
	row.Merge(offsets)
}

// Row returns the skip row for chunkID, or nil if no skips have ever
// targeted that chunk.
func (m *Map) Row(chunkID uint64) *Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows[chunkID]
}

// OffsetsFor returns the ascending skip offsets for chunkID, or nil
// (not an empty non-nil slice) if there are none.
func (m *Map) OffsetsFor(chunkID uint64) []uint32 {
	row := m.Row(chunkID)
	if row == nil {
		return nil
	}
	offs := row.Offsets()
	if len(offs) == 0 {
		return nil
	}
	return offs
}
