// Package chunk defines the chunk metadata descriptor and the
// geometric intersection test used for row-key range pruning.
package chunk

import "github.com/driftdb/chunkindex/keys"

// SetInfo is the immutable per-chunk descriptor: its stable id, row
// count, and the first/last key of the rows it holds. Created at
// ingest commit and never mutated; destroyed only when the chunk is
// compacted away.
type SetInfo struct {
	ChunkID  uint64
	NumRows  int32
	FirstKey keys.BinaryRecord
	LastKey  keys.BinaryRecord
}

// Interval is a closed [Lo, Hi] row-key range.
type Interval struct {
	Lo keys.BinaryRecord
	Hi keys.BinaryRecord
}

// Intersection returns the overlap of the chunk's [FirstKey, LastKey]
// interval with [lo, hi], or false if the intervals do not overlap.
// This is the sole geometric primitive used for range pruning: a
// chunk is a candidate for a row-key-range scan iff
// FirstKey <= hi && LastKey >= lo.
func (c SetInfo) Intersection(lo, hi keys.BinaryRecord) (Interval, bool) {
	if keys.Compare(c.FirstKey, hi) == keys.Greater {
		return Interval{}, false
	}
	if keys.Compare(c.LastKey, lo) == keys.Less {
		return Interval{}, false
	}
	resultLo := c.FirstKey
	if keys.Compare(lo, c.FirstKey) == keys.Greater {
		resultLo = lo
	}
	resultHi := c.LastKey
	if keys.Compare(hi, c.LastKey) == keys.Less {
		resultHi = hi
	}
	return Interval{Lo: resultLo, Hi: resultHi}, true
}

// Valid reports whether the descriptor satisfies the basic chunk
// invariant: FirstKey <= LastKey.
func (c SetInfo) Valid() bool {
	return keys.Compare(c.FirstKey, c.LastKey) != keys.Greater
}
