package plan

import "github.com/driftdb/chunkindex/keys"

// PartitionScanMethodKind tags which case of PartitionScanMethod is
// populated.
type PartitionScanMethodKind int

const (
	Single PartitionScanMethodKind = iota
	Multi
	Filtered
)

// Split is a backend-defined unit of parallel scan work, tagged with
// preferred host locations (spec.md §6). Defined here rather than
// imported from a backend package since the compiler only threads it
// through opaquely.
type Split struct {
	ID        string
	Hostnames []string
}

// PartitionPredicate is the residual predicate function a Filtered
// plan asks the executor to apply to each candidate partition key.
type PartitionPredicate func(partitionKey keys.BinaryRecord) bool

// PartitionScanMethod is the tagged union of spec.md §3/§6: exactly
// one of Keys (Single/Multi) or (Split, Predicate) (Filtered) is
// meaningful, selected by Kind.
type PartitionScanMethod struct {
	Kind      PartitionScanMethodKind
	Keys      []keys.BinaryRecord // len==1 for Single, >1 for Multi
	Split     Split
	Predicate PartitionPredicate
	// Unfiltered is true when Kind==Filtered and no partition-column
	// predicate could be compiled at all, so Predicate is the constant
	// true function -- the executor still must enumerate and scan every
	// split, but it can skip calling Predicate at all as a fast path.
	Unfiltered bool
}

// ChunkScanMethodKind tags which case of ChunkScanMethod is populated.
type ChunkScanMethodKind int

const (
	AllChunks ChunkScanMethodKind = iota
	RowKeyRange
)

// ChunkScanMethod is the tagged union of spec.md §3/§6 for row-key
// pruning within a selected partition.
type ChunkScanMethod struct {
	Kind     ChunkScanMethodKind
	First    keys.BinaryRecord
	Last     keys.BinaryRecord
}
