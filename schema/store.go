package schema

import (
	"context"
	"errors"
	"time"

	"github.com/driftdb/chunkindex/keys"
)

// ErrNotFound is returned by MetadataStore lookups when the requested
// dataset or partition does not exist.
var ErrNotFound = errors.New("not found")

// ShardEntry is one accepted, versioned write batch recorded in a
// partition's shard-version history.
type ShardEntry struct {
	Version      int32
	FirstRowID   int64
	LastRowID    int64
	AckRowID     int64
	AcceptedAt   time.Time
}

// PartitionRecord is the durable state of one partition: its
// partition-key binary record and the append-only history of shards
// accepted into it.
type PartitionRecord struct {
	Dataset       DatasetRef
	PartitionKey  keys.BinaryRecord
	ShardVersions []ShardEntry
}

// MetadataStore is the narrow interface the core consumes for dataset,
// schema, and partition bookkeeping (spec.md §6). Implementations must
// be safe for concurrent use; update_partition_shards must be
// linearized per partition so a concurrent get_partition never
// observes a partially-applied update.
type MetadataStore interface {
	GetDataset(ctx context.Context, ref DatasetRef) (Dataset, error)
	GetSchema(ctx context.Context, ref DatasetRef, version int) (map[string]ColumnDef, error)
	GetPartition(ctx context.Context, ds DatasetRef, partitionKey keys.BinaryRecord) (PartitionRecord, error)
	UpdatePartitionShards(ctx context.Context, ds DatasetRef, partitionKey keys.BinaryRecord, entry ShardEntry) error
}
