// Package ingest implements the per-partition ingester controller: a
// mailbox-driven handler that validates its (dataset, partition,
// columns) setup, accepts chunked column data, updates partition
// shard bookkeeping, and emits acknowledgements.
package ingest

import (
	"fmt"

	"github.com/driftdb/chunkindex/keys"
)

// ChunkedColumns is one inbound write batch: a version, the row-id
// range it covers, the row id to acknowledge, and the encoded column
// buffers. FirstKey/LastKey are the chunk's encoded row-key bounds as
// computed by the producer; Skips lists row offsets in older chunks
// that this batch supersedes.
type ChunkedColumns struct {
	Version    int32
	FirstRowID int64
	LastRowID  int64
	AckRowID   int64
	Columns    map[string][]byte
	FirstKey   []byte
	LastKey    []byte
	Skips      map[uint64][]uint32
}

// EventKind tags the controller's outbound message vocabulary.
type EventKind int

const (
	// NoDatasetColumns: the dataset is missing, defines no columns,
	// or the requested column set is empty. Terminal.
	NoDatasetColumns EventKind = iota
	// NotFound: the partition record does not exist. Terminal.
	NotFound
	// UndefinedColumns: some requested columns are not defined by the
	// dataset; Event.MissingColumns lists them. Terminal.
	UndefinedColumns
	// GoodToGo: startup validation passed; the controller accepts
	// ChunkedColumns from here on.
	GoodToGo
	// Ack: a chunk was accepted and persisted, durable up to
	// Event.RowID.
	Ack
	// ShardingError: a chunk was rejected or failed to persist;
	// Event.RowID is the row id that was being acknowledged.
	ShardingError
)

func (k EventKind) String() string {
	switch k {
	case NoDatasetColumns:
		return "NoDatasetColumns"
	case NotFound:
		return "NotFound"
	case UndefinedColumns:
		return "UndefinedColumns"
	case GoodToGo:
		return "GoodToGo"
	case Ack:
		return "Ack"
	case ShardingError:
		return "ShardingError"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one outbound controller message.
type Event struct {
	Kind           EventKind
	Dataset        string
	PartitionKey   keys.BinaryRecord
	RowID          int64
	MissingColumns []string
}
