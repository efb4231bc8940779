package scan

import (
	"context"
	"io"
	"sort"

	"github.com/driftdb/chunkindex/chunk"
	"github.com/driftdb/chunkindex/index"
	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/plan"
)

// Row is one materialized row: its position within the chunk that
// holds it, and the raw column values the reader produced for it.
type Row struct {
	PartitionKey keys.BinaryRecord
	ChunkID      uint64
	Offset       uint32
	Values       map[string][]byte
}

// RowReader decodes one chunk's column buffers into rows. Decoding is
// delegated to the caller through a factory; the executor only
// positions readers and filters skipped offsets.
type RowReader interface {
	// Next returns the next row, or io.EOF when the chunk is drained.
	// Offset must be the row's position within the chunk, ascending.
	Next(ctx context.Context) (Row, error)
	Close() error
}

// RowReaderFactory builds a RowReader over one chunk's fetched
// column buffers.
type RowReaderFactory func(info chunk.SetInfo, columns map[string][]byte) (RowReader, error)

// OpaqueRowReaderFactory is the fallback reader used when the caller
// supplies no decoder: it emits one row per chunk offset carrying the
// chunk's undecoded column buffers. Useful for row counting and for
// callers that decode downstream.
func OpaqueRowReaderFactory(info chunk.SetInfo, columns map[string][]byte) (RowReader, error) {
	return &opaqueReader{info: info, columns: columns}, nil
}

type opaqueReader struct {
	info    chunk.SetInfo
	columns map[string][]byte
	next    uint32
}

func (r *opaqueReader) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if r.next >= uint32(r.info.NumRows) {
		return Row{}, io.EOF
	}
	row := Row{ChunkID: r.info.ChunkID, Offset: r.next, Values: r.columns}
	r.next++
	return row, nil
}

func (r *opaqueReader) Close() error { return nil }

// Rows is the lazy, finite row sequence returned by ScanRows. It is
// not safe for concurrent use; per-partition scanning within one
// consumer is sequential.
type Rows struct {
	exec       *Executor
	dataset    string
	columns    []string
	chunkScan  plan.ChunkScanMethod
	partitions []keys.BinaryRecord
	factory    RowReaderFactory

	partitionPos int
	entries      []index.Entry
	entryPos     int
	reader       RowReader
	skips        []uint32
	done         bool
}

// Next advances to the next surviving row, returning io.EOF when the
// sequence is exhausted. Cancellation propagates through ctx.
func (rs *Rows) Next(ctx context.Context) (Row, error) {
	for {
		if rs.done {
			return Row{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Row{}, err
		}

		if rs.reader != nil {
			row, err := rs.reader.Next(ctx)
			if err == io.EOF {
				rs.reader.Close()
				rs.reader = nil
				rs.entryPos++
				continue
			}
			if err != nil {
				return Row{}, err
			}
			if skipped(rs.skips, row.Offset) {
				continue
			}
			row.PartitionKey = rs.partitions[rs.partitionPos]
			return row, nil
		}

		if rs.entryPos < len(rs.entries) {
			if err := rs.openEntry(ctx, rs.entries[rs.entryPos]); err != nil {
				return Row{}, err
			}
			continue
		}

		if err := rs.advancePartition(ctx); err != nil {
			return Row{}, err
		}
	}
}

// Close releases the in-progress chunk reader, if any. The sequence
// cannot be advanced afterwards.
func (rs *Rows) Close() error {
	rs.done = true
	if rs.reader != nil {
		err := rs.reader.Close()
		rs.reader = nil
		return err
	}
	return nil
}

func (rs *Rows) openEntry(ctx context.Context, e index.Entry) error {
	cols, err := rs.exec.store.ReadColumns(ctx, rs.dataset, rs.partitions[rs.partitionPos], e.Info.ChunkID, rs.columns)
	if err != nil {
		return err
	}
	reader, err := rs.factory(e.Info, cols)
	if err != nil {
		return err
	}
	rs.reader = reader
	rs.skips = e.Skips
	return nil
}

// advancePartition materializes the next partition's chunk index and
// positions the entry cursor at its pruned chunk list.
func (rs *Rows) advancePartition(ctx context.Context) error {
	if rs.entries != nil {
		rs.partitionPos++
	}
	if rs.partitionPos >= len(rs.partitions) {
		rs.done = true
		return nil
	}

	pk := rs.partitions[rs.partitionPos]
	idx, err := rs.exec.cache.Get(ctx, rs.dataset, pk)
	if err != nil {
		return err
	}

	switch rs.chunkScan.Kind {
	case plan.RowKeyRange:
		rs.entries = idx.RowKeyRange(rs.chunkScan.First, rs.chunkScan.Last)
	default:
		rs.entries = idx.AllChunks()
	}
	if rs.entries == nil {
		rs.entries = []index.Entry{}
	}
	rs.entryPos = 0
	return nil
}

func skipped(skips []uint32, offset uint32) bool {
	if len(skips) == 0 {
		return false
	}
	i := sort.Search(len(skips), func(i int) bool { return skips[i] >= offset })
	return i < len(skips) && skips[i] == offset
}
