// Package localfs implements the column store contract on the local
// filesystem: one parquet file of encoded column buffers per chunk,
// plus a small sidecar descriptor.
package localfs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/store/columnstore"
)

const (
	parquetSuffix = ".parquet"
	metaSuffix    = ".meta"
)

// columnRow is the parquet row shape of a chunk file: one row per
// column buffer, dictionary-encoded names.
type columnRow struct {
	Name    string `parquet:"name,dict"`
	Payload []byte `parquet:"payload"`
}

// Store persists chunks under root/<dataset>/<hex partition key>/.
type Store struct {
	root   string
	cfg    columnstore.Config
	codec  *columnstore.Codec
	logger log.Logger
}

// New opens (creating if needed) a localfs store rooted at root.
func New(root string, cfg columnstore.Config, logger log.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	codec, err := columnstore.NewCodec(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Store{root: root, cfg: cfg, codec: codec, logger: logger}, nil
}

func (s *Store) partitionDir(dataset string, partitionKey keys.BinaryRecord) string {
	return filepath.Join(s.root, dataset, hex.EncodeToString(partitionKey.Bytes()))
}

func chunkBaseName(chunkID uint64) string {
	return fmt.Sprintf("%016x", chunkID)
}

// WriteChunk writes the chunk's parquet data file first and its meta
// sidecar last, each through a rename, so ListChunks never observes a
// descriptor whose data is missing.
func (s *Store) WriteChunk(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, data columnstore.ChunkData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.partitionDir(dataset, partitionKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create partition dir: %w", err)
	}

	base := chunkBaseName(data.Meta.Info.ChunkID)

	rows := make([]columnRow, 0, len(data.Columns))
	for name, payload := range data.Columns {
		rows = append(rows, columnRow{Name: name, Payload: s.codec.Compress(payload)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	if err := s.writeParquet(filepath.Join(dir, base+parquetSuffix), rows); err != nil {
		return err
	}

	metaBytes, err := columnstore.MarshalMeta(data.Meta)
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, base+metaSuffix), metaBytes); err != nil {
		return fmt.Errorf("write chunk meta: %w", err)
	}

	level.Debug(s.logger).Log("msg", "chunk written", "dataset", dataset, "chunk_id", data.Meta.Info.ChunkID, "columns", len(rows))
	return nil
}

func (s *Store) writeParquet(path string, rows []columnRow) error {
	tmp := path + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create chunk file: %w", err)
	}

	w := parquet.NewGenericWriter[columnRow](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write chunk rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("close chunk writer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close chunk file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish chunk file: %w", err)
	}
	return nil
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) ListChunks(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, rowKeyLayout keys.KeyLayout) ([]columnstore.ChunkMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.partitionDir(dataset, partitionKey)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list partition dir: %w", err)
	}

	var metas []columnstore.ChunkMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read chunk meta %s: %w", e.Name(), err)
		}
		m, err := columnstore.UnmarshalMeta(raw, rowKeyLayout)
		if err != nil {
			return nil, fmt.Errorf("chunk meta %s: %w", e.Name(), err)
		}
		metas = append(metas, m)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Info.ChunkID < metas[j].Info.ChunkID })
	return metas, nil
}

func (s *Store) ReadColumns(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, chunkID uint64, columns []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.partitionDir(dataset, partitionKey), chunkBaseName(chunkID)+parquetSuffix)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk file: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat chunk file: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open chunk parquet: %w", err)
	}

	wanted := make(map[string]bool, len(columns))
	for _, c := range columns {
		wanted[c] = true
	}

	nameCol, ok := pf.Schema().Lookup("name")
	if !ok {
		return nil, fmt.Errorf("chunk file %s: no name column", path)
	}
	payloadCol, ok := pf.Schema().Lookup("payload")
	if !ok {
		return nil, fmt.Errorf("chunk file %s: no payload column", path)
	}

	out := make(map[string][]byte, len(columns))
	for _, rg := range pf.RowGroups() {
		names, err := readByteArrayColumn(rg.ColumnChunks()[nameCol.ColumnIndex])
		if err != nil {
			return nil, fmt.Errorf("read name column: %w", err)
		}
		payloads, err := readByteArrayColumn(rg.ColumnChunks()[payloadCol.ColumnIndex])
		if err != nil {
			return nil, fmt.Errorf("read payload column: %w", err)
		}
		if len(names) != len(payloads) {
			return nil, fmt.Errorf("chunk file %s: column count mismatch", path)
		}
		for i, name := range names {
			if !wanted[string(name)] {
				continue
			}
			decoded, err := s.codec.Decompress(payloads[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			out[string(name)] = decoded
		}
	}

	for _, c := range columns {
		if _, ok := out[c]; !ok {
			return nil, fmt.Errorf("chunk %d has no column %q", chunkID, c)
		}
	}
	return out, nil
}

// readByteArrayColumn drains every page of one byte-array column chunk
// through a pooled helper.
func readByteArrayColumn(cc parquet.ColumnChunk) ([][]byte, error) {
	h := getColumnChunkHelper(cc)
	defer func() {
		h.close()
		putColumnChunkHelper(h)
	}()

	var out [][]byte
	for {
		page, err := h.nextPage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		if page == nil {
			return out, nil
		}
		values := make([]parquet.Value, page.NumValues())
		if _, err := page.Values().ReadValues(values); err != nil && !errors.Is(err, io.EOF) {
			parquet.Release(page)
			return nil, err
		}
		for _, v := range values {
			out = append(out, append([]byte(nil), v.ByteArray()...))
		}
		parquet.Release(page)
	}
}

// GetScanSplits deterministically divides the dataset's partitions
// into splits by hashing partition directory names, so ListPartitions
// can resolve a split without any store-side split state.
func (s *Store) GetScanSplits(ctx context.Context, dataset string, splitsPerNode int) ([]columnstore.Split, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if splitsPerNode <= 0 {
		splitsPerNode = s.cfg.SplitsPerNode
	}
	splits := make([]columnstore.Split, 0, splitsPerNode)
	for i := 0; i < splitsPerNode; i++ {
		splits = append(splits, columnstore.Split{
			ID:        fmt.Sprintf("%d-of-%d", i, splitsPerNode),
			Hostnames: []string{"localhost"},
		})
	}
	return splits, nil
}

func (s *Store) ListPartitions(ctx context.Context, dataset string, split columnstore.Split) ([]keys.BinaryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var idx, total int
	if _, err := fmt.Sscanf(split.ID, "%d-of-%d", &idx, &total); err != nil {
		return nil, fmt.Errorf("malformed split id %q: %w", split.ID, err)
	}
	if total <= 0 || idx < 0 || idx >= total {
		return nil, fmt.Errorf("malformed split id %q", split.ID)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, dataset))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list dataset dir: %w", err)
	}

	var out []keys.BinaryRecord
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if splitFor(e.Name(), total) != idx {
			continue
		}
		raw, err := hex.DecodeString(e.Name())
		if err != nil {
			level.Warn(s.logger).Log("msg", "skipping non-partition dir", "dataset", dataset, "dir", e.Name())
			continue
		}
		out = append(out, keys.FromBytes(nil, raw))
	}
	return out, nil
}

func splitFor(partitionDir string, total int) int {
	h := fnv.New32a()
	h.Write([]byte(partitionDir))
	return int(h.Sum32() % uint32(total))
}
