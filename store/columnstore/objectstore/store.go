// Package objectstore implements the column store contract against an
// S3-compatible object store. Chunk layout matches localfs: one
// parquet object of column buffers per chunk plus a descriptor
// sidecar, keyed <dataset>/<hex partition key>/<chunk id>.
package objectstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/parquet-go/parquet-go"

	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/store/columnstore"
)

const (
	parquetSuffix = ".parquet"
	metaSuffix    = ".meta"
)

// Config holds the S3 connection settings plus the shared chunk
// configuration.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`

	Chunk columnstore.Config `yaml:"chunk"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Endpoint, prefix+".endpoint", "localhost:9000", "S3 endpoint.")
	f.StringVar(&cfg.Bucket, prefix+".bucket", "chunkindex", "S3 bucket holding chunk objects.")
	f.StringVar(&cfg.AccessKey, prefix+".access-key", "", "S3 access key.")
	f.StringVar(&cfg.SecretKey, prefix+".secret-key", "", "S3 secret key.")
	f.BoolVar(&cfg.Secure, prefix+".secure", false, "Use TLS for the S3 connection.")
	cfg.Chunk.RegisterFlagsAndApplyDefaults(prefix+".chunk", f)
}

// Validate checks if the object store configuration is valid.
func (cfg *Config) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}
	return cfg.Chunk.Validate()
}

// columnRow must stay identical to the localfs row shape so chunks
// are portable between the two backends.
type columnRow struct {
	Name    string `parquet:"name,dict"`
	Payload []byte `parquet:"payload"`
}

// Store persists chunks as objects in one bucket.
type Store struct {
	client *minio.Client
	cfg    Config
	codec  *columnstore.Codec
	logger log.Logger
}

// New connects to the configured endpoint. The bucket must already
// exist; object stores are provisioned out of band.
func New(cfg Config, logger log.Logger) (*Store, error) {
	cfg.Chunk.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	codec, err := columnstore.NewCodec(cfg.Chunk)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Store{client: client, cfg: cfg, codec: codec, logger: logger}, nil
}

func partitionPrefix(dataset string, partitionKey keys.BinaryRecord) string {
	return dataset + "/" + hex.EncodeToString(partitionKey.Bytes()) + "/"
}

func chunkKey(dataset string, partitionKey keys.BinaryRecord, chunkID uint64, suffix string) string {
	return partitionPrefix(dataset, partitionKey) + fmt.Sprintf("%016x", chunkID) + suffix
}

// WriteChunk uploads the parquet data object first and the meta
// sidecar last, so ListChunks never observes a descriptor whose data
// object is missing.
func (s *Store) WriteChunk(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, data columnstore.ChunkData) error {
	rows := make([]columnRow, 0, len(data.Columns))
	for name, payload := range data.Columns {
		rows = append(rows, columnRow{Name: name, Payload: s.codec.Compress(payload)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[columnRow](&buf)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write chunk rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close chunk writer: %w", err)
	}

	dataKey := chunkKey(dataset, partitionKey, data.Meta.Info.ChunkID, parquetSuffix)
	if _, err := s.client.PutObject(ctx, s.cfg.Bucket, dataKey, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("put chunk object: %w", err)
	}

	metaBytes, err := columnstore.MarshalMeta(data.Meta)
	if err != nil {
		return err
	}
	metaKey := chunkKey(dataset, partitionKey, data.Meta.Info.ChunkID, metaSuffix)
	if _, err := s.client.PutObject(ctx, s.cfg.Bucket, metaKey, bytes.NewReader(metaBytes), int64(len(metaBytes)), minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("put chunk meta object: %w", err)
	}

	level.Debug(s.logger).Log("msg", "chunk uploaded", "dataset", dataset, "chunk_id", data.Meta.Info.ChunkID, "bytes", buf.Len())
	return nil
}

func (s *Store) ListChunks(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, rowKeyLayout keys.KeyLayout) ([]columnstore.ChunkMeta, error) {
	prefix := partitionPrefix(dataset, partitionKey)

	var metas []columnstore.ChunkMeta
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list partition objects: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, metaSuffix) {
			continue
		}
		raw, err := s.getObject(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		m, err := columnstore.UnmarshalMeta(raw, rowKeyLayout)
		if err != nil {
			return nil, fmt.Errorf("chunk meta %s: %w", obj.Key, err)
		}
		metas = append(metas, m)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Info.ChunkID < metas[j].Info.ChunkID })
	return metas, nil
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return raw, nil
}

func (s *Store) ReadColumns(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, chunkID uint64, columns []string) (map[string][]byte, error) {
	raw, err := s.getObject(ctx, chunkKey(dataset, partitionKey, chunkID, parquetSuffix))
	if err != nil {
		return nil, err
	}

	rows, err := parquet.Read[columnRow](bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("read chunk parquet: %w", err)
	}

	wanted := make(map[string]bool, len(columns))
	for _, c := range columns {
		wanted[c] = true
	}

	out := make(map[string][]byte, len(columns))
	for _, row := range rows {
		if !wanted[row.Name] {
			continue
		}
		decoded, err := s.codec.Decompress(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", row.Name, err)
		}
		out[row.Name] = decoded
	}
	for _, c := range columns {
		if _, ok := out[c]; !ok {
			return nil, fmt.Errorf("chunk %d has no column %q", chunkID, c)
		}
	}
	return out, nil
}

func (s *Store) GetScanSplits(ctx context.Context, dataset string, splitsPerNode int) ([]columnstore.Split, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if splitsPerNode <= 0 {
		splitsPerNode = s.cfg.Chunk.SplitsPerNode
	}
	splits := make([]columnstore.Split, 0, splitsPerNode)
	for i := 0; i < splitsPerNode; i++ {
		splits = append(splits, columnstore.Split{
			ID:        fmt.Sprintf("%d-of-%d", i, splitsPerNode),
			Hostnames: []string{s.cfg.Endpoint},
		})
	}
	return splits, nil
}

func (s *Store) ListPartitions(ctx context.Context, dataset string, split columnstore.Split) ([]keys.BinaryRecord, error) {
	var idx, total int
	if _, err := fmt.Sscanf(split.ID, "%d-of-%d", &idx, &total); err != nil {
		return nil, fmt.Errorf("malformed split id %q: %w", split.ID, err)
	}
	if total <= 0 || idx < 0 || idx >= total {
		return nil, fmt.Errorf("malformed split id %q", split.ID)
	}

	var out []keys.BinaryRecord
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: dataset + "/", Recursive: false}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list dataset prefixes: %w", obj.Err)
		}
		// Non-recursive listings return partition "directories" as
		// common prefixes ending in "/".
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, dataset+"/"), "/")
		if splitFor(name, total) != idx {
			continue
		}
		raw, err := hex.DecodeString(name)
		if err != nil {
			level.Warn(s.logger).Log("msg", "skipping non-partition prefix", "dataset", dataset, "prefix", name)
			continue
		}
		out = append(out, keys.FromBytes(nil, raw))
	}
	return out, nil
}

// splitFor must match the localfs assignment so the two backends
// shard identically for the same partition set.
func splitFor(partitionDir string, total int) int {
	h := fnv.New32a()
	h.Write([]byte(partitionDir))
	return int(h.Sum32() % uint32(total))
}
