// Package boltmeta is the default metadata store: an embedded bbolt
// database holding dataset definitions, schema versions, and
// partition records with their shard-version history.
package boltmeta

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"

	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/schema"
)

var (
	datasetsBucket   = []byte("datasets")
	partitionsBucket = []byte("partitions")
)

// compressThreshold is the serialized size above which values are
// zstd-compressed before storage. Small records (most dataset
// definitions) are stored raw; partition records with long shard
// histories benefit from compression.
const compressThreshold = 4 * 1024

const (
	rawPrefix  = byte(0)
	zstdPrefix = byte(1)
)

// Store implements schema.MetadataStore on a single bbolt database.
// bbolt serializes writers and gives readers a consistent snapshot,
// which is exactly the linearized update_partition_shards contract:
// a concurrent GetPartition sees either the whole update or none of
// it.
type Store struct {
	db     *bolt.DB
	logger log.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// Open opens (creating if needed) the metadata database at path.
func Open(path string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{datasetsBucket, partitionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create metadata buckets: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{db: db, logger: logger, enc: enc, dec: dec}, nil
}

// Close releases the database. Pending transactions complete first.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode metadata value: %w", err)
	}
	raw := buf.Bytes()
	if len(raw) < compressThreshold {
		return append([]byte{rawPrefix}, raw...), nil
	}
	return append([]byte{zstdPrefix}, s.enc.EncodeAll(raw, nil)...), nil
}

func (s *Store) decode(raw []byte, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty metadata value")
	}
	body := raw[1:]
	if raw[0] == zstdPrefix {
		var err error
		body, err = s.dec.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("decompress metadata value: %w", err)
		}
	}
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return fmt.Errorf("decode metadata value: %w", err)
	}
	return nil
}

// partitionRow is the serialized form of a schema.PartitionRecord;
// the partition key is flattened to raw bytes for gob.
type partitionRow struct {
	Dataset string
	Key     []byte
	Shards  []schema.ShardEntry
}

func partitionDBKey(ds schema.DatasetRef, partitionKey keys.BinaryRecord) []byte {
	k := append([]byte(ds.Name), 0)
	return append(k, partitionKey.Bytes()...)
}

// PutDataset stores or replaces a dataset definition. This is the
// provisioning path; it is not part of the narrow read interface the
// core consumes.
func (s *Store) PutDataset(ctx context.Context, ds schema.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := s.encode(ds)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(datasetsBucket).Put([]byte(ds.Ref.Name), val)
	})
}

// CreatePartition registers an empty partition record, the state an
// ingester's startup validation expects to find. Creating an already
// existing partition is an error.
func (s *Store) CreatePartition(ctx context.Context, ds schema.DatasetRef, partitionKey keys.BinaryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := partitionRow{Dataset: ds.Name, Key: partitionKey.Bytes()}
	val, err := s.encode(row)
	if err != nil {
		return err
	}
	dbKey := partitionDBKey(ds, partitionKey)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(partitionsBucket)
		if b.Get(dbKey) != nil {
			return fmt.Errorf("partition already exists in dataset %q", ds.Name)
		}
		return b.Put(dbKey, val)
	})
}

func (s *Store) GetDataset(ctx context.Context, ref schema.DatasetRef) (schema.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return schema.Dataset{}, err
	}
	var ds schema.Dataset
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(datasetsBucket).Get([]byte(ref.Name))
		if raw == nil {
			return schema.ErrNotFound
		}
		return s.decode(raw, &ds)
	})
	if err != nil {
		return schema.Dataset{}, err
	}
	return ds, nil
}

func (s *Store) GetSchema(ctx context.Context, ref schema.DatasetRef, version int) (map[string]schema.ColumnDef, error) {
	ds, err := s.GetDataset(ctx, ref)
	if err != nil {
		return nil, err
	}
	if version > ds.SchemaVersion {
		return nil, fmt.Errorf("dataset %q: schema version %d not yet defined: %w", ref.Name, version, schema.ErrNotFound)
	}
	out := make(map[string]schema.ColumnDef, len(ds.Columns))
	for _, c := range ds.Columns {
		out[c.Name] = c
	}
	return out, nil
}

func (s *Store) GetPartition(ctx context.Context, ds schema.DatasetRef, partitionKey keys.BinaryRecord) (schema.PartitionRecord, error) {
	if err := ctx.Err(); err != nil {
		return schema.PartitionRecord{}, err
	}
	var row partitionRow
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(partitionsBucket).Get(partitionDBKey(ds, partitionKey))
		if raw == nil {
			return schema.ErrNotFound
		}
		return s.decode(raw, &row)
	})
	if err != nil {
		return schema.PartitionRecord{}, err
	}
	return schema.PartitionRecord{
		Dataset:       schema.DatasetRef{Name: row.Dataset},
		PartitionKey:  keys.FromBytes(nil, row.Key),
		ShardVersions: row.Shards,
	}, nil
}

// UpdatePartitionShards appends entry to the partition's shard
// history in a single bbolt update transaction.
func (s *Store) UpdatePartitionShards(ctx context.Context, ds schema.DatasetRef, partitionKey keys.BinaryRecord, entry schema.ShardEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dbKey := partitionDBKey(ds, partitionKey)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(partitionsBucket)
		raw := b.Get(dbKey)
		if raw == nil {
			return schema.ErrNotFound
		}
		var row partitionRow
		if err := s.decode(raw, &row); err != nil {
			return err
		}
		row.Shards = append(row.Shards, entry)
		val, err := s.encode(row)
		if err != nil {
			return err
		}
		return b.Put(dbKey, val)
	})
	if err != nil {
		return err
	}
	level.Debug(s.logger).Log("msg", "partition shards updated", "dataset", ds.Name, "version", entry.Version, "ack_row", entry.AckRowID)
	return nil
}
