// Package scan executes compiled scan plans: it resolves the selected
// partitions, materializes each partition's chunk index lazily from
// the column store, prunes chunks by row-key range, and yields rows
// with superseded offsets filtered out.
package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/driftdb/chunkindex/index"
	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/plan"
	"github.com/driftdb/chunkindex/schema"
	"github.com/driftdb/chunkindex/store/columnstore"
)

// Config holds the executor's tunables.
type Config struct {
	// SplitsPerNode is forwarded to the column store's split
	// enumerator for Filtered plans.
	SplitsPerNode int `yaml:"splits_per_node"`

	// MaxConcurrentSplits bounds the parallel split enumeration.
	MaxConcurrentSplits int `yaml:"max_concurrent_splits"`

	// IndexCacheSize is the number of hot partition indexes retained.
	IndexCacheSize int `yaml:"index_cache_size"`

	// IndexVariant selects the partition chunk index implementation.
	IndexVariant index.Variant `yaml:"-"`
}

// ApplyDefaults fills zero-valued fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.SplitsPerNode == 0 {
		cfg.SplitsPerNode = columnstore.DefaultSplitsPerNode
	}
	if cfg.MaxConcurrentSplits == 0 {
		cfg.MaxConcurrentSplits = 4
	}
	if cfg.IndexCacheSize == 0 {
		cfg.IndexCacheSize = 128
	}
}

// Executor ties the predicate compiler's output to the partition
// chunk index and a column store.
type Executor struct {
	meta   schema.MetadataStore
	store  columnstore.Store
	cache  *index.Cache
	cfg    Config
	logger log.Logger
	tracer trace.Tracer
}

// New builds an Executor. The partition index cache is owned by the
// executor and shared across its queries.
func New(cfg Config, meta schema.MetadataStore, store columnstore.Store, logger log.Logger) (*Executor, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = log.NewNopLogger()
	}

	e := &Executor{
		meta:   meta,
		store:  store,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("chunkindex/scan"),
	}

	cache, err := index.NewCache(cfg.IndexCacheSize, cfg.IndexVariant, e.buildPartitionIndex)
	if err != nil {
		return nil, fmt.Errorf("create index cache: %w", err)
	}
	e.cache = cache
	return e, nil
}

// buildPartitionIndex materializes one partition's chunk index from
// column store metadata.
func (e *Executor) buildPartitionIndex(ctx context.Context, ds string, partitionKey keys.BinaryRecord) (index.PartitionChunkIndex, error) {
	dataset, err := e.meta.GetDataset(ctx, schema.DatasetRef{Name: ds})
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", ds, err)
	}
	proj, err := schema.NewProjection(dataset)
	if err != nil {
		return nil, err
	}
	rkLayout, err := proj.RowKeyLayout()
	if err != nil {
		return nil, err
	}

	metas, err := e.store.ListChunks(ctx, ds, partitionKey, rkLayout)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	idx := index.New(e.cfg.IndexVariant)
	for _, m := range metas {
		if err := idx.Add(m.Info, m.Skips); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// ScanRows resolves the plan's partition set and returns a lazy,
// finite sequence of rows. Chunk data is fetched and decoded only as
// the caller advances the sequence; dropping the Rows cancels nothing
// in flight because nothing is in flight.
func (e *Executor) ScanRows(ctx context.Context, proj schema.RichProjection, columns []string, version int, p plan.Plan, factory RowReaderFactory) (*Rows, error) {
	ctx, span := e.tracer.Start(ctx, "Executor.ScanRows",
		trace.WithAttributes(
			attribute.String("dataset", proj.Dataset.Ref.Name),
			attribute.Int("version", version),
			attribute.Int("partition_scan_kind", int(p.Partition.Kind)),
			attribute.Int("chunk_scan_kind", int(p.Chunk.Kind)),
		))
	defer span.End()

	if factory == nil {
		factory = OpaqueRowReaderFactory
	}

	partitions, err := e.resolvePartitions(ctx, proj.Dataset.Ref.Name, p.Partition)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("partitions", len(partitions)))
	level.Debug(e.logger).Log("msg", "scan partitions resolved", "dataset", proj.Dataset.Ref.Name, "partitions", len(partitions))

	return &Rows{
		exec:       e,
		dataset:    proj.Dataset.Ref.Name,
		columns:    columns,
		chunkScan:  p.Chunk,
		partitions: partitions,
		factory:    factory,
	}, nil
}

// resolvePartitions implements the Single/Multi/Filtered dispatch of
// the coordination contract. For Filtered plans, split enumeration
// runs in parallel, bounded by MaxConcurrentSplits; survivors of the
// residual predicate are collected in split order so repeated scans
// visit partitions deterministically.
func (e *Executor) resolvePartitions(ctx context.Context, dataset string, method plan.PartitionScanMethod) ([]keys.BinaryRecord, error) {
	switch method.Kind {
	case plan.Single, plan.Multi:
		return method.Keys, nil
	}

	splits, err := e.store.GetScanSplits(ctx, dataset, e.cfg.SplitsPerNode)
	if err != nil {
		return nil, fmt.Errorf("get scan splits: %w", err)
	}

	perSplit := make([][]keys.BinaryRecord, len(splits))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentSplits)
	for i, split := range splits {
		i, split := i, split
		g.Go(func() error {
			candidates, err := e.store.ListPartitions(gctx, dataset, split)
			if err != nil {
				return fmt.Errorf("split %s: %w", split.ID, err)
			}
			var keep []keys.BinaryRecord
			for _, pk := range candidates {
				if method.Unfiltered || method.Predicate(pk) {
					keep = append(keep, pk)
				}
			}
			mu.Lock()
			perSplit[i] = keep
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []keys.BinaryRecord
	for _, ps := range perSplit {
		out = append(out, ps...)
	}
	return out, nil
}
