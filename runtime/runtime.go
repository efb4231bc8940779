// Package runtime wires the process-wide collaborators -- metadata
// store, column store, and scan executor -- into one explicitly
// constructed handle. Nothing here is a package-level global: tests
// construct independent Nodes against temp directories.
package runtime

import (
	"flag"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftdb/chunkindex/index"
	"github.com/driftdb/chunkindex/ingest"
	"github.com/driftdb/chunkindex/plan"
	"github.com/driftdb/chunkindex/scan"
	"github.com/driftdb/chunkindex/schema"
	"github.com/driftdb/chunkindex/store/columnstore"
	"github.com/driftdb/chunkindex/store/columnstore/localfs"
	"github.com/driftdb/chunkindex/store/columnstore/objectstore"
	"github.com/driftdb/chunkindex/store/metadatastore/boltmeta"
)

// Config selects and configures the node's backends.
type Config struct {
	// MetadataPath is the bbolt metadata database file.
	MetadataPath string `yaml:"metadata_path"`

	// Backend selects the column store: "localfs" or "s3".
	Backend string `yaml:"backend"`

	// DataPath is the localfs column store root.
	DataPath string `yaml:"data_path"`

	// S3 configures the object store backend when Backend is "s3".
	S3 objectstore.Config `yaml:"s3"`

	// Chunk configures chunks written by the localfs backend.
	Chunk columnstore.Config `yaml:"chunk"`

	// Scan configures the executor.
	Scan scan.Config `yaml:"scan"`

	// InqueryPartitionsLimit caps enumerated multi-partition
	// combinations in compiled plans
	// (columnstore.inquery-partitions-limit).
	InqueryPartitionsLimit int `yaml:"inquery_partitions_limit"`

	// ChunkIDOrderedIndex selects the chunk-id ordered index variant
	// instead of the default row-key ordered one.
	ChunkIDOrderedIndex bool `yaml:"chunk_id_ordered_index"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.MetadataPath, prefix+".metadata-path", "./chunkindex-meta.db", "Path to the bbolt metadata database.")
	f.StringVar(&cfg.Backend, prefix+".backend", "localfs", "Column store backend: localfs or s3.")
	f.StringVar(&cfg.DataPath, prefix+".data-path", "./chunkindex-data", "Root directory for the localfs column store.")
	// Registered under a fixed name: this is the one key other tools
	// in this space recognize, independent of the caller's prefix.
	f.IntVar(&cfg.InqueryPartitionsLimit, "columnstore.inquery-partitions-limit", 100, "Cap on enumerated multi-partition combinations per query.")
	f.BoolVar(&cfg.ChunkIDOrderedIndex, prefix+".chunk-id-ordered-index", false, "Use the chunk-id ordered partition index variant.")
	cfg.Chunk.RegisterFlagsAndApplyDefaults(prefix+".chunk", f)
	cfg.S3.RegisterFlagsAndApplyDefaults(prefix+".s3", f)
}

// Validate checks if the node configuration is valid.
func (cfg *Config) Validate() error {
	if cfg.MetadataPath == "" {
		return fmt.Errorf("metadata path cannot be empty")
	}
	switch cfg.Backend {
	case "localfs":
		if cfg.DataPath == "" {
			return fmt.Errorf("data path cannot be empty")
		}
	case "s3":
		if err := cfg.S3.Validate(); err != nil {
			return fmt.Errorf("invalid s3 config: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend %q, must be localfs or s3", cfg.Backend)
	}
	if cfg.InqueryPartitionsLimit <= 0 {
		return fmt.Errorf("positive value required for inquery partitions limit")
	}
	return nil
}

// Node is one process's handle on the store stack.
type Node struct {
	ID       string
	Meta     *boltmeta.Store
	Columns  columnstore.Store
	Executor *scan.Executor
	Writer   *ingest.StoreWriter

	cfg    Config
	logger log.Logger
}

// New constructs a Node from cfg. Teardown is explicit via Close.
func New(cfg Config, logger log.Logger, _ prometheus.Registerer) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	meta, err := boltmeta.Open(cfg.MetadataPath, logger)
	if err != nil {
		return nil, err
	}

	var columns columnstore.Store
	switch cfg.Backend {
	case "s3":
		columns, err = objectstore.New(cfg.S3, logger)
	default:
		columns, err = localfs.New(cfg.DataPath, cfg.Chunk, logger)
	}
	if err != nil {
		meta.Close()
		return nil, err
	}

	scanCfg := cfg.Scan
	if cfg.ChunkIDOrderedIndex {
		scanCfg.IndexVariant = index.ChunkIDOrdered
	}
	executor, err := scan.New(scanCfg, meta, columns, logger)
	if err != nil {
		meta.Close()
		return nil, err
	}

	node := &Node{
		ID:       uuid.NewString(),
		Meta:     meta,
		Columns:  columns,
		Executor: executor,
		Writer:   ingest.NewStoreWriter(columns),
		cfg:      cfg,
		logger:   logger,
	}
	level.Info(logger).Log("msg", "node initialized", "node_id", node.ID, "backend", cfg.Backend)
	return node, nil
}

// PlanConfig returns the compiler configuration this node's queries
// should use.
func (n *Node) PlanConfig() plan.Config {
	return plan.Config{InqueryPartitionsLimit: n.cfg.InqueryPartitionsLimit}
}

// MetadataStore returns the node's metadata store as the narrow
// interface consumers should depend on.
func (n *Node) MetadataStore() schema.MetadataStore {
	return n.Meta
}

// Close releases the node's stores.
func (n *Node) Close() error {
	return n.Meta.Close()
}
