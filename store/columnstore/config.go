package columnstore

import (
	"flag"
	"fmt"
)

const (
	DefaultCompressionCodec  = "zstd"
	DefaultCompressionLevel  = 3
	DefaultRowGroupSizeBytes = 100_000_000 // 100 MB
	DefaultWriteBufferSize   = 1024 * 1024 // 1MB
	DefaultSplitsPerNode     = 4
)

// Config holds configuration options for chunks written by either
// backend.
type Config struct {
	// Compression codec applied to column buffers at rest (zstd,
	// snappy, none). Parquet files carry their own codec setting.
	CompressionCodec string `yaml:"compression_codec"`

	// Compression level (codec-specific, typically 1-22 for zstd)
	CompressionLevel int `yaml:"compression_level"`

	// RowGroupSizeBytes is a parquet row group size setting. It is
	// defaulted and validated here; the localfs and objectstore writers
	// do not read it.
	RowGroupSizeBytes int `yaml:"row_group_size_bytes"`

	// WriteBufferSize is a chunk-file write buffer size setting. It is
	// defaulted and validated here; the localfs and objectstore writers
	// do not read it.
	WriteBufferSize int `yaml:"write_buffer_size"`

	// SplitsPerNode caps how many scan splits GetScanSplits hands out.
	SplitsPerNode int `yaml:"splits_per_node"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.CompressionCodec, prefix+".compression-codec", DefaultCompressionCodec, "Compression codec for column buffers at rest (zstd, snappy, none).")
	f.IntVar(&cfg.CompressionLevel, prefix+".compression-level", DefaultCompressionLevel, "Compression level (codec-specific).")
	f.IntVar(&cfg.SplitsPerNode, prefix+".splits-per-node", DefaultSplitsPerNode, "Scan splits handed out per node.")

	cfg.RowGroupSizeBytes = DefaultRowGroupSizeBytes
	cfg.WriteBufferSize = DefaultWriteBufferSize
}

// ApplyDefaults fills zero-valued fields, for configs built in code
// rather than through flags.
func (cfg *Config) ApplyDefaults() {
	if cfg.CompressionCodec == "" {
		cfg.CompressionCodec = DefaultCompressionCodec
	}
	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = DefaultCompressionLevel
	}
	if cfg.RowGroupSizeBytes == 0 {
		cfg.RowGroupSizeBytes = DefaultRowGroupSizeBytes
	}
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = DefaultWriteBufferSize
	}
	if cfg.SplitsPerNode == 0 {
		cfg.SplitsPerNode = DefaultSplitsPerNode
	}
}

// Validate returns an error describing the first invalid field.
func (cfg *Config) Validate() error {
	validCodecs := map[string]bool{
		"zstd":   true,
		"snappy": true,
		"none":   true,
	}
	if !validCodecs[cfg.CompressionCodec] {
		return fmt.Errorf("invalid compression codec %q, must be one of: zstd, snappy, none", cfg.CompressionCodec)
	}
	if cfg.CompressionLevel < 0 {
		return fmt.Errorf("compression level must be non-negative, got %d", cfg.CompressionLevel)
	}
	if cfg.RowGroupSizeBytes <= 0 {
		return fmt.Errorf("positive value required for row group size")
	}
	if cfg.WriteBufferSize <= 0 {
		return fmt.Errorf("positive value required for write buffer size")
	}
	if cfg.SplitsPerNode <= 0 {
		return fmt.Errorf("positive value required for splits per node")
	}
	return nil
}
