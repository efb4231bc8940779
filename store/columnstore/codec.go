package columnstore

import (
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses column buffers at rest. Encoders
// are stateful and reused, so a Codec must be constructed once per
// store and is safe for concurrent use.
type Codec struct {
	name    string
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

// NewCodec builds the codec named by cfg.CompressionCodec.
func NewCodec(cfg Config) (*Codec, error) {
	c := &Codec{name: cfg.CompressionCodec}
	switch cfg.CompressionCodec {
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.CompressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		c.zstdEnc = enc
		c.zstdDec = dec
	case "snappy", "none":
	default:
		return nil, fmt.Errorf("unknown compression codec %q", cfg.CompressionCodec)
	}
	return c, nil
}

// Name returns the codec's configured name.
func (c *Codec) Name() string { return c.name }

// Compress returns the compressed form of src in a fresh buffer.
func (c *Codec) Compress(src []byte) []byte {
	switch c.name {
	case "zstd":
		return c.zstdEnc.EncodeAll(src, nil)
	case "snappy":
		return snappy.Encode(nil, src)
	default:
		return src
	}
}

// Decompress reverses Compress.
func (c *Codec) Decompress(src []byte) ([]byte, error) {
	switch c.name {
	case "zstd":
		out, err := c.zstdDec.DecodeAll(src, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case "snappy":
		out, err := snappy.Decode(nil, src)
		if err != nil {
			return nil, fmt.Errorf("snappy decompress: %w", err)
		}
		return out, nil
	default:
		return src, nil
	}
}
