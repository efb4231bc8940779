package columnstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundtrip(t *testing.T) {
	payload := bytes.Repeat([]byte("columnar "), 1000)

	for _, name := range []string{"zstd", "snappy", "none"} {
		t.Run(name, func(t *testing.T) {
			cfg := Config{CompressionCodec: name}
			cfg.ApplyDefaults()
			codec, err := NewCodec(cfg)
			require.NoError(t, err)

			compressed := codec.Compress(payload)
			if name != "none" {
				require.Less(t, len(compressed), len(payload), "repetitive payload must shrink")
			}

			got, err := codec.Decompress(compressed)
			require.NoError(t, err)
			require.Equal(t, payload, got)
		})
	}
}

func TestCodecRejectsUnknownName(t *testing.T) {
	_, err := NewCodec(Config{CompressionCodec: "lzma"})
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	cfg.CompressionCodec = "brotli"
	require.Error(t, cfg.Validate())

	cfg = Config{}
	cfg.ApplyDefaults()
	cfg.SplitsPerNode = -1
	require.Error(t, cfg.Validate())
}
