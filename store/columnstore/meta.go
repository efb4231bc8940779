package columnstore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/driftdb/chunkindex/chunk"
	"github.com/driftdb/chunkindex/keys"
)

// metaRecord is the serialized form of a ChunkMeta. Key records are
// flattened to their raw encoded bytes; the row-key layout needed to
// re-wrap them is supplied by the reader, which knows the projection.
type metaRecord struct {
	ChunkID  uint64
	NumRows  int32
	FirstKey []byte
	LastKey  []byte
	Skips    map[uint64][]uint32
}

// MarshalMeta serializes m for persistence alongside its chunk.
func MarshalMeta(m ChunkMeta) ([]byte, error) {
	rec := metaRecord{
		ChunkID:  m.Info.ChunkID,
		NumRows:  m.Info.NumRows,
		FirstKey: m.Info.FirstKey.Bytes(),
		LastKey:  m.Info.LastKey.Bytes(),
		Skips:    m.Skips,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode chunk meta: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalMeta reverses MarshalMeta. rowKeyLayout is the projection's
// declared row-key layout, needed so the re-wrapped first/last keys
// compare correctly in the partition chunk index.
func UnmarshalMeta(raw []byte, rowKeyLayout keys.KeyLayout) (ChunkMeta, error) {
	var rec metaRecord
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return ChunkMeta{}, fmt.Errorf("decode chunk meta: %w", err)
	}
	return ChunkMeta{
		Info: chunk.SetInfo{
			ChunkID:  rec.ChunkID,
			NumRows:  rec.NumRows,
			FirstKey: keys.FromBytes(rowKeyLayout, rec.FirstKey),
			LastKey:  keys.FromBytes(rowKeyLayout, rec.LastKey),
		},
		Skips: rec.Skips,
	}, nil
}
