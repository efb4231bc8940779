package kafka

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftdb/chunkindex/ingest"
)

func TestMessageRoundtrip(t *testing.T) {
	in := Message{
		Dataset:      "gdelt",
		PartitionKey: []byte{0x00, 0x01, 0x02},
		Chunk: ingest.ChunkedColumns{
			Version:    3,
			FirstRowID: 100,
			LastRowID:  149,
			AckRowID:   149,
			FirstKey:   []byte{0x80, 0, 0, 0},
			LastKey:    []byte{0x80, 0, 0, 9},
			Skips:      map[uint64][]uint32{2: {4, 7, 9}},
			Columns: map[string][]byte{
				"id":      {1, 2, 3},
				"sqlDate": []byte("1979-01-01"),
			},
		},
	}

	raw, err := EncodeMessage(in)
	require.NoError(t, err)

	out, err := DecodeMessage(raw)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeRejectsForeignRecord(t *testing.T) {
	t.Log("records without the wire magic must be rejected rather than misparsed")

	_, err := DecodeMessage([]byte("some other format entirely"))
	require.Error(t, err)

	_, err = DecodeMessage(nil)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	raw, err := EncodeMessage(Message{
		Dataset:      "gdelt",
		PartitionKey: []byte{1},
		Chunk: ingest.ChunkedColumns{
			Columns: map[string][]byte{"id": {1, 2, 3}},
		},
	})
	require.NoError(t, err)

	_, err = DecodeMessage(raw[:len(raw)-2])
	require.Error(t, err)
}

func TestDecodeRejectsTrailingGarbage(t *testing.T) {
	raw, err := EncodeMessage(Message{Dataset: "gdelt", Chunk: ingest.ChunkedColumns{}})
	require.NoError(t, err)

	_, err = DecodeMessage(append(raw, 0xff))
	require.Error(t, err)
}
