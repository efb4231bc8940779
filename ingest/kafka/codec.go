package kafka

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/driftdb/chunkindex/ingest"
)

// Message is one wire record: a ChunkedColumns batch plus the
// (dataset, partition) routing envelope.
type Message struct {
	Dataset      string
	PartitionKey []byte
	Chunk        ingest.ChunkedColumns
}

// wireMagic guards against consuming a topic carrying some other
// format; bump the trailing digit on incompatible layout changes.
var wireMagic = []byte("CXC1")

// EncodeMessage serializes m as a flat, length-prefixed record. All
// fixed-width integers are big-endian; lengths and counts are
// uvarints.
func EncodeMessage(m Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(wireMagic)

	writeUint32(&buf, uint32(m.Chunk.Version))
	writeUint64(&buf, uint64(m.Chunk.FirstRowID))
	writeUint64(&buf, uint64(m.Chunk.LastRowID))
	writeUint64(&buf, uint64(m.Chunk.AckRowID))

	writeBytes(&buf, []byte(m.Dataset))
	writeBytes(&buf, m.PartitionKey)
	writeBytes(&buf, m.Chunk.FirstKey)
	writeBytes(&buf, m.Chunk.LastKey)

	writeUvarint(&buf, uint64(len(m.Chunk.Skips)))
	for target, offsets := range m.Chunk.Skips {
		writeUint64(&buf, target)
		writeUvarint(&buf, uint64(len(offsets)))
		for _, o := range offsets {
			writeUint32(&buf, o)
		}
	}

	writeUvarint(&buf, uint64(len(m.Chunk.Columns)))
	for name, payload := range m.Chunk.Columns {
		writeBytes(&buf, []byte(name))
		writeBytes(&buf, payload)
	}

	return buf.Bytes(), nil
}

// DecodeMessage reverses EncodeMessage.
func DecodeMessage(raw []byte) (Message, error) {
	r := bytes.NewReader(raw)

	magic := make([]byte, len(wireMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, wireMagic) {
		return Message{}, fmt.Errorf("record is not a chunked-columns message")
	}

	var m Message
	version, err := readUint32(r)
	if err != nil {
		return Message{}, fmt.Errorf("read version: %w", err)
	}
	m.Chunk.Version = int32(version)

	firstRow, err := readUint64(r)
	if err != nil {
		return Message{}, fmt.Errorf("read first row id: %w", err)
	}
	m.Chunk.FirstRowID = int64(firstRow)

	lastRow, err := readUint64(r)
	if err != nil {
		return Message{}, fmt.Errorf("read last row id: %w", err)
	}
	m.Chunk.LastRowID = int64(lastRow)

	ackRow, err := readUint64(r)
	if err != nil {
		return Message{}, fmt.Errorf("read ack row id: %w", err)
	}
	m.Chunk.AckRowID = int64(ackRow)

	dataset, err := readBytes(r)
	if err != nil {
		return Message{}, fmt.Errorf("read dataset: %w", err)
	}
	m.Dataset = string(dataset)

	if m.PartitionKey, err = readBytes(r); err != nil {
		return Message{}, fmt.Errorf("read partition key: %w", err)
	}
	if m.Chunk.FirstKey, err = readBytes(r); err != nil {
		return Message{}, fmt.Errorf("read first key: %w", err)
	}
	if m.Chunk.LastKey, err = readBytes(r); err != nil {
		return Message{}, fmt.Errorf("read last key: %w", err)
	}

	skipCount, err := binary.ReadUvarint(r)
	if err != nil {
		return Message{}, fmt.Errorf("read skip count: %w", err)
	}
	if skipCount > 0 {
		m.Chunk.Skips = make(map[uint64][]uint32, skipCount)
		for i := uint64(0); i < skipCount; i++ {
			target, err := readUint64(r)
			if err != nil {
				return Message{}, fmt.Errorf("read skip target: %w", err)
			}
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return Message{}, fmt.Errorf("read skip offset count: %w", err)
			}
			offsets := make([]uint32, n)
			for j := uint64(0); j < n; j++ {
				if offsets[j], err = readUint32(r); err != nil {
					return Message{}, fmt.Errorf("read skip offset: %w", err)
				}
			}
			m.Chunk.Skips[target] = offsets
		}
	}

	colCount, err := binary.ReadUvarint(r)
	if err != nil {
		return Message{}, fmt.Errorf("read column count: %w", err)
	}
	m.Chunk.Columns = make(map[string][]byte, colCount)
	for i := uint64(0); i < colCount; i++ {
		name, err := readBytes(r)
		if err != nil {
			return Message{}, fmt.Errorf("read column name: %w", err)
		}
		payload, err := readBytes(r)
		if err != nil {
			return Message{}, fmt.Errorf("read column %q: %w", name, err)
		}
		m.Chunk.Columns[string(name)] = payload
	}

	if r.Len() != 0 {
		return Message{}, fmt.Errorf("%d trailing bytes after chunked-columns message", r.Len())
	}
	return m, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	buf.Write(b[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("length prefix %d exceeds remaining %d bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
