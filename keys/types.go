package keys

import (
	"bytes"
	"encoding/binary"
	"math"
)

// IntKey encodes a 32-bit signed integer as a big-endian, sign-flipped
// 4-byte sequence so that unsigned lexicographic comparison matches
// signed numeric order.
type IntKey struct{}

func (IntKey) Name() string { return "int" }

func (IntKey) Encode(dst []byte, v any) ([]byte, error) {
	i, ok := toInt32(v)
	if !ok {
		return nil, &EncodingError{Value: v, Type: "int"}
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(i)^0x80000000)
	return append(dst, buf[:]...), nil
}

func (IntKey) Compare(a, b []byte) (int, int, int) {
	cmp := bytes.Compare(a[:4], b[:4])
	return cmp, 4, 4
}

func (IntKey) Parse(raw []byte) (any, int, error) {
	if len(raw) < 4 {
		return nil, 0, &KeyParseError{Type: "int", Value: raw}
	}
	u := binary.BigEndian.Uint32(raw[:4]) ^ 0x80000000
	return int32(u), 4, nil
}

func (IntKey) ParseText(v any) (any, error) {
	i, ok := toInt32(v)
	if !ok {
		return nil, &KeyParseError{Type: "int", Value: v}
	}
	return i, nil
}

// LongKey encodes a 64-bit signed integer the same way as IntKey, but
// over 8 bytes. Used for timestamps and row ids as well as explicit
// "long" columns.
type LongKey struct{}

func (LongKey) Name() string { return "long" }

func (LongKey) Encode(dst []byte, v any) ([]byte, error) {
	i, ok := toInt64(v)
	if !ok {
		return nil, &EncodingError{Value: v, Type: "long"}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(i)^0x8000000000000000)
	return append(dst, buf[:]...), nil
}

func (LongKey) Compare(a, b []byte) (int, int, int) {
	cmp := bytes.Compare(a[:8], b[:8])
	return cmp, 8, 8
}

func (LongKey) Parse(raw []byte) (any, int, error) {
	if len(raw) < 8 {
		return nil, 0, &KeyParseError{Type: "long", Value: raw}
	}
	u := binary.BigEndian.Uint64(raw[:8]) ^ 0x8000000000000000
	return int64(u), 8, nil
}

func (LongKey) ParseText(v any) (any, error) {
	i, ok := toInt64(v)
	if !ok {
		return nil, &KeyParseError{Type: "long", Value: v}
	}
	return i, nil
}

// TimestampKey is a LongKey alias with its own name, since timestamps
// and plain longs are declared as distinct column types in a schema
// even though they share a wire encoding.
type TimestampKey struct{ LongKey }

func (TimestampKey) Name() string { return "timestamp" }

// StringKey encodes a string as a big-endian uint32 length prefix
// followed by the raw bytes.
//
// Plain length-prefixing alone does not preserve cross-length
// lexicographic order (e.g. "ab" vs "b" with length-then-bytes
// comparison); Compare handles this by comparing the content bytes
// first and only falling back to length as a tiebreaker, matching
// the ordering produced by a raw byte-for-byte comparison of the
// two original strings.
type StringKey struct{}

func (StringKey) Name() string { return "string" }

func (StringKey) Encode(dst []byte, v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &EncodingError{Value: v, Type: "string"}
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, s...), nil
}

func (StringKey) Compare(a, b []byte) (int, int, int) {
	la := binary.BigEndian.Uint32(a[:4])
	lb := binary.BigEndian.Uint32(b[:4])
	sa := a[4 : 4+la]
	sb := b[4 : 4+lb]
	return bytes.Compare(sa, sb), int(4 + la), int(4 + lb)
}

func (StringKey) Parse(raw []byte) (any, int, error) {
	if len(raw) < 4 {
		return nil, 0, &KeyParseError{Type: "string", Value: raw}
	}
	l := binary.BigEndian.Uint32(raw[:4])
	if len(raw) < int(4+l) {
		return nil, 0, &KeyParseError{Type: "string", Value: raw}
	}
	return string(raw[4 : 4+l]), int(4 + l), nil
}

func (StringKey) ParseText(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &KeyParseError{Type: "string", Value: v}
	}
	return s, nil
}

func toInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int32(n), true
	case int64:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int32(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
