package keys

import "bytes"

// BinaryRecord is an immutable, self-contained byte encoding of an
// ordered tuple of typed key fields. Two records encoded against the
// same field-type layout compare correctly with Compare; records
// encoded against different layouts should not be compared.
type BinaryRecord struct {
	buf   []byte
	types []KeyType
}

// Bytes returns the record's raw encoded form. Callers must not
// mutate the returned slice.
func (r BinaryRecord) Bytes() []byte { return r.buf }

// Equal reports byte equality, which per spec.md §3 implies field-wise
// equality for records encoded against the same layout.
func (r BinaryRecord) Equal(other BinaryRecord) bool {
	return bytes.Equal(r.buf, other.buf)
}

// Ordering is the result of comparing two BinaryRecords or key fields.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// Compare returns the total order of a and b by walking their shared
// field-type layout left to right and returning on the first field
// that differs. Records of different lengths where one is a strict
// prefix of the other (in field count) compare by their common
// prefix, then the shorter record sorts first -- this arises only
// when comparing partial prefix keys built by the predicate compiler.
func Compare(a, b BinaryRecord) Ordering {
	n := len(a.types)
	if len(b.types) < n {
		n = len(b.types)
	}
	oa, ob := a.buf, b.buf
	for i := 0; i < n; i++ {
		cmp, ca, cb := a.types[i].Compare(oa, ob)
		if cmp != 0 {
			return Ordering(sign(cmp))
		}
		oa = oa[ca:]
		ob = ob[cb:]
	}
	switch {
	case len(a.types) < len(b.types):
		return Less
	case len(a.types) > len(b.types):
		return Greater
	default:
		return Equal
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// KeyLayout is an ordered list of the KeyTypes for the fields of a key
// tuple, e.g. a projection's declared partition-key or row-key columns.
type KeyLayout []KeyType

// FromBytes wraps an already-encoded key as a BinaryRecord. The caller
// asserts that raw was produced by Encode against the same layout;
// layout may be nil when the record will only be compared for byte
// equality (e.g. partition keys read back from a store).
func FromBytes(layout KeyLayout, raw []byte) BinaryRecord {
	return BinaryRecord{buf: raw, types: layout}
}

// Encode builds a BinaryRecord from values, one per entry in layout,
// in declared order. It fails with EncodingError on arity or per-field
// type mismatch.
func Encode(layout KeyLayout, values []any) (BinaryRecord, error) {
	if len(values) != len(layout) {
		return BinaryRecord{}, &EncodingError{Value: values, Type: "tuple (arity mismatch)"}
	}
	buf := make([]byte, 0, 16*len(values))
	for i, v := range values {
		var err error
		buf, err = layout[i].Encode(buf, v)
		if err != nil {
			return BinaryRecord{}, err
		}
	}
	return BinaryRecord{buf: buf, types: layout}, nil
}

// ParseSingleValue parses a single raw filter value against kt, as
// used by the predicate compiler to turn an Eq(col, v) filter value
// into kt's native representation before encoding it into a record.
func ParseSingleValue(kt KeyType, raw any) (any, error) {
	return kt.ParseText(raw)
}

// ParseValues parses a set of raw filter values (as arrive from an
// In(col, vs) filter) against kt.
func ParseValues(kt KeyType, raw []any) ([]any, error) {
	out := make([]any, len(raw))
	for i, v := range raw {
		parsed, err := kt.ParseText(v)
		if err != nil {
			return nil, err
		}
		out[i] = parsed
	}
	return out, nil
}
