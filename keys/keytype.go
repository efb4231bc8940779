// Package keys implements the compact, order-preserving binary encodings
// used for partition-key and row-key tuples.
package keys

import (
	"fmt"
)

// KeyType tags the wire encoding, comparison, and parsing behavior for one
// field of a key tuple. Implementations are registered once, at process
// start, and are otherwise immutable.
type KeyType interface {
	// Name identifies the key type in schema definitions.
	Name() string

	// Encode appends the order-preserving encoding of v to dst and
	// returns the extended slice. Returns EncodingError if v is not an
	// instance of the type this KeyType expects.
	Encode(dst []byte, v any) ([]byte, error)

	// Compare returns -1, 0, or 1 for the ordering of the two encoded
	// field values found at the head of a and b. It returns the number
	// of bytes of a and b that were consumed, so callers can advance
	// past composite fields.
	Compare(a, b []byte) (cmp int, consumedA int, consumedB int)

	// Parse decodes the value at the head of raw and returns it along
	// with the number of bytes consumed.
	Parse(raw []byte) (value any, consumed int, err error)

	// ParseText parses a value given as a textual/native Go literal
	// (as arrives from a filter expression) into the type's native Go
	// representation, for subsequent Encode calls.
	ParseText(v any) (any, error)
}

// EncodingError reports a value that could not be encoded against a
// projection's declared key layout.
type EncodingError struct {
	Field string
	Value any
	Type  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode field %q: value %v (%T) is not a valid %s", e.Field, e.Value, e.Value, e.Type)
}

// KeyParseError reports a value that could not be parsed against a
// declared KeyType, typically while compiling a predicate.
type KeyParseError struct {
	Type  string
	Value any
}

func (e *KeyParseError) Error() string {
	return fmt.Sprintf("cannot parse value %v (%T) as %s", e.Value, e.Value, e.Type)
}

var registry = map[string]KeyType{}

// Register adds a KeyType to the process-wide registry. Intended to be
// called from package init() functions only.
func Register(kt KeyType) {
	registry[kt.Name()] = kt
}

// Lookup returns the registered KeyType for name, or false if none is
// registered under that name.
func Lookup(name string) (KeyType, bool) {
	kt, ok := registry[name]
	return kt, ok
}

func init() {
	Register(IntKey{})
	Register(LongKey{})
	Register(StringKey{})
	Register(TimestampKey{})
}
