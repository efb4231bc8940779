package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeRejectsArityMismatch(t *testing.T) {
	t.Log("encoding fewer values than the layout declares must fail with EncodingError")

	layout := KeyLayout{LongKey{}, StringKey{}}
	_, err := Encode(layout, []any{int64(1)})
	require.Error(t, err)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}

func TestEncodeRejectsTypeMismatch(t *testing.T) {
	layout := KeyLayout{LongKey{}}
	_, err := Encode(layout, []any{"not a long"})
	require.Error(t, err)
}

func TestCompareOrdersLikeNativeValues(t *testing.T) {
	layout := KeyLayout{LongKey{}, StringKey{}}

	cases := []struct {
		a, b []any
		want Ordering
	}{
		{[]any{int64(1979), "a"}, []any{int64(1979), "b"}, Less},
		{[]any{int64(1979), "b"}, []any{int64(1979), "a"}, Greater},
		{[]any{int64(1979), "a"}, []any{int64(1979), "a"}, Equal},
		{[]any{int64(1978), "z"}, []any{int64(1979), "a"}, Less},
		{[]any{int64(-5), "x"}, []any{int64(5), "x"}, Less},
	}

	for _, c := range cases {
		ra, err := Encode(layout, c.a)
		require.NoError(t, err)
		rb, err := Encode(layout, c.b)
		require.NoError(t, err)
		require.Equal(t, c.want, Compare(ra, rb), "comparing %v vs %v", c.a, c.b)
	}
}

func TestEqualityIsByteEquality(t *testing.T) {
	layout := KeyLayout{LongKey{}}
	a, err := Encode(layout, []any{int64(42)})
	require.NoError(t, err)
	b, err := Encode(layout, []any{int64(42)})
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestStringKeyPreservesLexicographicOrderAcrossLengths(t *testing.T) {
	layout := KeyLayout{StringKey{}}

	ra, err := Encode(layout, []any{"ab"})
	require.NoError(t, err)
	rb, err := Encode(layout, []any{"b"})
	require.NoError(t, err)

	require.Equal(t, Less, Compare(ra, rb), "\"ab\" must sort before \"b\" as it would natively")
}

func TestParseValuesRejectsUnparseableValue(t *testing.T) {
	_, err := ParseValues(LongKey{}, []any{int64(1), "nope"})
	require.Error(t, err)

	var parseErr *KeyParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestRegistryLookup(t *testing.T) {
	kt, ok := Lookup("timestamp")
	require.True(t, ok)
	require.Equal(t, "timestamp", kt.Name())

	_, ok = Lookup("does-not-exist")
	require.False(t, ok)
}
