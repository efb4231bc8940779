package chunk

import (
	"testing"

	"github.com/driftdb/chunkindex/keys"
	"github.com/stretchr/testify/require"
)

func enc(t *testing.T, v int64) keys.BinaryRecord {
	r, err := keys.Encode(keys.KeyLayout{keys.LongKey{}}, []any{v})
	require.NoError(t, err)
	return r
}

func TestIntersectionOverlapping(t *testing.T) {
	t.Log("a chunk spanning [10,20] intersected with [15,25] should yield [15,20]")

	c := SetInfo{FirstKey: enc(t, 10), LastKey: enc(t, 20)}
	iv, ok := c.Intersection(enc(t, 15), enc(t, 25))
	require.True(t, ok)
	require.Equal(t, keys.Equal, keys.Compare(iv.Lo, enc(t, 15)))
	require.Equal(t, keys.Equal, keys.Compare(iv.Hi, enc(t, 20)))
}

func TestIntersectionDisjointBelow(t *testing.T) {
	c := SetInfo{FirstKey: enc(t, 10), LastKey: enc(t, 20)}
	_, ok := c.Intersection(enc(t, 21), enc(t, 30))
	require.False(t, ok)
}

func TestIntersectionDisjointAbove(t *testing.T) {
	c := SetInfo{FirstKey: enc(t, 10), LastKey: enc(t, 20)}
	_, ok := c.Intersection(enc(t, 0), enc(t, 9))
	require.False(t, ok)
}

func TestIntersectionContainment(t *testing.T) {
	t.Log("querying a range that fully contains the chunk should yield the chunk's own bounds")

	c := SetInfo{FirstKey: enc(t, 10), LastKey: enc(t, 20)}
	iv, ok := c.Intersection(enc(t, 0), enc(t, 100))
	require.True(t, ok)
	require.Equal(t, keys.Equal, keys.Compare(iv.Lo, c.FirstKey))
	require.Equal(t, keys.Equal, keys.Compare(iv.Hi, c.LastKey))
}

func TestValidRejectsInvertedKeys(t *testing.T) {
	c := SetInfo{FirstKey: enc(t, 20), LastKey: enc(t, 10)}
	require.False(t, c.Valid())
}
