package skip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeDeduplicatesAndSorts(t *testing.T) {
	t.Log("merging overlapping offset batches must yield a sorted, de-duplicated result")

	row := NewRow([]uint32{5, 1, 3})
	row.Merge([]uint32{3, 2, 9})

	require.Equal(t, []uint32{1, 2, 3, 5, 9}, row.Offsets())
}

func TestMergeIsIdempotent(t *testing.T) {
	row := NewRow([]uint32{1, 2, 3})
	row.Merge([]uint32{1, 2, 3})
	require.Equal(t, []uint32{1, 2, 3}, row.Offsets())
}

func TestSkippedMatchesExactSet(t *testing.T) {
	row := NewRow([]uint32{10, 20, 30})
	require.True(t, row.Skipped(20))
	require.False(t, row.Skipped(25))
	require.False(t, row.Skipped(0))
}

func TestLargeSkipSetBuildsFilterButStaysExact(t *testing.T) {
	t.Log("once a skip row crosses the xorfilter threshold, the approximate filter must not change the exact answer for any input")

	offsets := make([]uint32, 0, 1000)
	for i := uint32(0); i < 1000; i += 2 {
		offsets = append(offsets, i)
	}
	row := NewRow(offsets)

	for i := uint32(0); i < 1000; i++ {
		want := i%2 == 0
		require.Equal(t, want, row.Skipped(i), "offset %d", i)
	}
}

func TestMapAddCreatesRowOnFirstSkip(t *testing.T) {
	m := NewMap()
	require.Nil(t, m.OffsetsFor(7))

	m.Add(7, []uint32{1, 2})
	require.Equal(t, []uint32{1, 2}, m.OffsetsFor(7))

	m.Add(7, []uint32{2, 3})
	require.Equal(t, []uint32{1, 2, 3}, m.OffsetsFor(7))
}
