package density

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullKeepsEverything(t *testing.T) {
	exps := []int{4, 5, 6}
	got := GenerateExps(Full{}, exps)
	require.Equal(t, exps, got)
	require.Equal(t, 3, Full{}.Count(3))
	_, sparse := Full{}.Len()
	require.False(t, sparse)
}

func TestBitsFiltersInOrder(t *testing.T) {
	d := FromBools([]bool{true, false, false, true, true, false})
	got := GenerateExps(d, []string{"a", "b", "c", "d", "e", "f"})
	require.Equal(t, []string{"a", "d", "e"}, got)
	require.Equal(t, 3, d.Count(6))

	d.Clear(3)
	d.Set(1)
	require.Equal(t, []string{"a", "b", "e"}, Compact(d, []string{"a", "b", "c", "d", "e", "f"}))
}

func TestBitsAdd(t *testing.T) {
	var d Bits
	for _, v := range []bool{false, true, true, false} {
		d.Add(v)
	}
	n, ok := d.Len()
	require.True(t, ok)
	require.Equal(t, 4, n)
	require.Equal(t, 2, d.Count(4))
	require.Equal(t, []int{1, 2}, GenerateExps(&d, []int{0, 1, 2, 3}))
}

func TestEmptyBits(t *testing.T) {
	var d Bits
	require.Empty(t, GenerateExps(&d, []int{}))
	require.False(t, d.Test(0))
}

func TestLengthMismatchPanics(t *testing.T) {
	d := NewBits(4)
	require.Panics(t, func() { GenerateExps(d, []int{1, 2, 3}) })
	require.Panics(t, func() { d.Set(4) })
}
