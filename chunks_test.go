package diskarray_test

import (
	"testing"

	diskarray "github.com/TuSKan/go-diskarray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegularChunks(t *testing.T) {
	c, err := diskarray.NewRegularChunks(5, 0, 12)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, diskarray.Interval{Start: 10, Stop: 12}, c.At(2))
	assert.Equal(t, 1, c.FindChunk(7))
	assert.Equal(t, 5, c.MaxSize())
	assert.Equal(t, 5.0, c.ApproxSize())
	assert.Equal(t, 12, c.ArraySize())

	first, last := c.Overlapping(3, 11)
	assert.Equal(t, []int{0, 3}, []int{first, last})
	first, last = c.Overlapping(5, 10)
	assert.Equal(t, []int{1, 2}, []int{first, last})
	first, last = c.Overlapping(5, 5)
	assert.Equal(t, first, last)
}

func TestRegularChunks_Offset(t *testing.T) {
	c, err := diskarray.NewRegularChunks(5, 2, 12)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, diskarray.Interval{Start: 0, Stop: 3}, c.At(0))
	assert.Equal(t, diskarray.Interval{Start: 3, Stop: 8}, c.At(1))
	assert.Equal(t, diskarray.Interval{Start: 8, Stop: 12}, c.At(2))
	assert.Equal(t, 0, c.FindChunk(2))
	assert.Equal(t, 1, c.FindChunk(3))
	assert.Equal(t, 2, c.Offset())

	// Chunks partition the axis.
	covered := 0
	for k := 0; k < c.Len(); k++ {
		iv := c.At(k)
		assert.Equal(t, covered, iv.Start)
		covered = iv.Stop
	}
	assert.Equal(t, c.ArraySize(), covered)
}

func TestRegularChunks_Small(t *testing.T) {
	c, err := diskarray.NewRegularChunks(10, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 4, c.MaxSize())

	empty, err := diskarray.NewRegularChunks(10, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
	assert.Zero(t, empty.MaxSize())
}

func TestRegularChunks_Invalid(t *testing.T) {
	for _, args := range [][3]int{{0, 0, 10}, {5, 5, 10}, {5, -1, 10}, {5, 0, -1}} {
		_, err := diskarray.NewRegularChunks(args[0], args[1], args[2])
		require.ErrorIs(t, err, diskarray.ErrInvalidChunks, "%v", args)
	}
}

func TestIrregularChunks(t *testing.T) {
	c, err := diskarray.NewIrregularChunks(3, 1, 4)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 8, c.ArraySize())
	assert.Equal(t, []int{3, 1, 4}, c.Sizes())
	assert.Equal(t, diskarray.Interval{Start: 3, Stop: 4}, c.At(1))
	assert.InDelta(t, 8.0/3, c.ApproxSize(), 1e-12)
	assert.Equal(t, 4, c.MaxSize())
	assert.Zero(t, c.Offset())

	for i, want := range []int{0, 0, 0, 1, 2, 2, 2, 2} {
		assert.Equal(t, want, c.FindChunk(i), "index %d", i)
	}
	first, last := c.Overlapping(2, 5)
	assert.Equal(t, []int{0, 3}, []int{first, last})
	first, last = c.Overlapping(3, 4)
	assert.Equal(t, []int{1, 2}, []int{first, last})

	_, err = diskarray.NewIrregularChunks(2, 0)
	require.ErrorIs(t, err, diskarray.ErrInvalidChunks)
}

func TestInterval(t *testing.T) {
	iv := diskarray.Interval{Start: 2, Stop: 5}
	assert.Equal(t, 3, iv.Len())
	assert.True(t, iv.Contains(2))
	assert.False(t, iv.Contains(5))
	assert.Zero(t, diskarray.Interval{Start: 4, Stop: 1}.Len())
}
