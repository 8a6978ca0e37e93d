package disktest_test

import (
	"context"
	"errors"
	"testing"

	diskarray "github.com/TuSKan/go-diskarray"
	"github.com/TuSKan/go-diskarray/disktest"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	mem, err := disktest.FromSlice(disktest.Range[int32](12), []int{3, 4}, disktest.WithChunks(2, 2))
	require.NoError(t, err)
	require.Equal(t, []int{3, 4}, mem.Shape())
	require.Equal(t, []int{2, 2}, mem.Chunks().GridShape())
	require.True(t, mem.Capabilities().Chunked)
	require.False(t, mem.Capabilities().StepRange)

	out := make([]int32, 4)
	blk := diskarray.Block{diskarray.UnitRange(1, 3), diskarray.UnitRange(2, 4)}
	require.NoError(t, mem.ReadBlock(ctx, blk, out))
	require.Equal(t, []int32{6, 7, 10, 11}, out)

	require.NoError(t, mem.WriteBlock(ctx, blk, []int32{-1, -2, -3, -4}))
	require.Equal(t, []int32{0, 1, 2, 3, 4, 5, -1, -2, 8, 9, -3, -4}, mem.Data())

	require.Equal(t, 1, mem.ReadCount())
	require.Equal(t, 1, mem.WriteCount())
	require.Equal(t, 4, mem.ReadElements())
	require.Equal(t, []diskarray.Block{blk}, mem.ReadBlocks())
	require.Equal(t, []diskarray.Block{blk}, mem.WriteBlocks())

	mem.Reset()
	require.Zero(t, mem.ReadCount())
	require.Empty(t, mem.WriteBlocks())
}

func TestMemory_Checks(t *testing.T) {
	ctx := context.Background()
	mem, err := disktest.NewMemory[float64]([]int{4})
	require.NoError(t, err)
	require.Nil(t, mem.Chunks())
	require.False(t, mem.Capabilities().Chunked)

	err = mem.ReadBlock(ctx, diskarray.Block{diskarray.UnitRange(2, 5)}, make([]float64, 3))
	require.ErrorIs(t, err, diskarray.ErrOutOfBounds)
	err = mem.ReadBlock(ctx, diskarray.Block{diskarray.UnitRange(0, 2)}, make([]float64, 3))
	require.ErrorIs(t, err, diskarray.ErrShapeMismatch)
	err = mem.ReadBlock(ctx, diskarray.Block{diskarray.UnitRange(0, 2), diskarray.UnitRange(0, 1)}, make([]float64, 2))
	require.ErrorIs(t, err, diskarray.ErrShapeMismatch)
	require.Error(t, mem.ReadBlock(ctx, diskarray.Block{diskarray.UnitRange(1, 1)}, nil))
	require.Error(t, mem.ReadBlock(ctx, diskarray.Block{{Start: 0, Stop: 4, Step: 2}}, make([]float64, 2)))

	boom := errors.New("boom")
	mem.Fail(boom)
	require.ErrorIs(t, mem.ReadBlock(ctx, diskarray.Block{diskarray.UnitRange(0, 1)}, make([]float64, 1)), boom)
	mem.Fail(nil)
	require.NoError(t, mem.ReadBlock(ctx, diskarray.Block{diskarray.UnitRange(0, 1)}, make([]float64, 1)))
}

func TestMemory_Options(t *testing.T) {
	ctx := context.Background()
	mem, err := disktest.FromSlice(disktest.Range[int64](10), []int{10}, disktest.WithStepRange(), disktest.ReadOnly())
	require.NoError(t, err)
	require.True(t, mem.Capabilities().StepRange)

	out := make([]int64, 3)
	require.NoError(t, mem.ReadBlock(ctx, diskarray.Block{{Start: 1, Stop: 10, Step: 3}}, out))
	require.Equal(t, []int64{1, 4, 7}, out)
	require.ErrorIs(t, mem.WriteBlock(ctx, diskarray.Block{diskarray.UnitRange(0, 1)}, []int64{1}), diskarray.ErrReadOnly)

	_, err = disktest.FromSlice([]int64{1, 2, 3}, []int{2, 2})
	require.ErrorIs(t, err, diskarray.ErrShapeMismatch)

	g, err := diskarray.NewRegularGrid([]int{5}, []int{2})
	require.NoError(t, err)
	_, err = disktest.NewMemory[int64]([]int{4}, disktest.WithGrid(g))
	require.ErrorIs(t, err, diskarray.ErrInvalidChunks)
	_, err = disktest.NewMemory[int64]([]int{4}, disktest.WithChunks(0))
	require.ErrorIs(t, err, diskarray.ErrInvalidChunks)
}
