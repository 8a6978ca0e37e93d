package diskarray_test

import (
	"context"
	"errors"
	"testing"

	diskarray "github.com/TuSKan/go-diskarray"
	"github.com/TuSKan/go-diskarray/disktest"
	"github.com/stretchr/testify/require"
)

func TestSumDims(t *testing.T) {
	ctx := context.Background()
	mem := rangeMemory(t, []int{6, 4}, disktest.WithChunks(2, 2))
	arr, err := diskarray.New[int64](mem, diskarray.WithParallelism(3))
	require.NoError(t, err)

	tests := []struct {
		name  string
		dims  []int
		shape []int
		want  []int64
	}{
		{"rows", []int{0}, []int{1, 4}, []int64{60, 66, 72, 78}},
		{"columns", []int{1}, []int{6, 1}, []int64{6, 22, 38, 54, 70, 86}},
		{"all", nil, []int{1, 1}, []int64{276}},
		{"both", []int{0, 1}, []int{1, 1}, []int64{276}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem.Reset()
			got, err := diskarray.SumDims(ctx, arr, tt.dims...)
			require.NoError(t, err)
			require.Equal(t, tt.shape, got.Shape)
			require.Equal(t, tt.want, got.Data)
			// Every chunk is read exactly once.
			require.Equal(t, 6, mem.ReadCount())
			require.Equal(t, 24, mem.ReadElements())
		})
	}

	_, err = diskarray.SumDims(ctx, arr, 2)
	require.ErrorIs(t, err, diskarray.ErrOutOfBounds)
}

func TestSumDims_Float(t *testing.T) {
	mem, err := disktest.FromSlice([]float64{0.5, 1.5, 2, 4}, []int{4}, disktest.WithChunks(3))
	require.NoError(t, err)
	arr, err := diskarray.New[float64](mem)
	require.NoError(t, err)

	got, err := diskarray.SumDims(context.Background(), arr)
	require.NoError(t, err)
	require.Equal(t, []float64{8}, got.Data)
}

func TestSumDims_Empty(t *testing.T) {
	mem, err := disktest.NewMemory[int32]([]int{0, 4}, disktest.WithChunks(2, 2))
	require.NoError(t, err)
	arr, err := diskarray.New[int32](mem)
	require.NoError(t, err)

	got, err := diskarray.SumDims(context.Background(), arr, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 4}, got.Shape)
	require.Equal(t, []int32{0, 0, 0, 0}, got.Data)
	require.Zero(t, mem.ReadCount())
}

func TestMapChunks(t *testing.T) {
	ctx := context.Background()
	mem := rangeMemory(t, []int{5, 4}, disktest.WithChunks(2, 3))
	arr, err := diskarray.New[int64](mem, diskarray.WithParallelism(4))
	require.NoError(t, err)

	type result struct {
		coord []int
		first int64
		n     int
	}
	results, err := diskarray.MapChunks(ctx, arr, func(_ context.Context, coord []int, chunk *diskarray.Dense[int64]) (result, error) {
		return result{coord: coord, first: chunk.Data[0], n: chunk.Len()}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []result{
		{[]int{0, 0}, 0, 6},
		{[]int{0, 1}, 3, 2},
		{[]int{1, 0}, 8, 6},
		{[]int{1, 1}, 11, 2},
		{[]int{2, 0}, 16, 3},
		{[]int{2, 1}, 19, 1},
	}, results)

	boom := errors.New("boom")
	_, err = diskarray.MapChunks(ctx, arr, func(_ context.Context, coord []int, _ *diskarray.Dense[int64]) (int, error) {
		if coord[0] == 2 {
			return 0, boom
		}
		return 0, nil
	})
	require.ErrorIs(t, err, boom)
}

func TestZipChunks(t *testing.T) {
	ctx := context.Background()
	xs := rangeMemory(t, []int{5, 4}, disktest.WithChunks(2, 3))
	ys, err := disktest.FromSlice(disktest.Range[float64](20), []int{5, 4}, disktest.WithChunks(2, 3))
	require.NoError(t, err)
	a, err := diskarray.New[int64](xs, diskarray.WithParallelism(3))
	require.NoError(t, err)
	b, err := diskarray.New[float64](ys)
	require.NoError(t, err)

	sums, err := diskarray.ZipChunks(ctx, a, b, func(_ context.Context, _ []int, x *diskarray.Dense[int64], y *diskarray.Dense[float64]) (float64, error) {
		var s float64
		for i := range x.Data {
			s += float64(x.Data[i]) * y.Data[i]
		}
		return s, nil
	})
	require.NoError(t, err)
	require.Equal(t, []float64{0 + 1 + 4 + 16 + 25 + 36, 9 + 49, 64 + 81 + 100 + 144 + 169 + 196, 121 + 225, 256 + 289 + 324, 361}, sums)
	require.Equal(t, 6, xs.ReadCount())
	require.Equal(t, 6, ys.ReadCount())

	other := rangeMemory(t, []int{5, 4}, disktest.WithChunks(5, 2))
	c, err := diskarray.New[int64](other)
	require.NoError(t, err)
	_, err = diskarray.ZipChunks(ctx, a, c, func(context.Context, []int, *diskarray.Dense[int64], *diskarray.Dense[int64]) (int, error) {
		return 0, nil
	})
	require.ErrorIs(t, err, diskarray.ErrInvalidChunks)
	require.Zero(t, other.ReadCount())
}
