package diskarray_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	diskarray "github.com/TuSKan/go-diskarray"
	"github.com/TuSKan/go-diskarray/disktest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// indexCase reads from a 4x6 array holding 6*i+j at (i, j).
type indexCase struct {
	name  string
	idx   func(t *testing.T) []diskarray.Index
	shape []int
	want  []int64
	// dup marks selections that address an element twice and cannot be written.
	dup bool
}

func fixed(idx ...diskarray.Index) func(*testing.T) []diskarray.Index {
	return func(*testing.T) []diskarray.Index { return idx }
}

var indexCases = []indexCase{
	{
		name:  "full",
		idx:   fixed(),
		shape: []int{4, 6},
		want:  disktest.Range[int64](24),
	},
	{
		name:  "spans",
		idx:   fixed(diskarray.Span(1, 3), diskarray.Span(2, 5)),
		shape: []int{2, 3},
		want:  []int64{8, 9, 10, 14, 15, 16},
	},
	{
		name:  "row",
		idx:   fixed(diskarray.At(2), diskarray.All()),
		shape: []int{6},
		want:  []int64{12, 13, 14, 15, 16, 17},
	},
	{
		name:  "column",
		idx:   fixed(diskarray.All(), diskarray.At(5)),
		shape: []int{4},
		want:  []int64{5, 11, 17, 23},
	},
	{
		name:  "element",
		idx:   fixed(diskarray.At(3), diskarray.At(4)),
		shape: nil,
		want:  []int64{22},
	},
	{
		name:  "steps",
		idx:   fixed(diskarray.Step(0, 4, 2), diskarray.Step(1, 6, 2)),
		shape: []int{2, 3},
		want:  []int64{1, 3, 5, 13, 15, 17},
	},
	{
		name:  "ints with duplicates",
		idx:   fixed(diskarray.Ints(3, 0, 0), diskarray.Span(0, 2)),
		shape: []int{3, 2},
		want:  []int64{18, 19, 0, 1, 0, 1},
		dup:   true,
	},
	{
		name:  "mask and ints",
		idx:   fixed(diskarray.Mask(true, false, false, true), diskarray.Ints(5, 1)),
		shape: []int{2, 2},
		want:  []int64{5, 1, 23, 19},
	},
	{
		name:  "coords",
		idx:   fixed(diskarray.Coords(2, []int{3, 5}, []int{0, 0}, []int{1, 4})),
		shape: []int{3},
		want:  []int64{23, 0, 10},
	},
	{
		name:  "linear",
		idx:   fixed(diskarray.Linear(7, 0, 23)),
		shape: []int{3},
		want:  []int64{7, 0, 23},
	},
	{
		name:  "linear on last axis",
		idx:   fixed(diskarray.At(1), diskarray.Linear(2, 5)),
		shape: []int{2},
		want:  []int64{8, 11},
	},
	{
		name: "n-d mask",
		idx: func(t *testing.T) []diskarray.Index {
			mask := make([]bool, 24)
			mask[1*6+1] = true
			mask[2*6+4] = true
			ix, err := diskarray.MaskND([]int{4, 6}, mask)
			require.NoError(t, err)
			return []diskarray.Index{ix}
		},
		shape: []int{2},
		want:  []int64{7, 16},
	},
	{
		name:  "bitmap",
		idx:   fixed(diskarray.Bitmap(roaring.BitmapOf(3, 0)), diskarray.At(2)),
		shape: []int{2},
		want:  []int64{2, 20},
	},
	{
		name:  "empty",
		idx:   fixed(diskarray.Span(2, 2), diskarray.All()),
		shape: []int{0, 6},
		want:  []int64{},
	},
}

type arrayLayout struct {
	name string
	opts func(t *testing.T) []disktest.Option
}

var layouts = []arrayLayout{
	{"unchunked", func(*testing.T) []disktest.Option { return nil }},
	{"regular", func(*testing.T) []disktest.Option { return []disktest.Option{disktest.WithChunks(2, 4)} }},
	{"irregular", func(t *testing.T) []disktest.Option {
		rows, err := diskarray.NewIrregularChunks(1, 3)
		require.NoError(t, err)
		cols, err := diskarray.NewIrregularChunks(4, 2)
		require.NoError(t, err)
		return []disktest.Option{disktest.WithGrid(diskarray.GridChunks{rows, cols})}
	}},
	{"tiny", func(*testing.T) []disktest.Option { return []disktest.Option{disktest.WithChunks(1, 1)} }},
}

var strategies = []diskarray.BatchStrategy{
	diskarray.DefaultStrategy(),
	{Kind: diskarray.SubRanges, DensityThreshold: diskarray.DefaultDensityThreshold},
	{Kind: diskarray.NoBatch},
}

func TestArray_Get(t *testing.T) {
	ctx := context.Background()
	for _, layout := range layouts {
		for _, strategy := range strategies {
			for _, par := range []int{1, 4} {
				name := fmt.Sprintf("%s/%s/par=%d", layout.name, strategy.Kind, par)
				t.Run(name, func(t *testing.T) {
					mem := rangeMemory(t, []int{4, 6}, layout.opts(t)...)
					arr, err := diskarray.New[int64](mem, diskarray.WithStrategy(strategy), diskarray.WithParallelism(par))
					require.NoError(t, err)

					for _, tc := range indexCases {
						got, err := arr.Get(ctx, tc.idx(t)...)
						require.NoError(t, err, tc.name)
						require.Equal(t, len(tc.shape), len(got.Shape), tc.name)
						if len(tc.shape) > 0 {
							require.Equal(t, tc.shape, got.Shape, tc.name)
						}
						require.Equal(t, tc.want, got.Data, tc.name)
					}
				})
			}
		}
	}
}

func TestArray_SetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, layout := range layouts {
		for _, strategy := range strategies {
			t.Run(layout.name+"/"+strategy.Kind.String(), func(t *testing.T) {
				for _, tc := range indexCases {
					if tc.dup {
						continue
					}
					mem := rangeMemory(t, []int{4, 6}, layout.opts(t)...)
					arr, err := diskarray.New[int64](mem, diskarray.WithStrategy(strategy), diskarray.WithParallelism(2))
					require.NoError(t, err)

					v := diskarray.NewDense[int64](tc.shape...)
					for i := range v.Data {
						v.Data[i] = int64(-100 - i)
					}
					idx := tc.idx(t)
					require.NoError(t, arr.Set(ctx, v, idx...), tc.name)

					got, err := arr.Get(ctx, idx...)
					require.NoError(t, err, tc.name)
					require.Equal(t, v.Data, got.Data, tc.name)

					// Everything outside the selection is untouched.
					changed := 0
					for i, x := range mem.Data() {
						if x != int64(i) {
							changed++
						}
					}
					require.Equal(t, len(tc.want), changed, tc.name)
				}
			})
		}
	}
}

func TestArray_SetShape(t *testing.T) {
	ctx := context.Background()
	mem := rangeMemory(t, []int{4, 6}, disktest.WithChunks(2, 4))
	arr, err := diskarray.New[int64](mem)
	require.NoError(t, err)

	err = arr.Set(ctx, diskarray.NewDense[int64](2, 2))
	require.ErrorIs(t, err, diskarray.ErrShapeMismatch)
	err = arr.Set(ctx, diskarray.NewDense[int64](6, 4))
	require.ErrorIs(t, err, diskarray.ErrShapeMismatch)

	// Singleton dimensions are ignored.
	row, err := diskarray.FromSlice([]int64{1, 1, 1, 1, 1, 1}, 1, 6)
	require.NoError(t, err)
	require.NoError(t, arr.Set(ctx, row, diskarray.At(0), diskarray.All()))
	got, err := arr.Get(ctx, diskarray.At(0))
	require.NoError(t, err)
	require.Equal(t, row.Data, got.Data)
}

func TestArray_SetSlice(t *testing.T) {
	ctx := context.Background()
	mem := rangeMemory(t, []int{3, 4}, disktest.WithChunks(2, 2))
	arr, err := diskarray.New[int64](mem)
	require.NoError(t, err)

	require.NoError(t, arr.SetSlice(ctx, []int64{-1, -2, -3, -4}, diskarray.Ints(2, 0), diskarray.Span(1, 3)))
	require.Equal(t, []int64{0, -3, -4, 3, 4, 5, 6, 7, 8, -1, -2, 11}, mem.Data())

	err = arr.SetSlice(ctx, []int64{1, 2, 3}, diskarray.At(0))
	require.ErrorIs(t, err, diskarray.ErrShapeMismatch)
}

func TestArray_Fill(t *testing.T) {
	ctx := context.Background()
	mem := rangeMemory(t, []int{3, 3})
	arr, err := diskarray.New[int64](mem)
	require.NoError(t, err)

	require.NoError(t, arr.Fill(ctx, 0, diskarray.Ints(0, 2), diskarray.Span(1, 3)))
	require.Equal(t, []int64{0, 0, 0, 3, 4, 5, 6, 0, 0}, mem.Data())

	require.NoError(t, arr.Fill(ctx, 9))
	require.Equal(t, []int64{9, 9, 9, 9, 9, 9, 9, 9, 9}, mem.Data())
}

func TestArray_Chunks(t *testing.T) {
	ctx := context.Background()
	mem := rangeMemory(t, []int{4, 6}, disktest.WithChunks(2, 4))
	arr, err := diskarray.New[int64](mem)
	require.NoError(t, err)

	require.Equal(t, []int{4, 6}, arr.Shape())
	require.Equal(t, 2, arr.NDims())
	require.Equal(t, 24, arr.Len())
	require.True(t, arr.Capabilities().Chunked)
	require.Equal(t, 8, arr.Capabilities().ElementSize)
	require.Same(t, mem, arr.Backend())

	chunk, err := arr.ReadChunk(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, chunk.Shape)
	require.Equal(t, []int64{16, 17, 22, 23}, chunk.Data)
	require.Equal(t, int64(22), chunk.At(1, 0))

	_, err = arr.ReadChunk(ctx, 2, 0)
	require.ErrorIs(t, err, diskarray.ErrOutOfBounds)
	_, err = arr.ReadChunk(ctx, 0)
	require.ErrorIs(t, err, diskarray.ErrOutOfBounds)

	chunk.Set(-1, 0, 0)
	require.NoError(t, arr.WriteChunk(ctx, chunk, 1, 1))
	require.Equal(t, int64(-1), mem.Data()[2*6+4])

	it := arr.EachChunk()
	n := 0
	for {
		coord, b, ok := it.Next()
		if !ok {
			break
		}
		c, err := arr.ReadChunk(ctx, coord...)
		require.NoError(t, err)
		require.Equal(t, b.Shape(), c.Shape)
		n++
	}
	require.Equal(t, 4, n)
}

func TestArray_New(t *testing.T) {
	mem := rangeMemory(t, []int{4, 6}, disktest.WithChunks(2, 4))

	wrong, err := diskarray.NewRegularGrid([]int{4, 5}, []int{2, 2})
	require.NoError(t, err)
	_, err = diskarray.New[int64](mem, diskarray.WithChunks(wrong))
	require.ErrorIs(t, err, diskarray.ErrInvalidChunks)

	// An explicit grid overrides the backend chunking.
	g, err := diskarray.NewRegularGrid([]int{4, 6}, []int{4, 3})
	require.NoError(t, err)
	arr, err := diskarray.New[int64](mem, diskarray.WithChunks(g), diskarray.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, arr.Chunks().GridShape())

	// Unchunked backends get a synthesized grid.
	cfg := diskarray.NewConfig()
	cfg.SetChunkBytes(8 * 6)
	arr, err = diskarray.New[int64](rangeMemory(t, []int{4, 6}), diskarray.WithConfig(cfg))
	require.NoError(t, err)
	require.False(t, arr.Capabilities().Chunked)
	require.Equal(t, []int{4, 1}, arr.Chunks().GridShape())
}

func TestArray_BackendErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for _, par := range []int{1, 4} {
		mem := rangeMemory(t, []int{200}, disktest.WithChunks(50))
		arr, err := diskarray.New[int64](mem, diskarray.WithParallelism(par))
		require.NoError(t, err)

		mem.Fail(boom)
		_, err = arr.Get(ctx, diskarray.Ints(0, 60, 120, 199))
		require.ErrorIs(t, err, boom)
		err = arr.Fill(ctx, 1, diskarray.Ints(0, 60))
		require.ErrorIs(t, err, boom)

		mem.Fail(nil)
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		if par > 1 {
			_, err = arr.Get(canceled, diskarray.Ints(0, 60, 120, 199))
			require.ErrorIs(t, err, context.Canceled)
		}
	}

	ro := rangeMemory(t, []int{4}, disktest.ReadOnly())
	arr, err := diskarray.New[int64](ro)
	require.NoError(t, err)
	require.ErrorIs(t, arr.Fill(ctx, 1), diskarray.ErrReadOnly)
}

func TestDense(t *testing.T) {
	d := diskarray.NewDense[float32](2, 3)
	require.Equal(t, 6, d.Len())
	require.Equal(t, 2, d.NDims())
	d.Set(5, 1, 2)
	require.Equal(t, float32(5), d.At(1, 2))
	require.Equal(t, float32(5), d.Data[5])
	require.Panics(t, func() { d.At(2, 0) })
	require.Panics(t, func() { d.At(0) })

	_, err := diskarray.FromSlice([]float32{1, 2, 3}, 2, 2)
	require.ErrorIs(t, err, diskarray.ErrShapeMismatch)
}
