package diskarray

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
)

// Number is the element constraint of reductions.
type Number interface {
	constraints.Integer | constraints.Float
}

// MapChunks applies f to every chunk of a, with up to the array parallelism
// chunks in flight. Chunks may complete in any order; result k belongs to the
// chunk with linear number k.
func MapChunks[T, U any](ctx context.Context, a *Array[T], f func(ctx context.Context, coord []int, chunk *Dense[T]) (U, error)) ([]U, error) {
	n := a.grid.Len()
	if a.Len() == 0 {
		n = 0
	}
	results := make([]U, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.parallelism, 1))
	for tag := 0; tag < n; tag++ {
		g.Go(func() error {
			coord := a.grid.ChunkCoord(tag)
			chunk, err := a.ReadChunk(gctx, coord...)
			if err != nil {
				return err
			}
			u, err := f(gctx, coord, chunk)
			if err != nil {
				return fmt.Errorf("chunk %v: %w", coord, err)
			}
			results[tag] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ZipChunks applies f to the matching chunks of a and b, which must have the
// same chunk grid. Chunk pairs are processed like MapChunks and result k
// belongs to the chunk with linear number k.
func ZipChunks[T, U, V any](ctx context.Context, a *Array[T], b *Array[U], f func(ctx context.Context, coord []int, x *Dense[T], y *Dense[U]) (V, error)) ([]V, error) {
	if !sameGrid(a.grid, b.grid) {
		return nil, fmt.Errorf("%w: cannot zip grids %v and %v", ErrInvalidChunks, a.grid.GridShape(), b.grid.GridShape())
	}
	return MapChunks(ctx, a, func(ctx context.Context, coord []int, x *Dense[T]) (V, error) {
		y, err := b.ReadChunk(ctx, coord...)
		if err != nil {
			var zero V
			return zero, err
		}
		return f(ctx, coord, x, y)
	})
}

func sameGrid(g, h GridChunks) bool {
	if !slices.Equal(g.Shape(), h.Shape()) || !slices.Equal(g.GridShape(), h.GridShape()) {
		return false
	}
	for i := range g {
		for k := 0; k < g[i].Len(); k++ {
			if g[i].At(k) != h[i].At(k) {
				return false
			}
		}
	}
	return true
}

// SumDims sums a over the given axes, which keep length one in the result.
// Without axes the whole array is summed. Data is read one chunk at a time.
func SumDims[T Number](ctx context.Context, a *Array[T], dims ...int) (*Dense[T], error) {
	reduced := make([]bool, a.NDims())
	if len(dims) == 0 {
		for i := range reduced {
			reduced[i] = true
		}
	}
	for _, d := range dims {
		if d < 0 || d >= a.NDims() {
			return nil, fmt.Errorf("%w: axis %d of %d", ErrOutOfBounds, d, a.NDims())
		}
		reduced[d] = true
	}

	partials, err := MapChunks(ctx, a, func(_ context.Context, _ []int, chunk *Dense[T]) (*Dense[T], error) {
		return sumChunk(chunk, reduced), nil
	})
	if err != nil {
		return nil, err
	}

	out := NewDense[T](reducedShape(a.shape, reduced)...)
	for tag, p := range partials {
		b := a.grid.ChunkBlock(a.grid.ChunkCoord(tag))
		start := make([]int, len(b))
		for i, r := range b {
			if !reduced[i] {
				start[i] = r.Start
			}
		}
		addInto(out, p, start)
	}
	return out, nil
}

func reducedShape(shape []int, reduced []bool) []int {
	s := slices.Clone(shape)
	for i := range s {
		if reduced[i] {
			s[i] = 1
		}
	}
	return s
}

// sumChunk sums a chunk over the reduced axes.
func sumChunk[T Number](chunk *Dense[T], reduced []bool) *Dense[T] {
	out := NewDense[T](reducedShape(chunk.Shape, reduced)...)
	outStrides := cStrides(out.Shape)
	pos := make([]int, len(chunk.Shape))
	for _, v := range chunk.Data {
		o := 0
		for i, p := range pos {
			if !reduced[i] {
				o += p * outStrides[i]
			}
		}
		out.Data[o] += v
		for i := len(pos) - 1; i >= 0; i-- {
			pos[i]++
			if pos[i] < chunk.Shape[i] {
				break
			}
			pos[i] = 0
		}
	}
	return out
}

// addInto adds p to the region of out starting at start.
func addInto[T Number](out, p *Dense[T], start []int) {
	outStrides := cStrides(out.Shape)
	pos := make([]int, len(p.Shape))
	for _, v := range p.Data {
		o := 0
		for i, q := range pos {
			o += (start[i] + q) * outStrides[i]
		}
		out.Data[o] += v
		for i := len(pos) - 1; i >= 0; i-- {
			pos[i]++
			if pos[i] < p.Shape[i] {
				break
			}
			pos[i] = 0
		}
	}
}
