package diskarray

import (
	"fmt"
	"iter"
)

// GridChunks is the n-dimensional chunk grid of an array: one ChunkVector per axis.
type GridChunks []ChunkVector

// NewRegularGrid returns a grid of regular chunks of shape chunkShape over an
// array of the given shape.
func NewRegularGrid(shape, chunkShape []int) (GridChunks, error) {
	if len(shape) != len(chunkShape) {
		return nil, fmt.Errorf("%w: shape has %d dims, chunks have %d", ErrShapeMismatch, len(shape), len(chunkShape))
	}
	g := make(GridChunks, len(shape))
	for i := range shape {
		c, err := NewRegularChunks(chunkShape[i], 0, shape[i])
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", i, err)
		}
		g[i] = c
	}
	return g, nil
}

// NDims returns the number of axes.
func (g GridChunks) NDims() int { return len(g) }

// Shape returns the size of the array covered by the grid.
func (g GridChunks) Shape() []int {
	s := make([]int, len(g))
	for i, c := range g {
		s[i] = c.ArraySize()
	}
	return s
}

// GridShape returns the number of chunks along every axis.
func (g GridChunks) GridShape() []int {
	s := make([]int, len(g))
	for i, c := range g {
		s[i] = c.Len()
	}
	return s
}

// Len returns the total number of chunks.
func (g GridChunks) Len() int {
	return prod(g.GridShape())
}

// ChunkBlock returns the block covered by the chunk at coord.
func (g GridChunks) ChunkBlock(coord []int) Block {
	b := make(Block, len(g))
	for i, c := range g {
		iv := c.At(coord[i])
		b[i] = UnitRange(iv.Start, iv.Stop)
	}
	return b
}

// ChunkCoord converts a linear chunk number (C order) into a chunk coordinate.
func (g GridChunks) ChunkCoord(index int) []int {
	gs := g.GridShape()
	coord := make([]int, len(gs))
	for i := len(gs) - 1; i >= 0; i-- {
		coord[i] = index % gs[i]
		index /= gs[i]
	}
	return coord
}

// ChunkIndex converts a chunk coordinate into its linear number (C order).
func (g GridChunks) ChunkIndex(coord []int) int {
	gs := g.GridShape()
	idx := 0
	for i := range gs {
		idx = idx*gs[i] + coord[i]
	}
	return idx
}

// ValidCoord reports whether coord addresses an existing chunk.
func (g GridChunks) ValidCoord(coord []int) bool {
	if len(coord) != len(g) {
		return false
	}
	for i, c := range g {
		if coord[i] < 0 || coord[i] >= c.Len() {
			return false
		}
	}
	return true
}

// ApproxChunkSize returns the approximate chunk length along every axis.
func (g GridChunks) ApproxChunkSize() []float64 {
	s := make([]float64, len(g))
	for i, c := range g {
		s[i] = c.ApproxSize()
	}
	return s
}

// MaxChunkSize returns the largest chunk length along every axis, useful to
// preallocate a buffer that can hold any chunk.
func (g GridChunks) MaxChunkSize() []int {
	s := make([]int, len(g))
	for i, c := range g {
		s[i] = c.MaxSize()
	}
	return s
}

// GridOffset returns the offset of the first chunk along every axis.
func (g GridChunks) GridOffset() []int {
	s := make([]int, len(g))
	for i, c := range g {
		s[i] = c.Offset()
	}
	return s
}

// All iterates over every chunk coordinate and its block in C order.
func (g GridChunks) All() iter.Seq2[[]int, Block] {
	return func(yield func([]int, Block) bool) {
		it := g.Iterator()
		for {
			coord, b, ok := it.Next()
			if !ok || !yield(coord, b) {
				return
			}
		}
	}
}

// Iterator returns a ChunkIterator positioned before the first chunk.
func (g GridChunks) Iterator() *ChunkIterator {
	return &ChunkIterator{grid: g, total: g.Len()}
}

// ChunkIterator walks the chunks of a grid in C order. It is finite and can be
// restarted with Reset.
type ChunkIterator struct {
	grid  GridChunks
	pos   int
	total int
}

// Next returns the coordinate and block of the next chunk.
func (it *ChunkIterator) Next() ([]int, Block, bool) {
	if it.pos >= it.total {
		return nil, nil, false
	}
	coord := it.grid.ChunkCoord(it.pos)
	it.pos++
	return coord, it.grid.ChunkBlock(coord), true
}

// Len returns the number of chunks not yet visited.
func (it *ChunkIterator) Len() int { return it.total - it.pos }

// Reset rewinds the iterator to the first chunk.
func (it *ChunkIterator) Reset() { it.pos = 0 }

// EstimateChunks synthesizes a grid for an array that has no chunking of its
// own. Chunks are grown from the last (fastest varying) axis backwards until
// their byte size reaches cfg.ChunkBytes().
func EstimateChunks(shape []int, elemSize int, cfg *Config) GridChunks {
	if cfg == nil {
		cfg = Default()
	}
	if elemSize <= 0 {
		elemSize = cfg.FallbackElementSize()
	}
	budget := float64(cfg.ChunkBytes()) / float64(elemSize)

	cs := make([]int, len(shape))
	for i := range cs {
		cs[i] = 1
	}
	inner := 1.0
	for i := len(shape) - 1; i >= 0; i-- {
		n := max(shape[i], 1)
		if inner*float64(n) <= budget {
			cs[i] = n
			inner *= float64(n)
			continue
		}
		cs[i] = min(max(int(budget/inner), 1), n)
		break
	}

	g := make(GridChunks, len(shape))
	for i := range shape {
		g[i] = RegularChunks{ChunkSize: cs[i], Size: shape[i]}
	}
	return g
}

// cStrides computes the C-order strides of a shape.
func cStrides(shape []int) []int {
	s := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}
