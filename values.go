package diskarray

import (
	"context"
	"fmt"
	"iter"
)

// ValueIterator walks the elements of an array while holding one chunk in
// memory. Chunks are visited in grid C order and elements in C order inside
// each chunk, so every chunk is read exactly once per pass.
type ValueIterator[T any] struct {
	a      *Array[T]
	chunks *ChunkIterator
	block  Block
	chunk  *Dense[T]
	pos    int
	err    error
}

// Values returns a ValueIterator positioned before the first element.
func (a *Array[T]) Values() *ValueIterator[T] {
	it := &ValueIterator[T]{a: a, chunks: a.grid.Iterator()}
	if a.Len() == 0 {
		it.chunks.pos = it.chunks.total
	}
	return it
}

// Next returns the coordinate and value of the next element. It returns false
// when the array is exhausted or a chunk read failed; see Err.
func (it *ValueIterator[T]) Next(ctx context.Context) ([]int, T, bool) {
	var zero T
	if it.err != nil {
		return nil, zero, false
	}
	for it.chunk == nil || it.pos >= it.chunk.Len() {
		coord, b, ok := it.chunks.Next()
		if !ok {
			it.chunk = nil
			return nil, zero, false
		}
		chunk, err := it.a.ReadChunk(ctx, coord...)
		if err != nil {
			it.err = fmt.Errorf("failed to read chunk %v: %w", coord, err)
			return nil, zero, false
		}
		it.block, it.chunk, it.pos = b, chunk, 0
	}

	coord := make([]int, len(it.block))
	rem := it.pos
	for i := len(it.block) - 1; i >= 0; i-- {
		n := it.block[i].Len()
		coord[i] = it.block[i].Start + rem%n
		rem /= n
	}
	v := it.chunk.Data[it.pos]
	it.pos++
	return coord, v, true
}

// Err returns the error that stopped the iteration, if any.
func (it *ValueIterator[T]) Err() error { return it.err }

// Reset rewinds the iterator to the first element and clears any error.
func (it *ValueIterator[T]) Reset() {
	it.chunks.Reset()
	if it.a.Len() == 0 {
		it.chunks.pos = it.chunks.total
	}
	it.block, it.chunk, it.pos, it.err = nil, nil, 0, nil
}

// All adapts the iterator to a range-over-func sequence. Check Err after the
// loop.
func (it *ValueIterator[T]) All(ctx context.Context) iter.Seq2[[]int, T] {
	return func(yield func([]int, T) bool) {
		for {
			coord, v, ok := it.Next(ctx)
			if !ok || !yield(coord, v) {
				return
			}
		}
	}
}
