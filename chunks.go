package diskarray

import (
	"fmt"
	"sort"
)

// Interval is a half-open index interval [Start, Stop).
type Interval struct {
	Start, Stop int
}

// Len returns the number of indices in the interval.
func (iv Interval) Len() int {
	if iv.Stop <= iv.Start {
		return 0
	}
	return iv.Stop - iv.Start
}

// Contains reports whether i lies inside the interval.
func (iv Interval) Contains(i int) bool {
	return i >= iv.Start && i < iv.Stop
}

// ChunkVector describes how a single array axis is split into contiguous,
// non-overlapping chunk intervals covering [0, ArraySize()).
type ChunkVector interface {
	// Len returns the number of chunks along the axis.
	Len() int
	// At returns the k-th chunk interval.
	At(k int) Interval
	// FindChunk returns the chunk that contains index i.
	FindChunk(i int) int
	// Overlapping returns the half-open span [first, last) of chunk numbers
	// whose intervals intersect [lo, hi). The span is empty when lo >= hi.
	Overlapping(lo, hi int) (first, last int)
	// ArraySize returns the length of the axis.
	ArraySize() int
	// ApproxSize is the exact chunk length for regular axes and the mean
	// chunk length for irregular ones.
	ApproxSize() float64
	// MaxSize returns the length of the largest chunk.
	MaxSize() int
	// Offset returns how far the first chunk is shifted before index 0.
	Offset() int
}

// RegularChunks splits an axis into chunks of constant size. The first chunk
// is shortened by Offset, the last one is truncated to fit the axis.
type RegularChunks struct {
	ChunkSize int
	Off       int
	Size      int
}

var _ ChunkVector = RegularChunks{}

// NewRegularChunks validates and returns a regular partition of an axis of
// length size.
func NewRegularChunks(chunkSize, offset, size int) (RegularChunks, error) {
	if chunkSize < 1 {
		return RegularChunks{}, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunks, chunkSize)
	}
	if offset < 0 || offset >= chunkSize {
		return RegularChunks{}, fmt.Errorf("%w: offset %d outside [0, %d)", ErrInvalidChunks, offset, chunkSize)
	}
	if size < 0 {
		return RegularChunks{}, fmt.Errorf("%w: negative axis size %d", ErrInvalidChunks, size)
	}
	return RegularChunks{ChunkSize: chunkSize, Off: offset, Size: size}, nil
}

func (c RegularChunks) Len() int {
	if c.Size == 0 {
		return 0
	}
	return (c.Size + c.Off + c.ChunkSize - 1) / c.ChunkSize
}

func (c RegularChunks) At(k int) Interval {
	start := k*c.ChunkSize - c.Off
	stop := start + c.ChunkSize
	return Interval{Start: max(start, 0), Stop: min(stop, c.Size)}
}

func (c RegularChunks) FindChunk(i int) int {
	return (i + c.Off) / c.ChunkSize
}

func (c RegularChunks) Overlapping(lo, hi int) (int, int) {
	lo = max(lo, 0)
	hi = min(hi, c.Size)
	if lo >= hi {
		k := min(c.FindChunk(max(lo, 0)), c.Len())
		return k, k
	}
	return c.FindChunk(lo), c.FindChunk(hi-1) + 1
}

func (c RegularChunks) ArraySize() int      { return c.Size }
func (c RegularChunks) ApproxSize() float64 { return float64(c.ChunkSize) }
func (c RegularChunks) Offset() int         { return c.Off }

func (c RegularChunks) MaxSize() int {
	n := c.Len()
	switch {
	case n == 0:
		return 0
	case n > 2:
		return c.ChunkSize
	}
	m := 0
	for k := 0; k < n; k++ {
		m = max(m, c.At(k).Len())
	}
	return m
}

// IrregularChunks splits an axis into chunks of arbitrary positive lengths.
type IrregularChunks struct {
	// offsets[k] is the first index of chunk k; offsets[Len()] is the axis size.
	offsets []int
}

var _ ChunkVector = IrregularChunks{}

// NewIrregularChunks returns a partition made of chunks with the given sizes.
func NewIrregularChunks(sizes ...int) (IrregularChunks, error) {
	offsets := make([]int, len(sizes)+1)
	for k, s := range sizes {
		if s < 1 {
			return IrregularChunks{}, fmt.Errorf("%w: chunk %d has non-positive size %d", ErrInvalidChunks, k, s)
		}
		offsets[k+1] = offsets[k] + s
	}
	return IrregularChunks{offsets: offsets}, nil
}

func (c IrregularChunks) Len() int {
	if len(c.offsets) == 0 {
		return 0
	}
	return len(c.offsets) - 1
}

func (c IrregularChunks) At(k int) Interval {
	return Interval{Start: c.offsets[k], Stop: c.offsets[k+1]}
}

func (c IrregularChunks) FindChunk(i int) int {
	return sort.SearchInts(c.offsets, i+1) - 1
}

func (c IrregularChunks) Overlapping(lo, hi int) (int, int) {
	lo = max(lo, 0)
	hi = min(hi, c.ArraySize())
	if lo >= hi {
		k := max(min(c.FindChunk(lo), c.Len()), 0)
		return k, k
	}
	return c.FindChunk(lo), c.FindChunk(hi-1) + 1
}

func (c IrregularChunks) ArraySize() int {
	if len(c.offsets) == 0 {
		return 0
	}
	return c.offsets[len(c.offsets)-1]
}

func (c IrregularChunks) ApproxSize() float64 {
	if c.Len() == 0 {
		return 0
	}
	return float64(c.ArraySize()) / float64(c.Len())
}

func (c IrregularChunks) MaxSize() int {
	m := 0
	for k := 0; k < c.Len(); k++ {
		m = max(m, c.offsets[k+1]-c.offsets[k])
	}
	return m
}

func (c IrregularChunks) Offset() int { return 0 }

// Sizes returns the length of every chunk.
func (c IrregularChunks) Sizes() []int {
	out := make([]int, c.Len())
	for k := range out {
		out[k] = c.offsets[k+1] - c.offsets[k]
	}
	return out
}
