// Package disktest provides in-memory backends for testing code built on
// diskarray.
package disktest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	diskarray "github.com/TuSKan/go-diskarray"
)

// Memory is an in-memory Backend that records every block operation.
type Memory[T any] struct {
	shape     []int
	grid      diskarray.GridChunks
	stepRange bool
	readOnly  bool

	mu           sync.Mutex
	data         []T
	fail         error
	reads        int
	writes       int
	readElements int
	readBlocks   []diskarray.Block
	writeBlocks  []diskarray.Block
}

var (
	_ diskarray.Backend[int]       = (*Memory[int])(nil)
	_ diskarray.Chunker            = (*Memory[int])(nil)
	_ diskarray.CapabilityReporter = (*Memory[int])(nil)
)

// Option configures a Memory backend.
type Option func(*memoryOptions) error

type memoryOptions struct {
	chunkShape []int
	grid       diskarray.GridChunks
	stepRange  bool
	readOnly   bool
}

// WithChunks gives the backend a regular chunk grid.
func WithChunks(chunkShape ...int) Option {
	return func(o *memoryOptions) error {
		o.chunkShape = chunkShape
		return nil
	}
}

// WithGrid gives the backend an arbitrary chunk grid.
func WithGrid(g diskarray.GridChunks) Option {
	return func(o *memoryOptions) error {
		o.grid = g
		return nil
	}
}

// WithStepRange makes the backend accept strided blocks.
func WithStepRange() Option {
	return func(o *memoryOptions) error {
		o.stepRange = true
		return nil
	}
}

// ReadOnly makes WriteBlock fail with diskarray.ErrReadOnly.
func ReadOnly() Option {
	return func(o *memoryOptions) error {
		o.readOnly = true
		return nil
	}
}

// NewMemory returns a zero-filled backend of the given shape.
func NewMemory[T any](shape []int, opts ...Option) (*Memory[T], error) {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return FromSlice(make([]T, n), shape, opts...)
}

// FromSlice returns a backend holding data, laid out in C order with the
// given shape. The backend owns data afterwards.
func FromSlice[T any](data []T, shape []int, opts ...Option) (*Memory[T], error) {
	var o memoryOptions
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d elements for shape %v", diskarray.ErrShapeMismatch, len(data), shape)
	}

	m := &Memory[T]{
		shape:     slices.Clone(shape),
		grid:      o.grid,
		stepRange: o.stepRange,
		readOnly:  o.readOnly,
		data:      data,
	}
	if o.chunkShape != nil {
		g, err := diskarray.NewRegularGrid(shape, o.chunkShape)
		if err != nil {
			return nil, err
		}
		m.grid = g
	}
	if m.grid != nil && !slices.Equal(m.grid.Shape(), shape) {
		return nil, fmt.Errorf("%w: grid covers %v, shape is %v", diskarray.ErrInvalidChunks, m.grid.Shape(), shape)
	}
	return m, nil
}

// Shape returns the array shape.
func (m *Memory[T]) Shape() []int { return slices.Clone(m.shape) }

// Chunks returns the chunk grid, nil for an unchunked backend.
func (m *Memory[T]) Chunks() diskarray.GridChunks { return m.grid }

// Capabilities reports the configured capabilities.
func (m *Memory[T]) Capabilities() diskarray.Capabilities {
	return diskarray.Capabilities{Chunked: m.grid != nil, StepRange: m.stepRange}
}

// ReadBlock copies the block into out.
func (m *Memory[T]) ReadBlock(_ context.Context, b diskarray.Block, out []T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(b, len(out)); err != nil {
		return err
	}
	m.reads++
	m.readElements += len(out)
	m.readBlocks = append(m.readBlocks, slices.Clone(b))
	i := 0
	m.walk(b, func(off int) {
		out[i] = m.data[off]
		i++
	})
	return nil
}

// WriteBlock copies in into the block.
func (m *Memory[T]) WriteBlock(_ context.Context, b diskarray.Block, in []T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return diskarray.ErrReadOnly
	}
	if err := m.check(b, len(in)); err != nil {
		return err
	}
	m.writes++
	m.writeBlocks = append(m.writeBlocks, slices.Clone(b))
	i := 0
	m.walk(b, func(off int) {
		m.data[off] = in[i]
		i++
	})
	return nil
}

func (m *Memory[T]) check(b diskarray.Block, n int) error {
	if m.fail != nil {
		return m.fail
	}
	if len(b) != len(m.shape) {
		return fmt.Errorf("%w: block %s for shape %v", diskarray.ErrShapeMismatch, b, m.shape)
	}
	for i, r := range b {
		if r.Len() == 0 {
			return fmt.Errorf("empty block %s", b)
		}
		if r.Start < 0 || r.Last() >= m.shape[i] {
			return fmt.Errorf("%w: block %s for shape %v", diskarray.ErrOutOfBounds, b, m.shape)
		}
		if !r.IsUnit() && !m.stepRange {
			return fmt.Errorf("strided block %s sent to a unit-range backend", b)
		}
	}
	if n != b.Len() {
		return fmt.Errorf("%w: buffer of %d elements for block %s", diskarray.ErrShapeMismatch, n, b)
	}
	return nil
}

// walk visits the flat offsets of every element of b in C order.
func (m *Memory[T]) walk(b diskarray.Block, fn func(off int)) {
	strides := make([]int, len(m.shape))
	s := 1
	for i := len(m.shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= m.shape[i]
	}
	var rec func(dim, off int)
	rec = func(dim, off int) {
		if dim == len(b) {
			fn(off)
			return
		}
		r := b[dim]
		step := max(r.Step, 1)
		for p := r.Start; p < r.Stop; p += step {
			rec(dim+1, off+p*strides[dim])
		}
	}
	rec(0, 0)
}

// Fail makes every following block operation return err. A nil err clears it.
func (m *Memory[T]) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Data returns a copy of the backing data.
func (m *Memory[T]) Data() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data)
}

// ReadCount returns the number of ReadBlock calls.
func (m *Memory[T]) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// WriteCount returns the number of WriteBlock calls.
func (m *Memory[T]) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// ReadElements returns the number of elements read so far.
func (m *Memory[T]) ReadElements() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readElements
}

// ReadBlocks returns the blocks read so far, in call order.
func (m *Memory[T]) ReadBlocks() []diskarray.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.readBlocks)
}

// WriteBlocks returns the blocks written so far, in call order.
func (m *Memory[T]) WriteBlocks() []diskarray.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.writeBlocks)
}

// Reset clears the access counters.
func (m *Memory[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads, m.writes, m.readElements = 0, 0, 0
	m.readBlocks, m.writeBlocks = nil, nil
}

// Range returns the values 0, 1, ..., n-1 converted to T.
func Range[T ~int | ~int32 | ~int64 | ~float32 | ~float64](n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = T(i)
	}
	return out
}
