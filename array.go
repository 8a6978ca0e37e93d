package diskarray

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

type options struct {
	cfg         *Config
	strategy    *BatchStrategy
	chunks      GridChunks
	logger      *zap.Logger
	parallelism int
}

// Option configures an Array.
type Option func(*options)

// WithConfig uses cfg instead of the process-wide Default config.
func WithConfig(cfg *Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithStrategy overrides the default ChunkRead batch strategy.
func WithStrategy(s BatchStrategy) Option {
	return func(o *options) { o.strategy = &s }
}

// WithChunks forces a chunk grid regardless of what the backend reports.
func WithChunks(g GridChunks) Option {
	return func(o *options) { o.chunks = g }
}

// WithLogger sets the logger used for plan diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithParallelism runs up to n block operations concurrently.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// Array gives array indexing semantics to a block-oriented backend.
type Array[T any] struct {
	backend     Backend[T]
	shape       []int
	grid        GridChunks
	caps        Capabilities
	strategy    BatchStrategy
	cfg         *Config
	logger      *zap.Logger
	parallelism int
}

// New wraps a backend. The backend capabilities are queried once here.
func New[T any](b Backend[T], opts ...Option) (*Array[T], error) {
	o := options{logger: zap.NewNop(), parallelism: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = Default()
	}

	shape := slices.Clone(b.Shape())
	for i, s := range shape {
		if s < 0 {
			return nil, fmt.Errorf("%w: negative size %d on axis %d", ErrShapeMismatch, s, i)
		}
	}
	caps := CapabilitiesOf(b)

	grid := o.chunks
	if grid == nil {
		if c, ok := b.(Chunker); ok && caps.Chunked {
			grid = c.Chunks()
		} else {
			grid = EstimateChunks(shape, caps.ElementSize, o.cfg)
		}
	}
	if !slices.Equal(grid.Shape(), shape) {
		return nil, fmt.Errorf("%w: chunk grid covers %v, array shape is %v", ErrInvalidChunks, grid.Shape(), shape)
	}

	strategy := DefaultStrategy()
	if o.strategy != nil {
		strategy = *o.strategy
	}
	return &Array[T]{
		backend:     b,
		shape:       shape,
		grid:        grid,
		caps:        caps,
		strategy:    strategy,
		cfg:         o.cfg,
		logger:      o.logger,
		parallelism: o.parallelism,
	}, nil
}

// Shape returns the array shape.
func (a *Array[T]) Shape() []int { return slices.Clone(a.shape) }

// NDims returns the number of dimensions.
func (a *Array[T]) NDims() int { return len(a.shape) }

// Len returns the number of elements.
func (a *Array[T]) Len() int { return prod(a.shape) }

// Chunks returns the chunk grid used for resolution.
func (a *Array[T]) Chunks() GridChunks { return a.grid }

// Capabilities returns the backend capabilities.
func (a *Array[T]) Capabilities() Capabilities { return a.caps }

// Strategy returns the batch strategy.
func (a *Array[T]) Strategy() BatchStrategy { return a.strategy }

// Backend returns the wrapped backend.
func (a *Array[T]) Backend() Backend[T] { return a.backend }

// Plan resolves an index expression without performing any I/O.
func (a *Array[T]) Plan(idx ...Index) (*Plan, error) {
	plan, err := Resolve(a.grid, a.strategy, a.caps, a.cfg, idx...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("resolved index",
		zap.Stringers("index", idx),
		zap.Stringer("strategy", a.strategy),
		zap.Ints("out_shape", plan.OutShape),
		zap.Int("blocks", len(plan.Indices)),
		zap.Int("block_elements", plan.BlockElements()),
	)
	return plan, nil
}

// Get reads the elements selected by idx.
func (a *Array[T]) Get(ctx context.Context, idx ...Index) (*Dense[T], error) {
	plan, err := a.Plan(idx...)
	if err != nil {
		return nil, err
	}
	out := make([]T, plan.OutLen())
	if err := ExecuteRead(ctx, a.backend, plan, out, a.parallelism); err != nil {
		return nil, err
	}
	return &Dense[T]{Shape: slices.Clone(plan.OutShape), Data: out}, nil
}

// Set writes v into the elements selected by idx. v must have the shape of
// the selection, up to singleton dimensions.
func (a *Array[T]) Set(ctx context.Context, v *Dense[T], idx ...Index) error {
	plan, err := a.Plan(idx...)
	if err != nil {
		return err
	}
	if !slices.Equal(squeeze(v.Shape), squeeze(plan.OutShape)) || v.Len() != plan.OutLen() {
		return fmt.Errorf("%w: value of shape %v for selection of shape %v", ErrShapeMismatch, v.Shape, plan.OutShape)
	}
	return ExecuteWrite(ctx, a.backend, plan, v.Data, a.parallelism)
}

// SetSlice writes data, laid out in C order with the shape of the selection,
// into the elements selected by idx.
func (a *Array[T]) SetSlice(ctx context.Context, data []T, idx ...Index) error {
	plan, err := a.Plan(idx...)
	if err != nil {
		return err
	}
	if len(data) != plan.OutLen() {
		return fmt.Errorf("%w: %d values for selection of shape %v", ErrShapeMismatch, len(data), plan.OutShape)
	}
	return ExecuteWrite(ctx, a.backend, plan, data, a.parallelism)
}

// Fill writes x into every element selected by idx.
func (a *Array[T]) Fill(ctx context.Context, x T, idx ...Index) error {
	plan, err := a.Plan(idx...)
	if err != nil {
		return err
	}
	src := make([]T, plan.OutLen())
	for i := range src {
		src[i] = x
	}
	return ExecuteWrite(ctx, a.backend, plan, src, a.parallelism)
}

// ReadChunk reads the whole chunk at the given chunk coordinate.
func (a *Array[T]) ReadChunk(ctx context.Context, coord ...int) (*Dense[T], error) {
	idx, err := a.chunkIndex(coord)
	if err != nil {
		return nil, err
	}
	return a.Get(ctx, idx...)
}

// WriteChunk replaces the whole chunk at the given chunk coordinate.
func (a *Array[T]) WriteChunk(ctx context.Context, v *Dense[T], coord ...int) error {
	idx, err := a.chunkIndex(coord)
	if err != nil {
		return err
	}
	return a.Set(ctx, v, idx...)
}

func (a *Array[T]) chunkIndex(coord []int) ([]Index, error) {
	if !a.grid.ValidCoord(coord) {
		return nil, fmt.Errorf("%w: chunk %v of grid %v", ErrOutOfBounds, coord, a.grid.GridShape())
	}
	b := a.grid.ChunkBlock(coord)
	idx := make([]Index, len(b))
	for i, r := range b {
		idx[i] = Span(r.Start, r.Stop)
	}
	return idx, nil
}

// EachChunk returns an iterator over the chunks of the array.
func (a *Array[T]) EachChunk() *ChunkIterator { return a.grid.Iterator() }

func squeeze(shape []int) []int {
	out := make([]int, 0, len(shape))
	for _, s := range shape {
		if s != 1 {
			out = append(out, s)
		}
	}
	return out
}
