package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"reflect"
	"slices"
	"sync"

	diskarray "github.com/TuSKan/go-diskarray"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"golang.org/x/time/rate"
)

// Element is the set of element types a Store can hold.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

const lockStripes = 64

type storeOptions struct {
	prefix  string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

// WithPrefix locates the array under prefix inside the bucket, e.g. "group/temp/".
func WithPrefix(prefix string) StoreOption {
	return func(o *storeOptions) { o.prefix = prefix }
}

// WithRateLimit throttles bucket requests to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) StoreOption {
	return func(o *storeOptions) { o.limiter = rate.NewLimiter(r, burst) }
}

// WithLogger sets the logger for chunk traffic.
func WithLogger(l *zap.Logger) StoreOption {
	return func(o *storeOptions) { o.logger = l }
}

// Store is a diskarray backend over a Zarr V2 array kept in a blob bucket.
// Missing chunks read as the fill value.
type Store[T Element] struct {
	bucket  *blob.Bucket
	owned   bool
	prefix  string
	meta    *Metadata
	grid    diskarray.GridChunks
	codec   Codec
	fill    T
	limiter *rate.Limiter
	logger  *zap.Logger

	// locks serialize read-modify-write cycles on the same chunk.
	locks [lockStripes]sync.Mutex
}

var (
	_ diskarray.Backend[float32]   = (*Store[float32])(nil)
	_ diskarray.Chunker            = (*Store[float32])(nil)
	_ diskarray.CapabilityReporter = (*Store[float32])(nil)
)

// Open opens the bucket at url and the array stored in it.
func Open[T Element](ctx context.Context, url string, opts ...StoreOption) (*Store[T], error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	s, err := OpenBucket[T](ctx, bucket, opts...)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// OpenBucket opens an array stored in an already opened bucket. The bucket
// stays owned by the caller.
func OpenBucket[T Element](ctx context.Context, bucket *blob.Bucket, opts ...StoreOption) (*Store[T], error) {
	o := applyStoreOptions(opts)
	reader, err := bucket.NewReader(ctx, o.prefix+MetadataKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", MetadataKey, err)
	}
	defer reader.Close()

	meta, err := LoadMetadata(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return newStore[T](bucket, meta, o)
}

// Create writes meta to the bucket and returns a Store for the new, empty
// array. The bucket stays owned by the caller.
func Create[T Element](ctx context.Context, bucket *blob.Bucket, meta *Metadata, opts ...StoreOption) (*Store[T], error) {
	o := applyStoreOptions(opts)
	var buf bytes.Buffer
	if err := WriteMetadata(&buf, meta); err != nil {
		return nil, err
	}
	s, err := newStore[T](bucket, meta, o)
	if err != nil {
		return nil, err
	}
	if err := bucket.WriteAll(ctx, o.prefix+MetadataKey, buf.Bytes(), nil); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", MetadataKey, err)
	}
	return s, nil
}

func applyStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newStore[T Element](bucket *blob.Bucket, meta *Metadata, o storeOptions) (*Store[T], error) {
	name, size, err := ParseDType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("invalid dtype: %w", err)
	}
	t := reflect.TypeFor[T]()
	if t.Kind().String() != name || int(t.Size()) != size {
		return nil, fmt.Errorf("dtype %s cannot be read as %s", meta.DType, t)
	}
	grid, err := meta.Grid()
	if err != nil {
		return nil, fmt.Errorf("invalid chunk grid: %w", err)
	}
	codec, err := NewCodec(meta.Compressor)
	if err != nil {
		return nil, err
	}
	fill, err := meta.Fill()
	if err != nil {
		return nil, err
	}
	return &Store[T]{
		bucket:  bucket,
		prefix:  o.prefix,
		meta:    meta,
		grid:    grid,
		codec:   codec,
		fill:    T(fill),
		limiter: o.limiter,
		logger:  o.logger,
	}, nil
}

// Metadata returns the array metadata.
func (s *Store[T]) Metadata() *Metadata { return s.meta }

// Shape returns the array shape.
func (s *Store[T]) Shape() []int { return slices.Clone(s.meta.Shape) }

// Chunks returns the storage chunk grid.
func (s *Store[T]) Chunks() diskarray.GridChunks { return s.grid }

// Capabilities reports a chunked backend of fixed-size elements.
func (s *Store[T]) Capabilities() diskarray.Capabilities {
	return diskarray.Capabilities{Chunked: true, ElementSize: s.meta.ItemSize()}
}

// ReadBlock reads every chunk intersecting b and copies the overlap into out.
func (s *Store[T]) ReadBlock(ctx context.Context, b diskarray.Block, out []T) error {
	if err := s.checkBlock(b, len(out)); err != nil {
		return err
	}
	shape := b.Shape()
	return s.eachChunk(b, func(coord []int, lo, n []int) error {
		chunk, err := s.ReadChunk(ctx, coord)
		if err != nil {
			return err
		}
		diskarray.CopyND(out, shape, offsetIn(lo, b), chunk, s.meta.Chunks, s.offsetInChunk(lo, coord), n)
		return nil
	})
}

// WriteBlock writes in to every chunk intersecting b. Chunks only partly
// covered by b are read and merged first.
func (s *Store[T]) WriteBlock(ctx context.Context, b diskarray.Block, in []T) error {
	if err := s.checkBlock(b, len(in)); err != nil {
		return err
	}
	shape := b.Shape()
	return s.eachChunk(b, func(coord []int, lo, n []int) error {
		mu := s.lock(coord)
		mu.Lock()
		defer mu.Unlock()

		var chunk []T
		if s.covers(coord, n) {
			chunk = s.filled()
		} else {
			var err error
			if chunk, err = s.ReadChunk(ctx, coord); err != nil {
				return err
			}
		}
		diskarray.CopyND(chunk, s.meta.Chunks, s.offsetInChunk(lo, coord), in, shape, offsetIn(lo, b), n)
		return s.WriteChunk(ctx, coord, chunk)
	})
}

// ReadChunk returns the decoded chunk at coord, at full chunk size.
func (s *Store[T]) ReadChunk(ctx context.Context, coord []int) ([]T, error) {
	key := s.key(coord)
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return s.filled(), nil
		}
		return nil, fmt.Errorf("failed to read chunk %s: %w", key, err)
	}

	want := s.meta.ChunkLen() * s.meta.ItemSize()
	raw, err := s.codec.Decode(data, want)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("chunk %s has %d bytes, expected %d", key, len(raw), want)
	}
	chunk := make([]T, s.meta.ChunkLen())
	if _, err := binary.Decode(raw, binary.LittleEndian, chunk); err != nil {
		return nil, fmt.Errorf("failed to decode chunk %s: %w", key, err)
	}
	s.logger.Debug("read chunk", zap.String("key", key), zap.Int("bytes", len(data)))
	return chunk, nil
}

// WriteChunk encodes and stores a full-size chunk at coord.
func (s *Store[T]) WriteChunk(ctx context.Context, coord []int, chunk []T) error {
	key := s.key(coord)
	if len(chunk) != s.meta.ChunkLen() {
		return fmt.Errorf("%w: chunk %s has %d elements, expected %d", diskarray.ErrShapeMismatch, key, len(chunk), s.meta.ChunkLen())
	}
	raw, err := binary.Append(nil, binary.LittleEndian, chunk)
	if err != nil {
		return fmt.Errorf("failed to encode chunk %s: %w", key, err)
	}
	data, err := s.codec.Encode(raw)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", key, err)
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", key, err)
	}
	s.logger.Debug("wrote chunk", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Close closes the bucket when the Store opened it.
func (s *Store[T]) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}

func (s *Store[T]) checkBlock(b diskarray.Block, n int) error {
	if len(b) != len(s.meta.Shape) {
		return fmt.Errorf("%w: block %s for shape %v", diskarray.ErrShapeMismatch, b, s.meta.Shape)
	}
	for i, r := range b {
		if !r.IsUnit() {
			return fmt.Errorf("%w: strided block %s", diskarray.ErrShapeMismatch, b)
		}
		if r.Start < 0 || r.Stop > s.meta.Shape[i] {
			return fmt.Errorf("%w: block %s for shape %v", diskarray.ErrOutOfBounds, b, s.meta.Shape)
		}
	}
	if n != b.Len() {
		return fmt.Errorf("%w: buffer of %d elements for block %s", diskarray.ErrShapeMismatch, n, b)
	}
	return nil
}

// eachChunk calls fn with every chunk intersecting b, the global start of the
// overlap and its shape.
func (s *Store[T]) eachChunk(b diskarray.Block, fn func(coord, lo, n []int) error) error {
	start := make([]int, len(b))
	end := make([]int, len(b))
	for i, r := range b {
		start[i], end[i] = s.grid[i].Overlapping(r.Start, r.Stop)
	}
	return iterateSubGrid(start, end, func(coord []int) error {
		lo := make([]int, len(b))
		n := make([]int, len(b))
		for i, r := range b {
			cs := s.meta.Chunks[i]
			lo[i] = max(r.Start, coord[i]*cs)
			n[i] = min(r.Stop, (coord[i]+1)*cs) - lo[i]
		}
		return fn(slices.Clone(coord), lo, n)
	})
}

// covers reports whether an overlap of shape n spans the whole valid part of
// the chunk at coord.
func (s *Store[T]) covers(coord, n []int) bool {
	for i, c := range coord {
		cs := s.meta.Chunks[i]
		valid := min((c+1)*cs, s.meta.Shape[i]) - c*cs
		if n[i] != valid {
			return false
		}
	}
	return true
}

func (s *Store[T]) offsetInChunk(lo, coord []int) []int {
	off := make([]int, len(lo))
	for i := range lo {
		off[i] = lo[i] - coord[i]*s.meta.Chunks[i]
	}
	return off
}

func offsetIn(lo []int, b diskarray.Block) []int {
	off := make([]int, len(lo))
	for i := range lo {
		off[i] = lo[i] - b[i].Start
	}
	return off
}

func (s *Store[T]) filled() []T {
	chunk := make([]T, s.meta.ChunkLen())
	if s.fill != 0 {
		for i := range chunk {
			chunk[i] = s.fill
		}
	}
	return chunk
}

func (s *Store[T]) key(coord []int) string {
	return s.prefix + ChunkKey(coord, s.meta.Separator())
}

func (s *Store[T]) lock(coord []int) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ChunkKey(coord, ".")))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *Store[T]) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}
