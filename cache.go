package diskarray

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSizeMB is the usual budget of a chunk cache.
const DefaultCacheSizeMB = 1000

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Spills        int64
	SpillHits     int64
	ResidentBytes int64
	Entries       int
	SpilledChunks int
}

type cacheOptions struct {
	cfg        *Config
	logger     *zap.Logger
	registerer prometheus.Registerer
	name       string
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

// WithCacheConfig sets the Config used to size synthesized chunks.
func WithCacheConfig(cfg *Config) CacheOption {
	return func(o *cacheOptions) { o.cfg = cfg }
}

// WithCacheLogger sets the logger for eviction and spill events.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(o *cacheOptions) { o.logger = l }
}

// WithRegisterer registers the cache collectors with reg under the given
// cache label. Names must be unique per registerer.
func WithRegisterer(reg prometheus.Registerer, name string) CacheOption {
	return func(o *cacheOptions) {
		o.registerer = reg
		o.name = name
	}
}

type cacheEntry[T any] struct {
	data  []T
	bytes int64
	// pins counts the operations currently copying from or into data.
	pins int
}

// Cache is a write-through LRU chunk cache in front of a Backend. Reads are
// split into the chunks they intersect and every missing chunk is fetched
// whole, once, from the wrapped backend. Put a ChunkRead strategy in front of
// it so that requests stay chunk aligned.
type Cache[T any] struct {
	backend  Backend[T]
	grid     GridChunks
	caps     Capabilities
	maxBytes int64
	elemSize int64
	logger   *zap.Logger
	metrics  *cacheMetrics

	// writeMu orders backend fetches against write-through updates.
	writeMu sync.RWMutex
	fetches singleflight.Group

	mu       sync.Mutex
	lru      *simplelru.LRU[string, *cacheEntry[T]]
	resident int64
	spill    *spillStore[T]
	closed   bool
	stats    CacheStats
}

var (
	_ Backend[float64] = (*Cache[float64])(nil)
	_ Chunker          = (*Cache[float64])(nil)
)

// NewCache wraps b in a chunk cache holding at most maxSizeMB megabytes in
// memory. With spill set, evicted chunks are kept in memory-mapped temp files
// instead of being dropped; this requires an element type without pointers.
func NewCache[T any](b Backend[T], maxSizeMB float64, spill bool, opts ...CacheOption) (*Cache[T], error) {
	if maxSizeMB <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %g MB", maxSizeMB)
	}
	o := cacheOptions{logger: zap.NewNop(), name: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = Default()
	}

	caps := CapabilitiesOf(b)
	var grid GridChunks
	if c, ok := b.(Chunker); ok && caps.Chunked {
		grid = c.Chunks()
	} else {
		grid = EstimateChunks(b.Shape(), caps.ElementSize, o.cfg)
	}
	es := caps.ElementSize
	if es <= 0 {
		es = o.cfg.FallbackElementSize()
	}

	c := &Cache[T]{
		backend:  b,
		grid:     grid,
		caps:     caps,
		maxBytes: int64(maxSizeMB * 1e6),
		elemSize: int64(es),
		logger:   o.logger,
		metrics:  newCacheMetrics(o.registerer, o.name),
	}
	lru, err := simplelru.NewLRU[string, *cacheEntry[T]](max(grid.Len(), 1), c.onEvicted)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	c.lru = lru
	if spill {
		if c.spill, err = newSpillStore[T](); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Shape returns the shape of the wrapped backend.
func (c *Cache[T]) Shape() []int { return c.backend.Shape() }

// Chunks returns the chunk grid the cache operates on.
func (c *Cache[T]) Chunks() GridChunks { return c.grid }

// Capabilities reports a chunked backend that only accepts unit ranges.
func (c *Cache[T]) Capabilities() Capabilities {
	return Capabilities{Chunked: true, ElementSize: c.caps.ElementSize}
}

// ReadBlock serves blk from cached chunks, fetching missing ones.
func (c *Cache[T]) ReadBlock(ctx context.Context, blk Block, out []T) error {
	if err := c.checkBlock(blk, len(out)); err != nil {
		return err
	}
	shape := blk.Shape()
	return c.eachChunk(blk, func(coord []int, cb Block) error {
		e, err := c.acquire(ctx, coord, cb)
		if err != nil {
			return err
		}
		defer c.release(e)
		lo, n := intersect(blk, cb)
		CopyND(out, shape, sub(lo, blk), e.data, cb.Shape(), sub(lo, cb), n)
		return nil
	})
}

// WriteBlock writes blk through to the wrapped backend, then updates the
// cached and spilled copies of the chunks it touches. Chunks it fully covers
// are inserted.
func (c *Cache[T]) WriteBlock(ctx context.Context, blk Block, in []T) error {
	if err := c.checkBlock(blk, len(in)); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := c.backend.WriteBlock(ctx, blk, in); err != nil {
		return fmt.Errorf("failed to write through block %s: %w", blk, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	shape := blk.Shape()
	return c.eachChunk(blk, func(coord []int, cb Block) error {
		key := ChunkKey(coord, ".")
		lo, n := intersect(blk, cb)
		if e, ok := c.lru.Get(key); ok {
			CopyND(e.data, cb.Shape(), sub(lo, cb), in, shape, sub(lo, blk), n)
			return nil
		}
		if view, ok := c.spill.view(key); ok {
			CopyND(view, cb.Shape(), sub(lo, cb), in, shape, sub(lo, blk), n)
			return nil
		}
		if slices.Equal(n, cb.Shape()) {
			data := make([]T, cb.Len())
			CopyND(data, n, make([]int, len(n)), in, shape, sub(lo, blk), n)
			c.insertLocked(key, data)
			c.evictLocked()
		}
		return nil
	})
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[T]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.ResidentBytes = c.resident
	s.Entries = c.lru.Len()
	s.SpilledChunks = c.spill.len()
	return s
}

// Cached returns the keys of the chunks held in memory, least recently used
// first.
func (c *Cache[T]) Cached() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Close drops every entry and removes the spill files. The wrapped backend
// is left open.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.lru.Purge()
	c.resident = 0
	c.metrics.resident.Set(0)
	if err := c.spill.close(); err != nil {
		return fmt.Errorf("failed to remove spill files: %w", err)
	}
	return nil
}

func (c *Cache[T]) checkBlock(blk Block, n int) error {
	if len(blk) != len(c.grid) {
		return fmt.Errorf("%w: block %s for %d dimensions", ErrShapeMismatch, blk, len(c.grid))
	}
	if n != blk.Len() {
		return fmt.Errorf("%w: buffer of %d elements for block %s", ErrShapeMismatch, n, blk)
	}
	for _, r := range blk {
		if !r.IsUnit() {
			return fmt.Errorf("%w: strided block %s", ErrShapeMismatch, blk)
		}
	}
	return nil
}

// acquire returns the pinned entry of a chunk, loading it from the spill
// store or the backend when it is not resident.
func (c *Cache[T]) acquire(ctx context.Context, coord []int, cb Block) (*cacheEntry[T], error) {
	key := ChunkKey(coord, ".")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := c.lru.Get(key); ok {
		e.pins++
		c.stats.Hits++
		c.metrics.hits.Inc()
		c.mu.Unlock()
		return e, nil
	}
	data, ok, err := c.spill.take(key)
	if err != nil {
		c.logger.Warn("failed to release spill file", zap.String("chunk", key), zap.Error(err))
	}
	if ok {
		e := c.insertLocked(key, data)
		e.pins++
		c.stats.SpillHits++
		c.metrics.spillHits.Inc()
		c.evictLocked()
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	v, err, _ := c.fetches.Do(key, func() (any, error) {
		return c.fetch(ctx, key, cb)
	})
	if err != nil {
		return nil, err
	}
	e := v.(*cacheEntry[T])
	c.mu.Lock()
	e.pins++
	c.mu.Unlock()
	return e, nil
}

// fetch reads a whole chunk from the wrapped backend and inserts it.
func (c *Cache[T]) fetch(ctx context.Context, key string, cb Block) (*cacheEntry[T], error) {
	c.writeMu.RLock()
	defer c.writeMu.RUnlock()

	c.mu.Lock()
	if e, ok := c.lru.Peek(key); ok {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	data := make([]T, cb.Len())
	if err := c.backend.ReadBlock(ctx, cb, data); err != nil {
		return nil, fmt.Errorf("failed to fetch chunk %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.stats.Misses++
	c.metrics.misses.Inc()
	e := c.insertLocked(key, data)
	// Keep the new entry out of its own eviction pass.
	e.pins++
	c.evictLocked()
	e.pins--
	return e, nil
}

func (c *Cache[T]) insertLocked(key string, data []T) *cacheEntry[T] {
	e := &cacheEntry[T]{data: data, bytes: int64(len(data)) * c.elemSize}
	c.lru.Add(key, e)
	c.resident += e.bytes
	c.metrics.resident.Set(float64(c.resident))
	return e
}

func (c *Cache[T]) release(e *cacheEntry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.pins--
	if e.pins == 0 && c.resident > c.maxBytes {
		c.evictLocked()
	}
}

// evictLocked removes least recently used entries until the resident size
// fits the budget. Pinned entries are skipped; their eviction is deferred to
// their release.
func (c *Cache[T]) evictLocked() {
	for _, key := range c.lru.Keys() {
		if c.resident <= c.maxBytes {
			return
		}
		if e, ok := c.lru.Peek(key); ok && e.pins == 0 {
			c.lru.Remove(key)
		}
	}
}

// onEvicted is called by the lru with c.mu held.
func (c *Cache[T]) onEvicted(key string, e *cacheEntry[T]) {
	c.resident -= e.bytes
	c.metrics.resident.Set(float64(c.resident))
	if c.closed {
		return
	}
	if e.pins > 0 {
		panic(fmt.Sprintf("diskarray: evicting pinned chunk %s", key))
	}
	c.stats.Evictions++
	c.metrics.evictions.Inc()
	if c.spill == nil {
		c.logger.Debug("evicted chunk", zap.String("chunk", key), zap.String("size", humanize.Bytes(uint64(e.bytes))))
		return
	}
	if err := c.spill.put(key, e.data); err != nil {
		c.logger.Warn("failed to spill chunk", zap.String("chunk", key), zap.Error(err))
		return
	}
	c.stats.Spills++
	c.metrics.spills.Inc()
	c.logger.Debug("spilled chunk", zap.String("chunk", key), zap.String("size", humanize.Bytes(uint64(e.bytes))))
}

// eachChunk calls fn for every chunk intersecting blk, in C order.
func (c *Cache[T]) eachChunk(blk Block, fn func(coord []int, cb Block) error) error {
	first := make([]int, len(blk))
	last := make([]int, len(blk))
	for i, r := range blk {
		first[i], last[i] = c.grid[i].Overlapping(r.Start, r.Stop)
		if first[i] >= last[i] {
			return nil
		}
	}
	coord := slices.Clone(first)
	for {
		if err := fn(slices.Clone(coord), c.grid.ChunkBlock(coord)); err != nil {
			return err
		}
		i := len(coord) - 1
		for ; i >= 0; i-- {
			coord[i]++
			if coord[i] < last[i] {
				break
			}
			coord[i] = first[i]
		}
		if i < 0 {
			return nil
		}
	}
}

// intersect returns the start and shape of the overlap of two unit blocks.
func intersect(a, b Block) (lo, n []int) {
	lo = make([]int, len(a))
	n = make([]int, len(a))
	for i := range a {
		lo[i] = max(a[i].Start, b[i].Start)
		n[i] = min(a[i].Stop, b[i].Stop) - lo[i]
	}
	return lo, n
}

// sub returns the position of lo relative to the start of b.
func sub(lo []int, b Block) []int {
	out := make([]int, len(lo))
	for i := range lo {
		out[i] = lo[i] - b[i].Start
	}
	return out
}
