package zarr

import (
	"context"
	"fmt"
	"io"

	diskarray "github.com/TuSKan/go-diskarray"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"go.uber.org/zap"
	"gocloud.dev/blob"
)

type datasetOptions struct {
	cacheMB     float64
	parallelism int
	logger      *zap.Logger
	store       []StoreOption
}

// DatasetOption configures a Dataset.
type DatasetOption func(*datasetOptions)

// WithBatchCache keeps up to maxSizeMB megabytes of decoded chunks in memory,
// so that batches sharing a chunk decode it once.
func WithBatchCache(maxSizeMB float64) DatasetOption {
	return func(o *datasetOptions) { o.cacheMB = maxSizeMB }
}

// WithBatchParallelism reads up to n chunks of a batch concurrently.
func WithBatchParallelism(n int) DatasetOption {
	return func(o *datasetOptions) { o.parallelism = n }
}

// WithDatasetLogger sets the logger of the dataset and its store.
func WithDatasetLogger(l *zap.Logger) DatasetOption {
	return func(o *datasetOptions) { o.logger = l }
}

// WithStoreOptions passes options to the underlying Store.
func WithStoreOptions(opts ...StoreOption) DatasetOption {
	return func(o *datasetOptions) { o.store = append(o.store, opts...) }
}

// Dataset handles reading Zarr arrays in batches along the first axis.
type Dataset struct {
	bucket       *blob.Bucket
	owned        bool
	meta         *Metadata
	next         func(ctx context.Context, start, end int) (*tensors.Tensor, error)
	closeCache   func() error
	CurrentIndex int
}

// NewDataset creates a new Dataset for the given base path.
func NewDataset(ctx context.Context, path string, opts ...DatasetOption) (*Dataset, error) {
	bucket, err := blob.OpenBucket(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	ds, err := newDataset(ctx, bucket, applyDatasetOptions(opts))
	if err != nil {
		bucket.Close()
		return nil, err
	}
	ds.owned = true
	return ds, nil
}

// NewDatasetFromBucket creates a Dataset over an already opened bucket, which
// stays owned by the caller.
func NewDatasetFromBucket(ctx context.Context, bucket *blob.Bucket, opts ...DatasetOption) (*Dataset, error) {
	return newDataset(ctx, bucket, applyDatasetOptions(opts))
}

func applyDatasetOptions(opts []DatasetOption) datasetOptions {
	o := datasetOptions{logger: zap.NewNop(), parallelism: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newDataset(ctx context.Context, bucket *blob.Bucket, o datasetOptions) (*Dataset, error) {
	so := applyStoreOptions(append([]StoreOption{WithLogger(o.logger)}, o.store...))
	reader, err := bucket.NewReader(ctx, so.prefix+MetadataKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", MetadataKey, err)
	}
	defer reader.Close()
	meta, err := LoadMetadata(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	if len(meta.Shape) == 0 {
		return nil, fmt.Errorf("cannot batch a 0-d array")
	}

	ds := &Dataset{bucket: bucket, meta: meta}
	switch meta.DType {
	case "<f4":
		err = bindBatcher[float32](ds, meta, so, o)
	case "<f8":
		err = bindBatcher[float64](ds, meta, so, o)
	case "<i4":
		err = bindBatcher[int32](ds, meta, so, o)
	case "<i8":
		err = bindBatcher[int64](ds, meta, so, o)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", meta.DType)
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// bindBatcher builds the array that serves the batches of ds.
func bindBatcher[T Element](ds *Dataset, meta *Metadata, so storeOptions, o datasetOptions) error {
	store, err := newStore[T](ds.bucket, meta, so)
	if err != nil {
		return err
	}
	var backend diskarray.Backend[T] = store
	ds.closeCache = func() error { return nil }
	if o.cacheMB > 0 {
		cache, err := diskarray.NewCache[T](store, o.cacheMB, false, diskarray.WithCacheLogger(o.logger))
		if err != nil {
			return err
		}
		backend = cache
		ds.closeCache = cache.Close
	}
	arr, err := diskarray.New(backend, diskarray.WithParallelism(o.parallelism), diskarray.WithLogger(o.logger))
	if err != nil {
		return err
	}

	ds.next = func(ctx context.Context, start, end int) (*tensors.Tensor, error) {
		batch, err := arr.Get(ctx, diskarray.Span(start, end))
		if err != nil {
			return nil, err
		}
		return toTensor(batch.Data, batch.Shape)
	}
	return nil
}

func toTensor(data any, shape []int) (*tensors.Tensor, error) {
	switch v := data.(type) {
	case []float32:
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	case []float64:
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	case []int32:
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	case []int64:
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	default:
		return nil, fmt.Errorf("unexpected data type: %T", data)
	}
}

// Metadata returns the array metadata.
func (d *Dataset) Metadata() *Metadata { return d.meta }

// Len returns the number of rows along the first axis.
func (d *Dataset) Len() int { return d.meta.Shape[0] }

// NextBatch reads the next batch of size batchSize.
// Returns io.EOF if there is no more data.
func (d *Dataset) NextBatch(ctx context.Context, batchSize int) (*tensors.Tensor, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if d.CurrentIndex >= d.meta.Shape[0] {
		return nil, io.EOF
	}

	start := d.CurrentIndex
	end := min(start+batchSize, d.meta.Shape[0])
	batch, err := d.next(ctx, start, end)
	if err != nil {
		return nil, err
	}
	d.CurrentIndex = end
	return batch, nil
}

// Reset rewinds the dataset to the first row.
func (d *Dataset) Reset() { d.CurrentIndex = 0 }

// Close releases the chunk cache, and the bucket when NewDataset opened it.
func (d *Dataset) Close() error {
	cacheErr := d.closeCache()
	if d.owned {
		if err := d.bucket.Close(); err != nil {
			return err
		}
	}
	return cacheErr
}
