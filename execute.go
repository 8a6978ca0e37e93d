package diskarray

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ExecuteRead performs every block read of plan against b and assembles the
// result into out, which must hold plan.OutLen() elements. With parallelism
// above one, descriptors run concurrently; they fill disjoint parts of out.
func ExecuteRead[T any](ctx context.Context, b Backend[T], plan *Plan, out []T, parallelism int) error {
	if len(out) != plan.OutLen() {
		return fmt.Errorf("%w: output buffer has %d elements, expected %d", ErrShapeMismatch, len(out), plan.OutLen())
	}
	if plan.Aliasing() != AliasNone {
		d := &plan.Indices[0]
		if err := readChecked(ctx, b, d.Data, out); err != nil {
			return fmt.Errorf("failed to read block %s: %w", d.Data, err)
		}
		return nil
	}

	outStrides := cStrides(plan.OutShape)
	return forEachIndex(ctx, plan, parallelism, func(ctx context.Context, d *DiskIndex) error {
		temp := make([]T, d.TempLen())
		if err := readChecked(ctx, b, d.Data, temp); err != nil {
			return fmt.Errorf("failed to read block %s: %w", d.Data, err)
		}
		scatter(d, temp, out, outStrides)
		return nil
	})
}

// ExecuteWrite writes src, laid out with shape plan.OutShape, through every
// block of plan. Blocks whose staging buffer is only partly selected are read
// first so that unselected elements keep their value.
func ExecuteWrite[T any](ctx context.Context, b Backend[T], plan *Plan, src []T, parallelism int) error {
	if len(src) != plan.OutLen() {
		return fmt.Errorf("%w: source has %d elements, expected %d", ErrShapeMismatch, len(src), plan.OutLen())
	}
	if plan.Aliasing() != AliasNone {
		d := &plan.Indices[0]
		if err := writeChecked(ctx, b, d.Data, src); err != nil {
			return fmt.Errorf("failed to write block %s: %w", d.Data, err)
		}
		return nil
	}

	outStrides := cStrides(plan.OutShape)
	return forEachIndex(ctx, plan, parallelism, func(ctx context.Context, d *DiskIndex) error {
		temp := make([]T, d.TempLen())
		if !d.Covers() {
			if err := readChecked(ctx, b, d.Data, temp); err != nil {
				return fmt.Errorf("failed to read block %s before write: %w", d.Data, err)
			}
		}
		gather(d, src, temp, outStrides)
		if err := writeChecked(ctx, b, d.Data, temp); err != nil {
			return fmt.Errorf("failed to write block %s: %w", d.Data, err)
		}
		return nil
	})
}

func forEachIndex(ctx context.Context, plan *Plan, parallelism int, fn func(context.Context, *DiskIndex) error) error {
	if parallelism <= 1 || len(plan.Indices) < 2 {
		for i := range plan.Indices {
			if err := fn(ctx, &plan.Indices[i]); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := range plan.Indices {
		d := &plan.Indices[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, d)
		})
	}
	return g.Wait()
}
