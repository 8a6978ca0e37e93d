package diskarray

import "fmt"

// Dense is an in-memory n-dimensional array in C order.
type Dense[T any] struct {
	Shape []int
	Data  []T
}

// NewDense allocates a zeroed Dense of the given shape.
func NewDense[T any](shape ...int) *Dense[T] {
	return &Dense[T]{Shape: shape, Data: make([]T, prod(shape))}
}

// FromSlice wraps data with the given shape.
func FromSlice[T any](data []T, shape ...int) (*Dense[T], error) {
	if prod(shape) != len(data) {
		return nil, fmt.Errorf("%w: %d elements for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Dense[T]{Shape: shape, Data: data}, nil
}

// Len returns the number of elements.
func (d *Dense[T]) Len() int { return len(d.Data) }

// NDims returns the number of dimensions.
func (d *Dense[T]) NDims() int { return len(d.Shape) }

// At returns the element at the given coordinate.
func (d *Dense[T]) At(idx ...int) T {
	return d.Data[d.offset(idx)]
}

// Set stores v at the given coordinate.
func (d *Dense[T]) Set(v T, idx ...int) {
	d.Data[d.offset(idx)] = v
}

func (d *Dense[T]) offset(idx []int) int {
	if len(idx) != len(d.Shape) {
		panic(fmt.Sprintf("diskarray: %d indices for %d dimensions", len(idx), len(d.Shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= d.Shape[i] {
			panic(fmt.Sprintf("diskarray: index %d out of range [0, %d) on axis %d", v, d.Shape[i], i))
		}
		off = off*d.Shape[i] + v
	}
	return off
}
