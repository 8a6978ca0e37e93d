package diskarray

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Range is a half-open, positively strided index range along one axis.
// A zero Step means 1.
type Range struct {
	Start, Stop, Step int
}

// UnitRange returns the range [start, stop) with step 1.
func UnitRange(start, stop int) Range {
	return Range{Start: start, Stop: stop, Step: 1}
}

func (r Range) step() int {
	if r.Step <= 0 {
		return 1
	}
	return r.Step
}

// Len returns the number of indices selected by the range.
func (r Range) Len() int {
	if r.Stop <= r.Start {
		return 0
	}
	s := r.step()
	return (r.Stop - r.Start + s - 1) / s
}

// Last returns the last index selected by the range.
func (r Range) Last() int {
	return r.Start + (r.Len()-1)*r.step()
}

// IsUnit reports whether the range has step 1.
func (r Range) IsUnit() bool { return r.step() == 1 }

func (r Range) String() string {
	if r.IsUnit() {
		return fmt.Sprintf("%d:%d", r.Start, r.Stop)
	}
	return fmt.Sprintf("%d:%d:%d", r.Start, r.Stop, r.step())
}

// Block is an axis-aligned hyper-rectangle, one Range per array dimension.
type Block []Range

// Shape returns the number of indices along every axis.
func (b Block) Shape() []int {
	s := make([]int, len(b))
	for i, r := range b {
		s[i] = r.Len()
	}
	return s
}

// Len returns the number of elements in the block.
func (b Block) Len() int {
	return prod(b.Shape())
}

// Empty reports whether the block contains no element.
func (b Block) Empty() bool {
	for _, r := range b {
		if r.Len() == 0 {
			return true
		}
	}
	return false
}

func (b Block) String() string {
	parts := make([]string, len(b))
	for i, r := range b {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Backend is the block I/O collaborator behind an Array. Buffers are dense and
// in C order, and their length always equals the length of the addressed block.
// Bounds are validated before a backend is called.
type Backend[T any] interface {
	Shape() []int
	ReadBlock(ctx context.Context, b Block, out []T) error
	WriteBlock(ctx context.Context, b Block, in []T) error
}

// Chunker is implemented by backends that know their storage chunking.
type Chunker interface {
	Chunks() GridChunks
}

// Capabilities describes what a backend instance can do.
type Capabilities struct {
	// Chunked is true when the backend exposes a real chunk grid.
	Chunked bool
	// StepRange is true when ReadBlock and WriteBlock accept strided ranges.
	StepRange bool
	// ElementSize is the approximate size of one element in bytes, 0 if unknown.
	ElementSize int
}

// CapabilityReporter is implemented by backends that declare capabilities.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// CapabilitiesOf queries the capabilities of b once. Backends that do not
// report capabilities are considered chunked when they implement Chunker.
func CapabilitiesOf[T any](b Backend[T]) Capabilities {
	var caps Capabilities
	if cr, ok := b.(CapabilityReporter); ok {
		caps = cr.Capabilities()
	} else if _, ok := b.(Chunker); ok {
		caps.Chunked = true
	}
	if caps.ElementSize == 0 {
		caps.ElementSize = elementSize[T]()
	}
	return caps
}

// elementSize returns the in-memory size of T when T holds no pointers, 0 otherwise.
func elementSize[T any]() int {
	t := reflect.TypeFor[T]()
	if !fixedSize(t) {
		return 0
	}
	return int(t.Size())
}

func fixedSize(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return fixedSize(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !fixedSize(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func readChecked[T any](ctx context.Context, b Backend[T], blk Block, out []T) error {
	if blk.Empty() {
		return nil
	}
	return b.ReadBlock(ctx, blk, out)
}

func writeChecked[T any](ctx context.Context, b Backend[T], blk Block, in []T) error {
	if blk.Empty() {
		return nil
	}
	return b.WriteBlock(ctx, blk, in)
}

func prod(s []int) int {
	p := 1
	for _, v := range s {
		p *= v
	}
	return p
}
