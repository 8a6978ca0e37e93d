package diskarray

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index is one entry of an index expression. An expression holds one entry
// per array axis, except for Coords and Linear which span several axes.
type Index interface {
	fmt.Stringer
	isIndex()
}

type fullIndex struct{}

type rangeIndex struct{ r Range }

type scalarIndex int

type intsIndex []int

type maskIndex []bool

type coordsIndex struct {
	k   int
	pts [][]int
}

type linearIndex []int

func (fullIndex) isIndex()   {}
func (rangeIndex) isIndex()  {}
func (scalarIndex) isIndex() {}
func (intsIndex) isIndex()   {}
func (maskIndex) isIndex()   {}
func (coordsIndex) isIndex() {}
func (linearIndex) isIndex() {}

func (fullIndex) String() string     { return ":" }
func (x rangeIndex) String() string  { return x.r.String() }
func (x scalarIndex) String() string { return fmt.Sprint(int(x)) }
func (x intsIndex) String() string   { return fmt.Sprint([]int(x)) }
func (x maskIndex) String() string   { return fmt.Sprintf("mask(%d)", len(x)) }
func (x coordsIndex) String() string { return fmt.Sprintf("coords%d(%d)", x.k, len(x.pts)) }
func (x linearIndex) String() string { return fmt.Sprintf("linear%v", []int(x)) }

// All selects a whole axis.
func All() Index { return fullIndex{} }

// Span selects [start, stop) along an axis.
func Span(start, stop int) Index { return rangeIndex{UnitRange(start, stop)} }

// Step selects start, start+step, ... below stop along an axis.
func Step(start, stop, step int) Index {
	return rangeIndex{Range{Start: start, Stop: stop, Step: step}}
}

// At selects a single position and drops the axis from the result.
func At(i int) Index { return scalarIndex(i) }

// Ints selects arbitrary positions along an axis, in the given order.
// Duplicates are allowed.
func Ints(pos ...int) Index { return intsIndex(pos) }

// Mask selects the positions of an axis where mask is true. The mask must be
// as long as the axis.
func Mask(mask ...bool) Index { return maskIndex(mask) }

// Coords selects a list of points spanning k consecutive axes jointly. The
// result has a single dimension for the whole list.
func Coords(k int, points ...[]int) Index { return coordsIndex{k: k, pts: points} }

// Linear selects elements by their C-order linear position over all the
// remaining axes. It must be the last entry of an expression.
func Linear(pos ...int) Index { return linearIndex(pos) }

// MaskND turns an n-dimensional boolean mask of the given shape (C order) into
// a coordinate list spanning len(shape) axes.
func MaskND(shape []int, mask []bool) (Index, error) {
	if prod(shape) != len(mask) {
		return nil, fmt.Errorf("%w: mask has %d elements, shape %v has %d", ErrShapeMismatch, len(mask), shape, prod(shape))
	}
	var pts [][]int
	for i, v := range mask {
		if v {
			pts = append(pts, unravel(i, shape))
		}
	}
	return coordsIndex{k: len(shape), pts: pts}, nil
}

// Bitmap selects the positions stored in a roaring bitmap, in increasing order.
func Bitmap(bm *roaring.Bitmap) Index {
	pos := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		pos = append(pos, int(it.Next()))
	}
	return intsIndex(pos)
}

type selKind uint8

const (
	selFull selKind = iota
	selRange
	selScalar
	selVector
	selJoint
)

// selection is an index entry normalized against the array shape.
type selection struct {
	kind  selKind
	axis  int
	naxes int
	r     Range
	pos   []int
	pts   [][]int
}

func (s selection) keepsDim() bool { return s.kind != selScalar }

func (s selection) count() int {
	switch s.kind {
	case selFull, selRange:
		return s.r.Len()
	case selScalar:
		return 1
	case selVector:
		return len(s.pos)
	default:
		return len(s.pts)
	}
}

// normalize validates an index expression against shape and converts it into
// one selection per axis group. Missing trailing entries select whole axes and
// extra trailing At(0) entries are ignored.
func normalize(idx []Index, shape []int) ([]selection, error) {
	nd := len(shape)
	sels := make([]selection, 0, nd)
	axis := 0
	for n, ix := range idx {
		if axis >= nd {
			if s, ok := ix.(scalarIndex); ok && s == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: index has more entries than the %d array dimensions", ErrShapeMismatch, nd)
		}
		size := shape[axis]
		switch x := ix.(type) {
		case fullIndex:
			sels = append(sels, selection{kind: selFull, axis: axis, naxes: 1, r: UnitRange(0, size)})
		case rangeIndex:
			r := x.r
			if r.Step < 0 {
				return nil, fmt.Errorf("%w: negative step %d on axis %d", ErrOutOfBounds, r.Step, axis)
			}
			if r.Len() > 0 && (r.Start < 0 || r.Last() >= size) {
				return nil, fmt.Errorf("%w: range %s on axis %d of size %d", ErrOutOfBounds, r, axis, size)
			}
			r.Step = r.step()
			sels = append(sels, selection{kind: selRange, axis: axis, naxes: 1, r: r})
		case scalarIndex:
			if int(x) < 0 || int(x) >= size {
				return nil, fmt.Errorf("%w: index %d on axis %d of size %d", ErrOutOfBounds, int(x), axis, size)
			}
			sels = append(sels, selection{kind: selScalar, axis: axis, naxes: 1, r: UnitRange(int(x), int(x)+1)})
		case intsIndex:
			for _, p := range x {
				if p < 0 || p >= size {
					return nil, fmt.Errorf("%w: index %d on axis %d of size %d", ErrOutOfBounds, p, axis, size)
				}
			}
			sels = append(sels, selection{kind: selVector, axis: axis, naxes: 1, pos: []int(x)})
		case maskIndex:
			if len(x) != size {
				return nil, fmt.Errorf("%w: mask of length %d on axis %d of size %d", ErrShapeMismatch, len(x), axis, size)
			}
			var pos []int
			for i, v := range x {
				if v {
					pos = append(pos, i)
				}
			}
			sels = append(sels, selection{kind: selVector, axis: axis, naxes: 1, pos: pos})
		case coordsIndex:
			if x.k < 1 || axis+x.k > nd {
				return nil, fmt.Errorf("%w: coordinate list spans %d axes from axis %d of %d", ErrShapeMismatch, x.k, axis, nd)
			}
			sub := shape[axis : axis+x.k]
			for _, p := range x.pts {
				if err := checkPoint(p, sub, axis); err != nil {
					return nil, err
				}
			}
			sels = append(sels, selection{kind: selJoint, axis: axis, naxes: x.k, pts: x.pts})
		case linearIndex:
			if n != len(idx)-1 {
				return nil, fmt.Errorf("%w: linear index must be the last entry", ErrShapeMismatch)
			}
			sub := shape[axis:]
			total := prod(sub)
			if len(sub) == 1 {
				for _, p := range x {
					if p < 0 || p >= total {
						return nil, fmt.Errorf("%w: linear index %d of %d elements", ErrOutOfBounds, p, total)
					}
				}
				sels = append(sels, selection{kind: selVector, axis: axis, naxes: 1, pos: []int(x)})
				break
			}
			pts := make([][]int, len(x))
			for i, p := range x {
				if p < 0 || p >= total {
					return nil, fmt.Errorf("%w: linear index %d of %d elements", ErrOutOfBounds, p, total)
				}
				pts[i] = unravel(p, sub)
			}
			sels = append(sels, selection{kind: selJoint, axis: axis, naxes: len(sub), pts: pts})
		default:
			return nil, fmt.Errorf("unsupported index type %T", ix)
		}
		axis += sels[len(sels)-1].naxes
	}
	for ; axis < nd; axis++ {
		sels = append(sels, selection{kind: selFull, axis: axis, naxes: 1, r: UnitRange(0, shape[axis])})
	}
	return sels, nil
}

func checkPoint(p, shape []int, axis int) error {
	if len(p) != len(shape) {
		return fmt.Errorf("%w: point %v has %d coordinates, expected %d", ErrShapeMismatch, p, len(p), len(shape))
	}
	for j, v := range p {
		if v < 0 || v >= shape[j] {
			return fmt.Errorf("%w: coordinate %d on axis %d of size %d", ErrOutOfBounds, v, axis+j, shape[j])
		}
	}
	return nil
}

// unravel converts a C-order linear position into a coordinate.
func unravel(i int, shape []int) []int {
	c := make([]int, len(shape))
	for j := len(shape) - 1; j >= 0; j-- {
		c[j] = i % shape[j]
		i /= shape[j]
	}
	return c
}
