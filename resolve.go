package diskarray

import (
	"fmt"
	"slices"
	"sort"
)

// Aliasing tells whether a staging buffer can share memory with the output.
type Aliasing uint8

const (
	// AliasNone means the staging buffer must be allocated and scattered.
	AliasNone Aliasing = iota
	// AliasIdentical means staging and output buffers are the same array.
	AliasIdentical
	// AliasReshape means they only differ by dropped singleton dimensions,
	// which leaves the C-order layout unchanged.
	AliasReshape
)

// groupSel is the scatter mapping of one axis group inside a DiskIndex.
type groupSel struct {
	axes   []int
	outDim int
	data   []Range
	tsel   [][]int
	osel   []int
	full   bool
	ident  bool
}

// DiskIndex describes one block operation: the backend block, the staging
// buffer shape and the mapping between staging and output positions.
type DiskIndex struct {
	// Tag is the position of the descriptor in its plan.
	Tag int
	// Data is the block passed to the backend.
	Data Block
	// TempShape is the shape of the staging buffer, equal to Data.Shape().
	TempShape []int
	// OutShape is the number of output positions contributed along every
	// output dimension.
	OutShape []int

	groups []groupSel
}

// Elements returns how many output elements the descriptor fills.
func (d *DiskIndex) Elements() int { return prod(d.OutShape) }

// TempLen returns the number of elements in the staging buffer.
func (d *DiskIndex) TempLen() int { return prod(d.TempShape) }

// Covers reports whether every staging element is selected exactly once, in
// which case a write does not need to read the block first.
func (d *DiskIndex) Covers() bool {
	for _, g := range d.groups {
		if !g.full {
			return false
		}
	}
	return true
}

// Aliasing reports how the staging buffer of d relates to an output of the
// given rank when d is the only descriptor of a plan.
func (d *DiskIndex) Aliasing(outRank int) Aliasing {
	dropped := false
	for _, g := range d.groups {
		if !g.ident {
			return AliasNone
		}
		if g.outDim < 0 {
			dropped = true
		}
	}
	if !dropped && outRank == len(d.TempShape) {
		return AliasIdentical
	}
	return AliasReshape
}

// Plan is the resolved form of an index expression.
type Plan struct {
	// OutShape is the shape of the result of the expression.
	OutShape []int
	// Indices are the block operations, in execution order.
	Indices []DiskIndex
	// Scalar is set when every entry is a scalar, or when a NoBatch plan
	// issues one block per selected element.
	Scalar   bool
	Strategy BatchStrategy
}

// OutLen returns the number of elements of the result.
func (p *Plan) OutLen() int { return prod(p.OutShape) }

// BlockElements returns the total number of elements moved by the backend.
func (p *Plan) BlockElements() int {
	n := 0
	for i := range p.Indices {
		n += p.Indices[i].TempLen()
	}
	return n
}

// Aliasing reports whether the single block of a plan can be read straight
// into the output buffer.
func (p *Plan) Aliasing() Aliasing {
	if len(p.Indices) != 1 {
		return AliasNone
	}
	return p.Indices[0].Aliasing(len(p.OutShape))
}

// Resolve turns an index expression into a plan of block operations over the
// given chunk grid.
func Resolve(grid GridChunks, strategy BatchStrategy, caps Capabilities, cfg *Config, idx ...Index) (*Plan, error) {
	if cfg == nil {
		cfg = Default()
	}
	sels, err := normalize(idx, grid.Shape())
	if err != nil {
		return nil, err
	}

	plan := &Plan{Strategy: strategy}
	groups := make([][]groupSel, len(sels))
	outDim := 0
	allScalar := len(sels) > 0
	for i, s := range sels {
		od := -1
		if s.keepsDim() {
			od = outDim
			outDim++
			plan.OutShape = append(plan.OutShape, s.count())
			allScalar = false
		}
		groups[i] = resolveSelection(grid, strategy, caps, s, od)
	}

	for _, g := range groups {
		if len(g) == 0 {
			return plan, nil
		}
	}
	plan.Indices = combine(grid.NDims(), len(plan.OutShape), groups)

	// One-element blocks of a batched strategy are chunk reads, not scalar access.
	single := strategy.Kind == NoBatch && len(plan.Indices) > 1
	for i := range plan.Indices {
		if plan.Indices[i].Elements() != 1 {
			single = false
			break
		}
	}
	plan.Scalar = allScalar || single
	if plan.Scalar && !cfg.AllowScalar() {
		return nil, fmt.Errorf("%w: %d element-wise block operations", ErrScalarDisallowed, len(plan.Indices))
	}
	return plan, nil
}

// resolveSelection builds the pieces of one axis group.
func resolveSelection(grid GridChunks, strategy BatchStrategy, caps Capabilities, s selection, od int) []groupSel {
	if s.count() == 0 {
		return nil
	}
	stepOK := strategy.AllowStepRange && caps.StepRange
	axes := make([]int, s.naxes)
	for j := range axes {
		axes[j] = s.axis + j
	}

	var pieces []piece
	switch s.kind {
	case selFull, selScalar:
		pieces = []piece{contiguous(s.r)}
	case selRange:
		switch {
		case s.r.IsUnit() || stepOK:
			pieces = []piece{contiguous(s.r)}
		case strategy.dense(s.r.Len(), s.r.Last()+1-s.r.Start):
			pieces = []piece{widened(s.r)}
		default:
			pieces = strategy.axisPieces(grid[s.axis], expand(s.r), false)
		}
	case selVector:
		pieces = strategy.axisPieces(grid[s.axis], s.pos, stepOK)
	case selJoint:
		pieces = jointPieces(grid[s.axis:s.axis+s.naxes], strategy, s.pts)
	}

	out := make([]groupSel, len(pieces))
	for k, p := range pieces {
		g := groupSel{axes: axes, outDim: od, data: p.data, tsel: p.tsel, osel: p.osel}
		if od < 0 {
			g.osel = nil
		}
		g.full, g.ident = coverage(p)
		out[k] = g
	}
	return out
}

// contiguous maps every index of r one to one onto staging and output.
func contiguous(r Range) piece {
	n := r.Len()
	t := make([]int, n)
	for i := range t {
		t[i] = i
	}
	return piece{data: []Range{r}, tsel: [][]int{t}, osel: t}
}

// widened reads the unit range covering a strided range and subsamples it.
func widened(r Range) piece {
	n := r.Len()
	t := make([]int, n)
	o := make([]int, n)
	for i := range t {
		t[i] = i * r.step()
		o[i] = i
	}
	return piece{data: []Range{UnitRange(r.Start, r.Last()+1)}, tsel: [][]int{t}, osel: o}
}

func expand(r Range) []int {
	pos := make([]int, r.Len())
	for i := range pos {
		pos[i] = r.Start + i*r.step()
	}
	return pos
}

// coverage reports whether the piece selects every staging element exactly
// once, and whether it does so in order onto consecutive output positions.
func coverage(p piece) (full, ident bool) {
	tl := 1
	for _, r := range p.data {
		tl *= r.Len()
	}
	n := p.count()
	if n != tl {
		return false, false
	}
	ident = len(p.tsel) == 1
	strides := cStrides(rangeShape(p.data))
	seen := make([]bool, tl)
	for e := 0; e < n; e++ {
		off := 0
		for j := range p.tsel {
			off += p.tsel[j][e] * strides[j]
		}
		if seen[off] {
			return false, false
		}
		seen[off] = true
		if ident && (off != e || (p.osel != nil && p.osel[e] != p.osel[0]+e)) {
			ident = false
		}
	}
	if ident && p.osel != nil && p.osel[0] != 0 {
		ident = false
	}
	return true, ident
}

func rangeShape(rs []Range) []int {
	s := make([]int, len(rs))
	for i, r := range rs {
		s[i] = r.Len()
	}
	return s
}

// jointPieces groups the points of a coordinate list spanning several axes.
// Points are isolated per chunk so that far apart points never share a block.
func jointPieces(grid GridChunks, strategy BatchStrategy, pts [][]int) []piece {
	if len(pts) == 0 {
		return nil
	}
	k := len(grid)

	// Points are grouped per distinct point for NoBatch and per chunk otherwise;
	// groups are ordered by point or by chunk number.
	byKey := map[string][]int{}
	order := map[string][]int{}
	var keys []string
	for e, p := range pts {
		sortKey := p
		if strategy.Kind != NoBatch {
			c := make([]int, k)
			for j := range c {
				c[j] = grid[j].FindChunk(p[j])
			}
			sortKey = []int{grid.ChunkIndex(c)}
		}
		key := fmt.Sprint(sortKey)
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
			order[key] = sortKey
		}
		byKey[key] = append(byKey[key], e)
	}
	sort.SliceStable(keys, func(a, b int) bool {
		return slices.Compare(order[keys[a]], order[keys[b]]) < 0
	})

	var pieces []piece
	for _, key := range keys {
		elems := byKey[key]
		if strategy.Kind == SubRanges && !strategy.dense(distinct(pts, elems), boxVolume(pts, elems, k)) {
			for _, sub := range splitDistinct(pts, elems) {
				pieces = append(pieces, boxPiece(pts, sub, k))
			}
			continue
		}
		pieces = append(pieces, boxPiece(pts, elems, k))
	}
	return pieces
}

// boxPiece reads the bounding box of the given points.
func boxPiece(pts [][]int, elems []int, k int) piece {
	lo := slices.Clone(pts[elems[0]])
	hi := slices.Clone(pts[elems[0]])
	for _, e := range elems[1:] {
		for j := 0; j < k; j++ {
			lo[j] = min(lo[j], pts[e][j])
			hi[j] = max(hi[j], pts[e][j])
		}
	}
	p := piece{data: make([]Range, k), tsel: make([][]int, k), osel: make([]int, len(elems))}
	for j := 0; j < k; j++ {
		p.data[j] = UnitRange(lo[j], hi[j]+1)
		p.tsel[j] = make([]int, len(elems))
		for i, e := range elems {
			p.tsel[j][i] = pts[e][j] - lo[j]
		}
	}
	copy(p.osel, elems)
	return p
}

func boxVolume(pts [][]int, elems []int, k int) int {
	v := 1
	for j := 0; j < k; j++ {
		lo, hi := pts[elems[0]][j], pts[elems[0]][j]
		for _, e := range elems[1:] {
			lo = min(lo, pts[e][j])
			hi = max(hi, pts[e][j])
		}
		v *= hi - lo + 1
	}
	return v
}

func distinct(pts [][]int, elems []int) int {
	return len(splitDistinct(pts, elems))
}

// splitDistinct groups elements that address the same point.
func splitDistinct(pts [][]int, elems []int) [][]int {
	idx := map[string]int{}
	var out [][]int
	for _, e := range elems {
		key := fmt.Sprint(pts[e])
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], e)
	}
	return out
}

// combine forms every Cartesian combination of per-group pieces, first group
// varying slowest, and turns each into a DiskIndex.
func combine(ndims, outRank int, groups [][]groupSel) []DiskIndex {
	total := 1
	for _, g := range groups {
		total *= len(g)
	}
	out := make([]DiskIndex, 0, total)
	choice := make([]int, len(groups))
	for n := 0; n < total; n++ {
		d := DiskIndex{
			Tag:      n,
			Data:     make(Block, ndims),
			OutShape: make([]int, outRank),
			groups:   make([]groupSel, len(groups)),
		}
		for gi, g := range groups {
			gs := g[choice[gi]]
			d.groups[gi] = gs
			for j, ax := range gs.axes {
				d.Data[ax] = gs.data[j]
			}
			if gs.outDim >= 0 {
				d.OutShape[gs.outDim] = len(gs.tsel[0])
			}
		}
		d.TempShape = d.Data.Shape()
		out = append(out, d)

		for gi := len(groups) - 1; gi >= 0; gi-- {
			choice[gi]++
			if choice[gi] < len(groups[gi]) {
				break
			}
			choice[gi] = 0
		}
	}
	return out
}
