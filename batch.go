package diskarray

import (
	"fmt"
	"slices"
)

// StrategyKind selects how sparse selections are grouped into block operations.
type StrategyKind uint8

const (
	// ChunkRead issues exactly one block operation per intersected chunk.
	ChunkRead StrategyKind = iota
	// SubRanges splits selections into contiguous runs, reading whole
	// chunk-local spans where the selection is dense.
	SubRanges
	// NoBatch issues one block operation per maximal run of selected indices.
	NoBatch
)

func (k StrategyKind) String() string {
	switch k {
	case ChunkRead:
		return "ChunkRead"
	case SubRanges:
		return "SubRanges"
	case NoBatch:
		return "NoBatch"
	default:
		return fmt.Sprintf("StrategyKind(%d)", uint8(k))
	}
}

// DefaultDensityThreshold is the selected/spanned ratio from which a sparse
// selection is read as one covering range instead of several pieces.
const DefaultDensityThreshold = 0.5

// BatchStrategy is the policy used by the index resolver.
type BatchStrategy struct {
	Kind StrategyKind
	// AllowStepRange lets strided ranges through to backends that support them.
	AllowStepRange bool
	// DensityThreshold is compared to len(selection)/span. Selections at or
	// above it are read as a covering range and subsampled.
	DensityThreshold float64
}

// DefaultStrategy returns chunk-by-chunk batching without step ranges.
func DefaultStrategy() BatchStrategy {
	return BatchStrategy{Kind: ChunkRead, DensityThreshold: DefaultDensityThreshold}
}

func (s BatchStrategy) String() string {
	return fmt.Sprintf("%s(steprange=%t, density=%g)", s.Kind, s.AllowStepRange, s.DensityThreshold)
}

func (s BatchStrategy) dense(selected, span int) bool {
	if span <= 0 {
		return true
	}
	return float64(selected)/float64(span) >= s.DensityThreshold
}

// piece is one per-group building block of a DiskIndex: the backend ranges of
// the axes in the group and, for every selected element, its staging
// coordinate per axis and its output position.
type piece struct {
	data []Range
	// tsel[j][e] is the staging coordinate of element e on the j-th axis of the group.
	tsel [][]int
	// osel[e] is the output position of element e; nil for dropped dimensions.
	osel []int
}

func (p piece) count() int {
	if len(p.tsel) == 0 {
		return 0
	}
	return len(p.tsel[0])
}

// axisPieces groups the selected positions of one axis into pieces according
// to the strategy. pos[e] is the array index of output element e.
func (s BatchStrategy) axisPieces(cv ChunkVector, pos []int, stepOK bool) []piece {
	if len(pos) == 0 {
		return nil
	}
	sorted := sortedUnique(pos)
	lo, hi := sorted[0], sorted[len(sorted)-1]+1

	var ranges []Range
	switch s.Kind {
	case NoBatch:
		ranges = runs(sorted, stepOK)
	case SubRanges:
		if s.dense(len(sorted), hi-lo) {
			ranges = []Range{UnitRange(lo, hi)}
			break
		}
		for _, grp := range groupByChunk(cv, sorted) {
			glo, ghi := grp[0], grp[len(grp)-1]+1
			if s.dense(len(grp), ghi-glo) {
				ranges = append(ranges, UnitRange(glo, ghi))
			} else {
				ranges = append(ranges, runs(grp, false)...)
			}
		}
		ranges = mergeTouching(ranges)
	default:
		for _, grp := range groupByChunk(cv, sorted) {
			ranges = append(ranges, UnitRange(grp[0], grp[len(grp)-1]+1))
		}
	}
	return assign(ranges, pos)
}

// assign distributes output elements to the ranges that contain them.
func assign(ranges []Range, pos []int) []piece {
	pieces := make([]piece, len(ranges))
	for i, r := range ranges {
		pieces[i] = piece{data: []Range{r}, tsel: [][]int{nil}, osel: []int{}}
	}
	for e, p := range pos {
		k := findRange(ranges, p)
		r := ranges[k]
		pieces[k].tsel[0] = append(pieces[k].tsel[0], (p-r.Start)/r.step())
		pieces[k].osel = append(pieces[k].osel, e)
	}
	return pieces
}

// findRange locates the range holding p; ranges are sorted and disjoint.
func findRange(ranges []Range, p int) int {
	lo, hi := 0, len(ranges)
	for lo < hi {
		m := (lo + hi) / 2
		if ranges[m].Stop <= p {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// runs splits sorted unique positions into maximal unit runs, or maximal
// arithmetic runs when steps are allowed.
func runs(sorted []int, stepOK bool) []Range {
	var out []Range
	for i := 0; i < len(sorted); {
		j := i + 1
		step := 1
		if stepOK && j < len(sorted) {
			step = sorted[j] - sorted[i]
		}
		for j < len(sorted) && sorted[j]-sorted[j-1] == step {
			j++
		}
		out = append(out, Range{Start: sorted[i], Stop: sorted[j-1] + 1, Step: step})
		i = j
	}
	return out
}

// mergeTouching joins consecutive unit ranges that share a boundary.
func mergeTouching(ranges []Range) []Range {
	if len(ranges) < 2 {
		return ranges
	}
	out := []Range{ranges[0]}
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if last.IsUnit() && r.IsUnit() && last.Stop == r.Start {
			last.Stop = r.Stop
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortedUnique(pos []int) []int {
	s := slices.Clone(pos)
	slices.Sort(s)
	return slices.Compact(s)
}

// groupByChunk splits sorted positions into per-chunk groups.
func groupByChunk(cv ChunkVector, sorted []int) [][]int {
	var groups [][]int
	start := 0
	cur := cv.FindChunk(sorted[0])
	for i := 1; i < len(sorted); i++ {
		if c := cv.FindChunk(sorted[i]); c != cur {
			groups = append(groups, sorted[start:i])
			start, cur = i, c
		}
	}
	return append(groups, sorted[start:])
}
