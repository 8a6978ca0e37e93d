package diskarray

// groupOffsets holds, for every selected element of one axis group, its flat
// offset contribution in the staging buffer (t) and in the output buffer (o).
type groupOffsets struct {
	t, o []int
	// run is set when both t and o advance by one from element to element.
	run bool
}

// offsets precomputes the flat offsets of every group of d for the given
// output strides.
func (d *DiskIndex) offsets(outStrides []int) []groupOffsets {
	ts := cStrides(d.TempShape)
	offs := make([]groupOffsets, len(d.groups))
	for gi, g := range d.groups {
		n := len(g.tsel[0])
		t := make([]int, n)
		o := make([]int, n)
		for j, ax := range g.axes {
			for e, v := range g.tsel[j] {
				t[e] += v * ts[ax]
			}
		}
		if g.outDim >= 0 {
			for e, v := range g.osel {
				o[e] = v * outStrides[g.outDim]
			}
		}
		run := true
		for e := 1; e < n && run; e++ {
			run = t[e] == t[e-1]+1 && o[e] == o[e-1]+1
		}
		offs[gi] = groupOffsets{t: t, o: o, run: run}
	}
	return offs
}

// walk calls fn for every contiguous stretch of n elements starting at staging
// offset t and output offset o.
func walk(offs []groupOffsets, fn func(t, o, n int)) {
	if len(offs) == 0 {
		fn(0, 0, 1)
		return
	}
	last := len(offs) - 1
	var rec func(g, t, o int)
	rec = func(g, t, o int) {
		off := offs[g]
		if g == last {
			if off.run && len(off.t) > 0 {
				fn(t+off.t[0], o+off.o[0], len(off.t))
				return
			}
			for e := range off.t {
				fn(t+off.t[e], o+off.o[e], 1)
			}
			return
		}
		for e := range off.t {
			rec(g+1, t+off.t[e], o+off.o[e])
		}
	}
	rec(0, 0, 0)
}

// scatter copies the selected staging elements into the output buffer.
func scatter[T any](d *DiskIndex, temp, out []T, outStrides []int) {
	walk(d.offsets(outStrides), func(t, o, n int) {
		copy(out[o:o+n], temp[t:t+n])
	})
}

// gather copies source elements into their staging positions.
func gather[T any](d *DiskIndex, src, temp []T, outStrides []int) {
	walk(d.offsets(outStrides), func(t, o, n int) {
		copy(temp[t:t+n], src[o:o+n])
	})
}

// CopyND copies a hyper-rectangle of copyShape elements between two C-order
// buffers, starting at the given offsets.
func CopyND[T any](dst []T, dstShape, dstOffset []int, src []T, srcShape, srcOffset []int, copyShape []int) {
	if len(copyShape) == 0 {
		copy(dst[:1], src[:1])
		return
	}
	dstStrides := cStrides(dstShape)
	srcStrides := cStrides(srcShape)
	startSrc, startDst := 0, 0
	for i := range copyShape {
		startSrc += srcOffset[i] * srcStrides[i]
		startDst += dstOffset[i] * dstStrides[i]
	}

	last := len(copyShape) - 1
	var iterate func(dim, s, d int)
	iterate = func(dim, s, d int) {
		if dim == last {
			n := copyShape[dim]
			copy(dst[d:d+n], src[s:s+n])
			return
		}
		for i := 0; i < copyShape[dim]; i++ {
			iterate(dim+1, s+i*srcStrides[dim], d+i*dstStrides[dim])
		}
	}
	iterate(0, startSrc, startDst)
}
