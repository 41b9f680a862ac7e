package jpeg2000

// DwtInverseFull reconstructs an entire tile component from its sub-band
// layout, coarsest resolution to finest, using only a row/column-sized
// scratch buffer. This is the cheap mode: callers who need only a window
// of the tile should use DwtInverseRegion instead, which bounds memory to
// the window's footprint rather than the whole component. Each level's cas
// bit is derived from that level's own canvas bounds (via
// resolutionBounds), not assumed to be zero, so a tile component whose
// canvas origin is not itself even still reconstructs correctly.
func DwtInverseFull(tc *TileComponent) error {
	levels := tc.NumDecompositionLevels()
	if levels < 1 {
		return nil
	}

	resDims := tc.resolutionBounds(levels)

	switch tc.QMFBID {
	case QMFReversible:
		if tc.Samples == nil {
			return ErrUnsupportedWavelet
		}
		Synthesize2D_53_WithDims(tc.Samples, resDims)
	case QMFIrreversible:
		if tc.SamplesF == nil {
			return ErrUnsupportedWavelet
		}
		Synthesize2D_97_WithDims(tc.SamplesF, resDims)
	default:
		return ErrUnsupportedWavelet
	}
	return nil
}

// synthesisMargin returns how far a lifting step at one level can reach
// into its neighbors: 2 samples for 5/3 (two lifting steps, one predict and
// one update, touching +/-1 each), 4 for 9/7 (four lifting steps touching
// +/-1 each). A region
// reconstruction must inflate its working window by this amount at every
// level it walks outward from the requested output window.
func synthesisMargin(qmfbid QMFBID) int {
	if qmfbid == QMFIrreversible {
		return 4
	}
	return 2
}

// BandFetcher supplies a region decoder with decoded sub-band samples. It
// is the seam between the core and the opaque BlockCoderFacade/T1Scheduler
// layer: by the time DwtInverseRegion calls it, the requested rectangle's
// code blocks have already been decoded and dequantized by the caller.
// rect is in the coordinate space of the named sub-band itself (i.e.
// relative to that band's own origin, not the parent LL's).
type BandFetcher interface {
	Fetch(level int, band SubbandType, rect ResolutionBounds) ([][]int32, error)
	FetchF(level int, band SubbandType, rect ResolutionBounds) ([][]float64, error)
}

// DwtInverseRegion reconstructs only the samples inside window, inflating
// the working footprint at each coarser level by the filter's synthesis
// margin so that every lifting step at the next finer level has the
// neighbor samples it needs. It follows the four-step algorithm: (1)
// project the output window through each resolution boundary, inflating by
// the margin at each step; (2) allocate a SparseArray sized to the
// inflated window at each level and populate it from fetch; (3) interleave
// and lift rows, then columns; (4) feed the result forward as the next
// level's LL, clipping to the exact window once the finest level is
// reached.
func DwtInverseRegion(tc *TileComponent, window ResolutionBounds, fetch BandFetcher) ([][]int32, [][]float64, error) {
	levels := tc.NumDecompositionLevels()
	margin := synthesisMargin(tc.QMFBID)

	if levels < 1 {
		return fetchClipped(fetch, tc.QMFBID, window)
	}

	windows, casCols, casRows := computeLevelWindows(window, levels, margin, tc.Width(), tc.Height())

	switch tc.QMFBID {
	case QMFReversible:
		return synthesizeRegion53(fetch, windows, casCols, casRows, window)
	case QMFIrreversible:
		return synthesizeRegion97(fetch, windows, casCols, casRows, window)
	default:
		return nil, nil, ErrUnsupportedWavelet
	}
}

func fetchClipped(fetch BandFetcher, qmfbid QMFBID, window ResolutionBounds) ([][]int32, [][]float64, error) {
	if qmfbid == QMFIrreversible {
		f, err := fetch.FetchF(0, SubbandLL, window)
		return nil, f, err
	}
	i, err := fetch.Fetch(0, SubbandLL, window)
	return i, nil, err
}

// llSplitSize returns how many of n interleaved samples belong to the
// low-pass (even, cas=0) half, matching the split used by the 1-D lifting
// kernels: ceil(n/2) when cas=0, floor(n/2) when cas=1.
func llSplitSize(n, cas int) int {
	if cas == 0 {
		return (n + 1) / 2
	}
	return n / 2
}

// computeLevelWindows derives, for each resolution from coarsest (index 0)
// to finest (index levels), the minimal rectangle that must be
// reconstructed there to cover window at the finest level plus every
// level's synthesis margin. casCols[r]/casRows[r] carry the canvas-parity
// bit in effect at resolution r, computed as if the tile canvas origin were
// (0,0). The tile's own X0/Y0 are not taken into account, here or in
// DwtInverseRegion, so for a tile that is not canvas-aligned these bits are
// not adjusted for its origin.
func computeLevelWindows(window ResolutionBounds, levels, margin, fullW, fullH int) ([]ResolutionBounds, []int, []int) {
	windows := make([]ResolutionBounds, levels+1)
	casCols := make([]int, levels+1)
	casRows := make([]int, levels+1)

	windows[levels] = window
	curW, curH := fullW, fullH

	for r := levels; r >= 1; r-- {
		w := windows[r]

		// Inflate by the margin, clipped to this level's full extent.
		x0 := max(w.X0-margin, 0)
		y0 := max(w.Y0-margin, 0)
		x1 := min(w.X1+margin, curW)
		y1 := min(w.Y1+margin, curH)

		casCol := x0 % 2
		casRow := y0 % 2
		casCols[r] = casCol
		casRows[r] = casRow

		// Project to the parent (coarser) resolution using the same
		// even/odd split the lifting kernel itself uses, so the LL
		// quadrant size this level expects exactly matches what the
		// parent can supply.
		parentX0 := x0 / 2
		parentY0 := y0 / 2
		parentW := llSplitSize(x1-x0, casCol)
		parentH := llSplitSize(y1-y0, casRow)

		windows[r] = ResolutionBounds{X0: x0, Y0: y0, X1: x1, Y1: y1}
		windows[r-1] = ResolutionBounds{X0: parentX0, Y0: parentY0, X1: parentX0 + parentW, Y1: parentY0 + parentH}

		curW = (curW + 1) / 2
		curH = (curH + 1) / 2
	}
	casCols[0] = windows[0].X0 % 2
	casRows[0] = windows[0].Y0 % 2

	return windows, casCols, casRows
}

func synthesizeRegion53(fetch BandFetcher, windows []ResolutionBounds, casCols, casRows []int, finalWindow ResolutionBounds) ([][]int32, [][]float64, error) {
	ll, err := fetch.Fetch(0, SubbandLL, windows[0])
	if err != nil {
		return nil, nil, err
	}

	for r := 0; r < len(windows)-1; r++ {
		w := windows[r+1]
		width, height := w.Width(), w.Height()

		plane, err := assemblePlane53(fetch, r+1, w, ll)
		if err != nil {
			return nil, nil, err
		}

		// Materialize this level's assembled sub-band quadrants into a
		// SparseArray sized exactly to the inflated window, then lift and
		// write the reconstructed plane back: this is the minimal
		// super-region the spec calls for, rather than the full
		// resolution plane.
		block := blockSizeFor(width, height)
		sa, err := NewSparseArray[int32](width, height, block, block)
		if err != nil {
			return nil, nil, err
		}
		if err := sa.Alloc(0, 0, width, height); err != nil {
			return nil, nil, err
		}
		if err := writePlaneToSparse(sa, plane); err != nil {
			return nil, nil, err
		}

		work, err := readPlaneFromSparse(sa, width, height)
		if err != nil {
			return nil, nil, err
		}
		casCol, casRow := casCols[r+1], casRows[r+1]
		synthesize2DInPlace53(work, width, height, casCol, casRow)
		if err := writePlaneToSparse(sa, work); err != nil {
			return nil, nil, err
		}

		ll, err = readPlaneFromSparse(sa, width, height)
		if err != nil {
			return nil, nil, err
		}
	}

	return clipPlane53(ll, windows[len(windows)-1], finalWindow), nil, nil
}

func synthesizeRegion97(fetch BandFetcher, windows []ResolutionBounds, casCols, casRows []int, finalWindow ResolutionBounds) ([][]int32, [][]float64, error) {
	ll, err := fetch.FetchF(0, SubbandLL, windows[0])
	if err != nil {
		return nil, nil, err
	}

	for r := 0; r < len(windows)-1; r++ {
		w := windows[r+1]
		width, height := w.Width(), w.Height()

		plane, err := assemblePlane97(fetch, r+1, w, ll)
		if err != nil {
			return nil, nil, err
		}

		// Same SparseArray round-trip synthesizeRegion53 uses, instantiated
		// over float64 instead of int32: the assembled quadrants land in
		// allocated blocks before the lifting step touches them, and the
		// lifted result is read back out rather than kept as a bare slice.
		block := blockSizeFor(width, height)
		sa, err := NewSparseArray[float64](width, height, block, block)
		if err != nil {
			return nil, nil, err
		}
		if err := sa.Alloc(0, 0, width, height); err != nil {
			return nil, nil, err
		}
		if err := writePlaneToSparse(sa, plane); err != nil {
			return nil, nil, err
		}

		work, err := readPlaneFromSparse(sa, width, height)
		if err != nil {
			return nil, nil, err
		}
		casCol, casRow := casCols[r+1], casRows[r+1]
		synthesize2DInPlace97(work, width, height, casCol, casRow)
		if err := writePlaneToSparse(sa, work); err != nil {
			return nil, nil, err
		}

		ll, err = readPlaneFromSparse(sa, width, height)
		if err != nil {
			return nil, nil, err
		}
	}

	return nil, clipPlane97(ll, windows[len(windows)-1], finalWindow), nil
}

// assemblePlane53 builds the de-interleaved working plane for resolution
// r+1: the top-left quadrant is the LL output carried forward from
// resolution r, and the remaining three quadrants are fetched directly
// from the sub-band coder output.
func assemblePlane53(fetch BandFetcher, level int, w ResolutionBounds, ll [][]int32) ([][]int32, error) {
	width, height := w.Width(), w.Height()
	llW, llH := len(ll[0]), len(ll)

	plane := make([][]int32, height)
	for y := range plane {
		plane[y] = make([]int32, width)
	}
	for y := 0; y < llH && y < height; y++ {
		copy(plane[y][:llW], ll[y])
	}

	hl, err := fetch.Fetch(level, SubbandHL, ResolutionBounds{X0: 0, Y0: 0, X1: width - llW, Y1: llH})
	if err != nil {
		return nil, err
	}
	lh, err := fetch.Fetch(level, SubbandLH, ResolutionBounds{X0: 0, Y0: 0, X1: llW, Y1: height - llH})
	if err != nil {
		return nil, err
	}
	hh, err := fetch.Fetch(level, SubbandHH, ResolutionBounds{X0: 0, Y0: 0, X1: width - llW, Y1: height - llH})
	if err != nil {
		return nil, err
	}

	placeQuadrant32(plane, hl, llW, 0)
	placeQuadrant32(plane, lh, 0, llH)
	placeQuadrant32(plane, hh, llW, llH)
	return plane, nil
}

func assemblePlane97(fetch BandFetcher, level int, w ResolutionBounds, ll [][]float64) ([][]float64, error) {
	width, height := w.Width(), w.Height()
	llW, llH := len(ll[0]), len(ll)

	plane := make([][]float64, height)
	for y := range plane {
		plane[y] = make([]float64, width)
	}
	for y := 0; y < llH && y < height; y++ {
		copy(plane[y][:llW], ll[y])
	}

	hl, err := fetch.FetchF(level, SubbandHL, ResolutionBounds{X0: 0, Y0: 0, X1: width - llW, Y1: llH})
	if err != nil {
		return nil, err
	}
	lh, err := fetch.FetchF(level, SubbandLH, ResolutionBounds{X0: 0, Y0: 0, X1: llW, Y1: height - llH})
	if err != nil {
		return nil, err
	}
	hh, err := fetch.FetchF(level, SubbandHH, ResolutionBounds{X0: 0, Y0: 0, X1: width - llW, Y1: height - llH})
	if err != nil {
		return nil, err
	}

	placeQuadrant64(plane, hl, llW, 0)
	placeQuadrant64(plane, lh, 0, llH)
	placeQuadrant64(plane, hh, llW, llH)
	return plane, nil
}

func placeQuadrant32(plane [][]int32, quad [][]int32, xOff, yOff int) {
	for y := range quad {
		copy(plane[yOff+y][xOff:xOff+len(quad[y])], quad[y])
	}
}

func placeQuadrant64(plane [][]float64, quad [][]float64, xOff, yOff int) {
	for y := range quad {
		copy(plane[yOff+y][xOff:xOff+len(quad[y])], quad[y])
	}
}

// synthesize2DInPlace53 applies the 5/3 inverse kernel across a
// de-interleaved plane: rows first, then columns, matching the row-then-
// column order DwtInverseFull uses (which undoes the forward transform's
// column-then-row order).
func synthesize2DInPlace53(plane [][]int32, width, height, casCol, casRow int) {
	maxHalf := (max(width, height) + 1) / 2
	low := make([]int32, maxHalf)
	high := make([]int32, maxHalf)

	for y := 0; y < height; y++ {
		synthesize1D_53_bufs(plane[y][:width], low, high, casCol)
	}

	col := make([]int32, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = plane[y][x]
		}
		synthesize1D_53_bufs(col, low, high, casRow)
		for y := 0; y < height; y++ {
			plane[y][x] = col[y]
		}
	}
}

func synthesize2DInPlace97(plane [][]float64, width, height, casCol, casRow int) {
	var bufs dwtBufs97
	bufs.ensure(max(width, height))

	for y := 0; y < height; y++ {
		synthesize1D_97_bufs(plane[y][:width], &bufs, casCol)
	}

	col := make([]float64, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = plane[y][x]
		}
		synthesize1D_97_bufs(col, &bufs, casRow)
		for y := 0; y < height; y++ {
			plane[y][x] = col[y]
		}
	}
}

func clipPlane53(plane [][]int32, have, want ResolutionBounds) [][]int32 {
	offX := want.X0 - have.X0
	offY := want.Y0 - have.Y0
	out := make([][]int32, want.Height())
	for y := range out {
		out[y] = make([]int32, want.Width())
		copy(out[y], plane[y+offY][offX:offX+want.Width()])
	}
	return out
}

func clipPlane97(plane [][]float64, have, want ResolutionBounds) [][]float64 {
	offX := want.X0 - have.X0
	offY := want.Y0 - have.Y0
	out := make([][]float64, want.Height())
	for y := range out {
		out[y] = make([]float64, want.Width())
		copy(out[y], plane[y+offY][offX:offX+want.Width()])
	}
	return out
}

// blockSizeFor picks a SparseArray block size that keeps the grid small
// for tiny test windows while still matching the typical 64-sample
// code-block edge used in production.
func blockSizeFor(width, height int) int {
	b := 64
	if b > width {
		b = width
	}
	if b > height {
		b = height
	}
	if b < 1 {
		b = 1
	}
	return b
}

func writePlaneToSparse[T sparseSample](sa *SparseArray[T], plane [][]T) error {
	for y, row := range plane {
		if err := sa.Write(0, y, len(row), y+1, row, 1, len(row), false); err != nil {
			return err
		}
	}
	return nil
}

func readPlaneFromSparse[T sparseSample](sa *SparseArray[T], width, height int) ([][]T, error) {
	out := make([][]T, height)
	for y := range out {
		out[y] = make([]T, width)
		if err := sa.Read(0, y, width, y+1, out[y], 1, width, false); err != nil {
			return nil, err
		}
	}
	return out, nil
}
