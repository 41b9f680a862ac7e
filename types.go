package jpeg2000

import "sync"

// SubbandType identifies one of the four orientations produced at each
// decomposition step.
type SubbandType int

const (
	SubbandLL SubbandType = iota
	SubbandHL
	SubbandLH
	SubbandHH
)

func (s SubbandType) String() string {
	switch s {
	case SubbandLL:
		return "LL"
	case SubbandHL:
		return "HL"
	case SubbandLH:
		return "LH"
	case SubbandHH:
		return "HH"
	default:
		return "?"
	}
}

// QMFBID selects the wavelet filter used by a tile component, mirroring the
// qmfbid field of the original codestream's COD marker.
type QMFBID int

const (
	QMFReversible   QMFBID = 1 // 5/3 integer, lossless
	QMFIrreversible QMFBID = 0 // 9/7 floating point, lossy
)

// ResolutionBounds is a rectangle in canvas coordinates, plus the parity
// (x0 mod 2, y0 mod 2) needed to select the cas bit for the lifting kernels
// that operate on it.
type ResolutionBounds struct {
	X0, Y0, X1, Y1 int
}

func (r ResolutionBounds) Width() int  { return r.X1 - r.X0 }
func (r ResolutionBounds) Height() int { return r.Y1 - r.Y0 }
func (r ResolutionBounds) CasCol() int { return r.X0 & 1 }
func (r ResolutionBounds) CasRow() int { return r.Y0 & 1 }

// Resolution describes one level of the decomposition hierarchy: its canvas
// bounds and, for levels above the coarsest, the sub-bands it contributes.
type Resolution struct {
	Bounds ResolutionBounds
	Bands  []BandInfo // empty at resolution 0 (LL only)
}

// BandInfo locates one sub-band's samples within its resolution's parent
// plane and records its code-block grid geometry.
type BandInfo struct {
	Type           SubbandType
	Bounds         ResolutionBounds // in the coordinate space of the band itself
	CodeBlockWidth int
	CodeBlockHeight int
}

// TileComponent is a rectangular integer sample grid belonging to one tile,
// one color/spectral component. It owns its sample buffer exclusively.
type TileComponent struct {
	X0, Y0, X1, Y1 int
	Precision      int // bit depth
	Signed         bool
	QMFBID         QMFBID
	Resolutions    []Resolution // index 0 = coarsest (LL-only)

	// Samples holds the working buffer as Height() rows of Width() int32
	// each, for a reversible (QMFReversible) component. During DwtForward
	// it is overwritten in place with the sub-band layout; during
	// DwtInverse it is consumed and overwritten with reconstructed pixels.
	Samples [][]int32
	// SamplesF mirrors Samples for an irreversible (QMFIrreversible)
	// component, whose working buffer is floating point throughout, per
	// the numeric-contract choice documented at the boundary in §6.
	SamplesF [][]float64
}

func (t *TileComponent) Width() int  { return t.X1 - t.X0 }
func (t *TileComponent) Height() int { return t.Y1 - t.Y0 }

// NumDecompositionLevels reports the number of wavelet decomposition levels,
// one fewer than the number of resolutions.
func (t *TileComponent) NumDecompositionLevels() int {
	if len(t.Resolutions) == 0 {
		return 0
	}
	return len(t.Resolutions) - 1
}

// resolutionBounds derives each resolution level's canvas bounds from the
// component's own origin and extent, ceil-dividing each endpoint by that
// level's power of two independently (not the width/height as a whole) so
// that a tile whose canvas origin is not itself a multiple of the level's
// divisor still gets the right bounds, and therefore the right cas parity,
// at every level. Index 0 is the coarsest (LL-only) resolution, index
// levels is the full tile extent, matching Resolutions' own indexing.
func (t *TileComponent) resolutionBounds(levels int) []ResolutionBounds {
	bounds := make([]ResolutionBounds, levels+1)
	for r := 0; r <= levels; r++ {
		shift := uint(levels - r)
		bounds[r] = ResolutionBounds{
			X0: ceilDivPow2(t.X0, shift),
			Y0: ceilDivPow2(t.Y0, shift),
			X1: ceilDivPow2(t.X1, shift),
			Y1: ceilDivPow2(t.Y1, shift),
		}
	}
	return bounds
}

func ceilDivPow2(v int, shift uint) int {
	if shift == 0 {
		return v
	}
	d := 1 << shift
	return (v + d - 1) / d
}

// Tile owns the mutable distortion accumulator shared by all of its code
// blocks' T1 jobs. The accumulator is only ever touched under Mu, and only
// when rate control has been requested for the batch.
type Tile struct {
	Mu        sync.Mutex
	DistoTile float64
}

// AddDistortion merges a job's distortion contribution into the tile's
// accumulator. Safe for concurrent use by T1Scheduler workers.
func (t *Tile) AddDistortion(d float64) {
	t.Mu.Lock()
	t.DistoTile += d
	t.Mu.Unlock()
}

// subbandBounds returns the orientation and pixel bounds (x0, y0, width,
// height) for sub-band index sbIdx within a tileW x tileH component
// decomposed into numLevels levels. Sub-band order matches the QCD
// marker's layout: [0]=LL_N, [1]=LH_N, [2]=HL_N, [3]=HH_N, [4]=LH_{N-1}, ...
func subbandBounds(sbIdx, numLevels, tileW, tileH int) (SubbandType, int, int, int, int) {
	if sbIdx == 0 {
		llW, llH := tileW, tileH
		for range numLevels {
			llW = (llW + 1) / 2
			llH = (llH + 1) / 2
		}
		return SubbandLL, 0, 0, llW, llH
	}

	detailIdx := sbIdx - 1
	levelFromCoarsest := detailIdx / 3
	orient := detailIdx % 3 // 0=LH, 1=HL, 2=HH
	level := numLevels - levelFromCoarsest

	llW, llH := tileW, tileH
	for range level {
		llW = (llW + 1) / 2
		llH = (llH + 1) / 2
	}

	parentW, parentH := tileW, tileH
	for i := 0; i < level-1; i++ {
		parentW = (parentW + 1) / 2
		parentH = (parentH + 1) / 2
	}

	hlW := parentW - llW
	lhH := parentH - llH

	switch orient {
	case 0: // LH: bottom-left of parent
		return SubbandLH, 0, llH, llW, lhH
	case 1: // HL: top-right of parent
		return SubbandHL, llW, 0, hlW, llH
	case 2: // HH: bottom-right of parent
		return SubbandHH, llW, llH, hlW, lhH
	}
	return SubbandLL, 0, 0, 0, 0
}

// subbandLevel returns the decomposition level a sub-band index belongs to,
// using the same [LL, LH_N, HL_N, HH_N, LH_{N-1}, ...] convention
// subbandBounds addresses rectangles with: level numLevels for the LL band,
// descending to level 1 for the finest detail bands. Callers that need a
// subband's orientation and level together, without its pixel rectangle,
// use this instead of discarding subbandBounds' width/height outputs.
func subbandLevel(sbIdx, numLevels int) int {
	if sbIdx == 0 {
		return numLevels
	}
	levelFromCoarsest := (sbIdx - 1) / 3
	return numLevels - levelFromCoarsest
}

// subbandGain53 returns the nominal dynamic-range gain for sub-band index
// sbIdx under the 5/3 reversible wavelet (ITU-T T.800 Table E.1):
// LL=0, LH/HL=1, HH=2. The irreversible 9/7 wavelet uses gain=0 for every
// sub-band (see dwt.go's BUG_WEIRD_TWO_INVK note on why that convention was
// chosen); QuantizationBridge uses this table only for a reversible component,
// and for an irreversible one sets every gain to 0 and folds orientation
// weighting into its step-size table instead.
func subbandGain53(sbIdx, numLevels int) int {
	if sbIdx == 0 {
		return 0
	}
	orient := (sbIdx - 1) % 3
	switch orient {
	case 0, 1:
		return 1
	case 2:
		return 2
	}
	return 0
}

// CodeBlock is the coding-pass state consumed by the EBCOT decoder for one
// code block: its coefficient plane dimensions, the coding-mode flags that
// govern context formation, and the compressed segments already split out
// of the incoming byte stream by the caller.
type CodeBlock struct {
	X, Y               int    // position within its sub-band, in sub-band samples
	Width, Height      int    // dimensions
	Data               []byte // MQ/raw-coded data for all passes, concatenated
	NumPasses          int    // number of coding passes to decode
	ZeroBitPlanes      int    // number of leading all-zero magnitude bit planes
	MagnitudeBitPlanes int    // Mb = GuardBits + Exp - 1, total candidate bit planes
	CodeBlockStyle     byte   // coding-pass style flags (Cblksty): bypass/reset/termall/vsc/predterm/segsym
	SegmentLengths     []int  // per-segment byte lengths, used when segmentation makes Data non-contiguous per pass
}

// bypassSegment describes a run of consecutive coding passes that share the
// same coding mode (MQ arithmetic vs. raw) inside a BYPASS-mode code block.
type bypassSegment struct {
	passCount int
	isRaw     bool
}

// computeBypassSegments derives the BYPASS-mode segment structure for a code
// block's passes. The pattern is fixed: the first segment holds up to 10
// passes under MQ coding, then segments alternate 2 raw passes (SPP+MRP)
// and 1 MQ pass (cleanup).
func computeBypassSegments(numPasses, numBitPlanes int) []bypassSegment {
	if numPasses <= 0 {
		return nil
	}

	var segments []bypassSegment
	passesRemaining := numPasses
	prevMaxPasses := 0
	segIdx := 0

	for passesRemaining > 0 {
		var maxPasses int
		if segIdx == 0 {
			maxPasses = 10
		} else if prevMaxPasses == 1 || prevMaxPasses == 10 {
			maxPasses = 2
		} else {
			maxPasses = 1
		}

		actualPasses := min(maxPasses, passesRemaining)
		isRaw := segIdx > 0 && maxPasses == 2

		segments = append(segments, bypassSegment{
			passCount: actualPasses,
			isRaw:     isRaw,
		})

		passesRemaining -= actualPasses
		prevMaxPasses = maxPasses
		segIdx++
	}

	return segments
}
