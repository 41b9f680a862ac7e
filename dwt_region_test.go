package jpeg2000

import "testing"

// sampleFetcher implements BandFetcher by slicing sub-band rectangles
// directly out of an already forward-transformed, packed sample plane
// (the layout tc.Samples holds right after DwtForward), using the same
// sbIdx convention subbandBounds already defines.
type sampleFetcher struct {
	full         [][]int32
	tileW, tileH int
	levels       int
}

func orientOfBand(band SubbandType) int {
	switch band {
	case SubbandLH:
		return 0
	case SubbandHL:
		return 1
	case SubbandHH:
		return 2
	}
	return -1
}

func (f *sampleFetcher) Fetch(level int, band SubbandType, rect ResolutionBounds) ([][]int32, error) {
	var sbIdx int
	if band == SubbandLL {
		sbIdx = 0
	} else {
		// level is the resolution index DwtInverseRegion passes: 1 is the
		// coarsest detail resolution.
		levelFromCoarsest := level - 1
		sbIdx = levelFromCoarsest*3 + orientOfBand(band) + 1
	}
	_, x0, y0, _, _ := subbandBounds(sbIdx, f.levels, f.tileW, f.tileH)

	out := make([][]int32, rect.Height())
	for y := 0; y < rect.Height(); y++ {
		out[y] = make([]int32, rect.Width())
		srcY := y0 + rect.Y0 + y
		for x := 0; x < rect.Width(); x++ {
			srcX := x0 + rect.X0 + x
			out[y][x] = f.full[srcY][srcX]
		}
	}
	return out, nil
}

func (f *sampleFetcher) FetchF(level int, band SubbandType, rect ResolutionBounds) ([][]float64, error) {
	return nil, ErrUnsupportedWavelet
}

// sampleFetcherF is sampleFetcher's irreversible counterpart: it slices
// sub-band rectangles out of an already forward-transformed float64 plane.
type sampleFetcherF struct {
	full         [][]float64
	tileW, tileH int
	levels       int
}

func (f *sampleFetcherF) Fetch(level int, band SubbandType, rect ResolutionBounds) ([][]int32, error) {
	return nil, ErrUnsupportedWavelet
}

func (f *sampleFetcherF) FetchF(level int, band SubbandType, rect ResolutionBounds) ([][]float64, error) {
	var sbIdx int
	if band == SubbandLL {
		sbIdx = 0
	} else {
		levelFromCoarsest := level - 1
		sbIdx = levelFromCoarsest*3 + orientOfBand(band) + 1
	}
	_, x0, y0, _, _ := subbandBounds(sbIdx, f.levels, f.tileW, f.tileH)

	out := make([][]float64, rect.Height())
	for y := 0; y < rect.Height(); y++ {
		out[y] = make([]float64, rect.Width())
		srcY := y0 + rect.Y0 + y
		for x := 0; x < rect.Width(); x++ {
			srcX := x0 + rect.X0 + x
			out[y][x] = f.full[srcY][srcX]
		}
	}
	return out, nil
}

// TestDwtInverseRegionMatchesFullReconstruction exercises the windowed
// decode path with a window strictly smaller than the tile, checking that
// it reproduces exactly the pixels a full reconstruction would produce at
// those coordinates.
func TestDwtInverseRegionMatchesFullReconstruction(t *testing.T) {
	const n, levels = 16, 2

	forward := newReversibleComponent(n, n, levels)
	seed := int32(3)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			seed = seed*1103515245 + 12345
			forward.Samples[y][x] = (seed >> 8) % 128
		}
	}
	if err := DwtForward(forward); err != nil {
		t.Fatalf("DwtForward: %v", err)
	}

	full := newReversibleComponent(n, n, levels)
	for y := range full.Samples {
		copy(full.Samples[y], forward.Samples[y])
	}
	if err := DwtInverseFull(full); err != nil {
		t.Fatalf("DwtInverseFull: %v", err)
	}

	fetcher := &sampleFetcher{full: forward.Samples, tileW: n, tileH: n, levels: levels}
	window := ResolutionBounds{X0: 4, Y0: 4, X1: 12, Y1: 12}

	got, _, err := DwtInverseRegion(forward, window, fetcher)
	if err != nil {
		t.Fatalf("DwtInverseRegion: %v", err)
	}

	if len(got) != window.Height() || len(got[0]) != window.Width() {
		t.Fatalf("region size = %dx%d, want %dx%d", len(got[0]), len(got), window.Width(), window.Height())
	}
	for y := 0; y < window.Height(); y++ {
		for x := 0; x < window.Width(); x++ {
			want := full.Samples[window.Y0+y][window.X0+x]
			if got[y][x] != want {
				t.Fatalf("[%d][%d] = %d, want %d", y, x, got[y][x], want)
			}
		}
	}
}

// TestDwtInverseRegionMatchesFullReconstructionIrreversible is
// TestDwtInverseRegionMatchesFullReconstruction's 9/7 counterpart: the
// windowed decode of a forward-transformed float64 plane must match the
// corresponding window of a full reconstruction exactly, since both paths
// lift the identical coefficients and the SparseArray round-trip in
// between is a plain copy.
func TestDwtInverseRegionMatchesFullReconstructionIrreversible(t *testing.T) {
	const n, levels = 16, 2

	forwardSamples := make([][]float64, n)
	seed := int32(5)
	for y := 0; y < n; y++ {
		forwardSamples[y] = make([]float64, n)
		for x := 0; x < n; x++ {
			seed = seed*1103515245 + 12345
			forwardSamples[y][x] = float64((seed >> 8) % 128)
		}
	}
	forward := &TileComponent{
		X0: 0, Y0: 0, X1: n, Y1: n,
		Precision:   8,
		QMFBID:      QMFIrreversible,
		Resolutions: make([]Resolution, levels+1),
		SamplesF:    forwardSamples,
	}
	if err := DwtForward(forward); err != nil {
		t.Fatalf("DwtForward: %v", err)
	}

	fullSamples := make([][]float64, n)
	for y := range fullSamples {
		fullSamples[y] = make([]float64, n)
		copy(fullSamples[y], forward.SamplesF[y])
	}
	full := &TileComponent{
		X0: 0, Y0: 0, X1: n, Y1: n,
		Precision:   8,
		QMFBID:      QMFIrreversible,
		Resolutions: make([]Resolution, levels+1),
		SamplesF:    fullSamples,
	}
	if err := DwtInverseFull(full); err != nil {
		t.Fatalf("DwtInverseFull: %v", err)
	}

	fetcher := &sampleFetcherF{full: forward.SamplesF, tileW: n, tileH: n, levels: levels}
	window := ResolutionBounds{X0: 4, Y0: 4, X1: 12, Y1: 12}

	_, got, err := DwtInverseRegion(forward, window, fetcher)
	if err != nil {
		t.Fatalf("DwtInverseRegion: %v", err)
	}

	if len(got) != window.Height() || len(got[0]) != window.Width() {
		t.Fatalf("region size = %dx%d, want %dx%d", len(got[0]), len(got), window.Width(), window.Height())
	}
	for y := 0; y < window.Height(); y++ {
		for x := 0; x < window.Width(); x++ {
			want := full.SamplesF[window.Y0+y][window.X0+x]
			diff := got[y][x] - want
			if diff < 0 {
				diff = -diff
			}
			if diff > 1e-9 {
				t.Fatalf("[%d][%d] = %v, want %v", y, x, got[y][x], want)
			}
		}
	}
}
