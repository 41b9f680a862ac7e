package jpeg2000

import "testing"

func newReversibleComponent(width, height, levels int) *TileComponent {
	return newReversibleComponentAt(0, 0, width, height, levels)
}

func newReversibleComponentAt(x0, y0, width, height, levels int) *TileComponent {
	samples := make([][]int32, height)
	for y := range samples {
		samples[y] = make([]int32, width)
	}
	return &TileComponent{
		X0: x0, Y0: y0, X1: x0 + width, Y1: y0 + height,
		Precision:   8,
		QMFBID:      QMFReversible,
		Resolutions: make([]Resolution, levels+1),
		Samples:     samples,
	}
}

// S1: 8-bit grayscale 4x4 all-ones TileComponent, reversible, 1
// decomposition level -> forward then inverse yields 4x4 all-ones.
func TestScenarioS1AllOnesRoundTrip(t *testing.T) {
	tc := newReversibleComponent(4, 4, 1)
	for y := range tc.Samples {
		for x := range tc.Samples[y] {
			tc.Samples[y][x] = 1
		}
	}

	if err := DwtForward(tc); err != nil {
		t.Fatalf("DwtForward: %v", err)
	}
	if err := DwtInverseFull(tc); err != nil {
		t.Fatalf("DwtInverseFull: %v", err)
	}

	for y := range tc.Samples {
		for x, v := range tc.Samples[y] {
			if v != 1 {
				t.Fatalf("[%d][%d] = %d, want 1", y, x, v)
			}
		}
	}
}

// S2: 16x16 TileComponent with v(x,y) = x + 16*y, reversible, 3 levels ->
// round-trip yields the identical buffer.
func TestScenarioS2RampRoundTrip(t *testing.T) {
	const n = 16
	tc := newReversibleComponent(n, n, 3)
	original := make([][]int32, n)
	for y := 0; y < n; y++ {
		original[y] = make([]int32, n)
		for x := 0; x < n; x++ {
			v := int32(x + 16*y)
			tc.Samples[y][x] = v
			original[y][x] = v
		}
	}

	if err := DwtForward(tc); err != nil {
		t.Fatalf("DwtForward: %v", err)
	}
	if err := DwtInverseFull(tc); err != nil {
		t.Fatalf("DwtInverseFull: %v", err)
	}

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if tc.Samples[y][x] != original[y][x] {
				t.Fatalf("[%d][%d] = %d, want %d", y, x, tc.Samples[y][x], original[y][x])
			}
		}
	}
}

// Property 1: round-trip (reversible) holds for arbitrary integer content,
// not just the literal scenarios.
func TestRoundTripReversibleProperty(t *testing.T) {
	const w, h, levels = 20, 12, 2
	tc := newReversibleComponent(w, h, levels)
	original := make([][]int32, h)
	seed := int32(7)
	for y := 0; y < h; y++ {
		original[y] = make([]int32, w)
		for x := 0; x < w; x++ {
			seed = seed*1103515245 + 12345
			v := (seed >> 8) % 200
			tc.Samples[y][x] = v
			original[y][x] = v
		}
	}

	if err := DwtForward(tc); err != nil {
		t.Fatalf("DwtForward: %v", err)
	}
	if err := DwtInverseFull(tc); err != nil {
		t.Fatalf("DwtInverseFull: %v", err)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if tc.Samples[y][x] != original[y][x] {
				t.Fatalf("[%d][%d] = %d, want %d", y, x, tc.Samples[y][x], original[y][x])
			}
		}
	}
}

// Property 1b: round-trip holds when the tile's canvas origin is odd in
// both axes, so the cas bits differ from the X0=Y0=0 case (at both levels
// along Y; along X only at the finest level, since ceil(3/2)=2 is even).
func TestRoundTripReversiblePropertyNonZeroOrigin(t *testing.T) {
	const x0, y0, w, h, levels = 3, 5, 20, 12, 2
	tc := newReversibleComponentAt(x0, y0, w, h, levels)
	original := make([][]int32, h)
	seed := int32(13)
	for y := 0; y < h; y++ {
		original[y] = make([]int32, w)
		for x := 0; x < w; x++ {
			seed = seed*1103515245 + 12345
			v := (seed >> 8) % 200
			tc.Samples[y][x] = v
			original[y][x] = v
		}
	}

	if err := DwtForward(tc); err != nil {
		t.Fatalf("DwtForward: %v", err)
	}
	if err := DwtInverseFull(tc); err != nil {
		t.Fatalf("DwtInverseFull: %v", err)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if tc.Samples[y][x] != original[y][x] {
				t.Fatalf("[%d][%d] = %d, want %d", y, x, tc.Samples[y][x], original[y][x])
			}
		}
	}
}

// Property 2: round-trip (irreversible) holds within +/-1 at 8-bit depth.
func TestRoundTripIrreversibleProperty(t *testing.T) {
	const w, h, levels = 16, 16, 2
	samplesF := make([][]float64, h)
	original := make([][]float64, h)
	seed := int32(11)
	for y := 0; y < h; y++ {
		samplesF[y] = make([]float64, w)
		original[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			seed = seed*1103515245 + 12345
			v := float64((seed >> 8) % 256)
			samplesF[y][x] = v
			original[y][x] = v
		}
	}
	tc := &TileComponent{
		X0: 0, Y0: 0, X1: w, Y1: h,
		Precision:   8,
		QMFBID:      QMFIrreversible,
		Resolutions: make([]Resolution, levels+1),
		SamplesF:    samplesF,
	}

	if err := DwtForward(tc); err != nil {
		t.Fatalf("DwtForward: %v", err)
	}
	if err := DwtInverseFull(tc); err != nil {
		t.Fatalf("DwtInverseFull: %v", err)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			diff := tc.SamplesF[y][x] - original[y][x]
			if diff < 0 {
				diff = -diff
			}
			if diff > 1.0 {
				t.Fatalf("[%d][%d] = %v, want within 1 of %v", y, x, tc.SamplesF[y][x], original[y][x])
			}
		}
	}
}

// Property 2b: the irreversible round-trip tolerance also holds when the
// tile's canvas origin is odd in both axes.
func TestRoundTripIrreversiblePropertyNonZeroOrigin(t *testing.T) {
	const x0, y0, w, h, levels = 1, 1, 16, 16, 2
	samplesF := make([][]float64, h)
	original := make([][]float64, h)
	seed := int32(17)
	for y := 0; y < h; y++ {
		samplesF[y] = make([]float64, w)
		original[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			seed = seed*1103515245 + 12345
			v := float64((seed >> 8) % 256)
			samplesF[y][x] = v
			original[y][x] = v
		}
	}
	tc := &TileComponent{
		X0: x0, Y0: y0, X1: x0 + w, Y1: y0 + h,
		Precision:   8,
		QMFBID:      QMFIrreversible,
		Resolutions: make([]Resolution, levels+1),
		SamplesF:    samplesF,
	}

	if err := DwtForward(tc); err != nil {
		t.Fatalf("DwtForward: %v", err)
	}
	if err := DwtInverseFull(tc); err != nil {
		t.Fatalf("DwtInverseFull: %v", err)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			diff := tc.SamplesF[y][x] - original[y][x]
			if diff < 0 {
				diff = -diff
			}
			if diff > 1.0 {
				t.Fatalf("[%d][%d] = %v, want within 1 of %v", y, x, tc.SamplesF[y][x], original[y][x])
			}
		}
	}
}
