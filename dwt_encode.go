package jpeg2000

// Analyze2D_53 performs forward 2D 5/3 wavelet transform (lossless).
// Input: image samples in coeffs[y][x].
// Output: subbands arranged as [LL, HL; LH, HH] per level.
// width, height: dimensions of the full image.
// levels: number of decomposition levels.
//
// Per JPEG2000 standard (ITU-T T.800): forward transform applies vertical
// analysis first (columns), then horizontal analysis (rows). This is the
// opposite of the inverse transform which does horizontal then vertical.
func Analyze2D_53(coeffs [][]int32, width, height, levels int) {
	if levels < 1 {
		return
	}

	// Process from finest to coarsest level
	for level := 1; level <= levels; level++ {
		// At level L (1-indexed), the working region is the LL subband
		// from the previous decomposition, with dimensions ceil(size / 2^(L-1)).
		// This matches the dimension formula used in Synthesize2D_53.
		levelWidth := (width + (1 << (level - 1)) - 1) >> (level - 1)
		levelHeight := (height + (1 << (level - 1)) - 1) >> (level - 1)

		// Vertical analysis first (process columns)
		for x := range levelWidth {
			col := make([]int32, levelHeight)
			for y := range levelHeight {
				col[y] = coeffs[y][x]
			}
			analyze1D_53(col)
			for y := range levelHeight {
				coeffs[y][x] = col[y]
			}
		}

		// Horizontal analysis second (process rows)
		for y := range levelHeight {
			analyze1D_53(coeffs[y][:levelWidth])
		}
	}
}

// Analyze2D_53_WithDims performs forward 2D 5/3 wavelet transform using
// explicit per-resolution canvas bounds instead of computing them from a
// single width/height pair, the forward counterpart to
// Synthesize2D_53_WithDims. resDims[i] is resolution level i's canvas
// bounds (0=coarsest); each level's CasCol()/CasRow() select the parity a
// tile at a non-canvas-aligned origin requires.
func Analyze2D_53_WithDims(coeffs [][]int32, resDims []ResolutionBounds) {
	levels := len(resDims) - 1
	if levels < 1 {
		return
	}

	for level := 1; level <= levels; level++ {
		resIdx := levels - level + 1
		levelWidth := resDims[resIdx].Width()
		levelHeight := resDims[resIdx].Height()
		casH := resDims[resIdx].CasCol()
		casV := resDims[resIdx].CasRow()

		// Vertical analysis first (process columns)
		for x := range levelWidth {
			col := make([]int32, levelHeight)
			for y := range levelHeight {
				col[y] = coeffs[y][x]
			}
			analyze1D_53_cas(col, casV)
			for y := range levelHeight {
				coeffs[y][x] = col[y]
			}
		}

		// Horizontal analysis second (process rows)
		for y := range levelHeight {
			analyze1D_53_cas(coeffs[y][:levelWidth], casH)
		}
	}
}

// Analyze2D_97_WithDims is Analyze2D_53_WithDims's irreversible counterpart.
func Analyze2D_97_WithDims(coeffs [][]float64, resDims []ResolutionBounds) {
	levels := len(resDims) - 1
	if levels < 1 {
		return
	}

	for level := 1; level <= levels; level++ {
		resIdx := levels - level + 1
		levelWidth := resDims[resIdx].Width()
		levelHeight := resDims[resIdx].Height()
		casH := resDims[resIdx].CasCol()
		casV := resDims[resIdx].CasRow()

		// Vertical analysis first (process columns)
		for x := range levelWidth {
			col := make([]float64, levelHeight)
			for y := range levelHeight {
				col[y] = coeffs[y][x]
			}
			analyze1D_97_cas(col, casV)
			for y := range levelHeight {
				coeffs[y][x] = col[y]
			}
		}

		// Horizontal analysis second (process rows)
		for y := range levelHeight {
			analyze1D_97_cas(coeffs[y][:levelWidth], casH)
		}
	}
}

// Analyze2D_97 performs forward 2D 9/7 wavelet transform (lossy).
// Input: image samples in coeffs[y][x].
// Output: subbands arranged as [LL, HL; LH, HH] per level.
// width, height: dimensions of the full image.
// levels: number of decomposition levels.
//
// Per JPEG2000 standard (ITU-T T.800): forward transform applies vertical
// analysis first (columns), then horizontal analysis (rows). This is the
// opposite of the inverse transform which does horizontal then vertical.
func Analyze2D_97(coeffs [][]float64, width, height, levels int) {
	if levels < 1 {
		return
	}

	// Process from finest to coarsest level
	for level := 1; level <= levels; level++ {
		// At level L (1-indexed), the working region is the LL subband
		// from the previous decomposition, with dimensions ceil(size / 2^(L-1)).
		// This matches the dimension formula used in Synthesize2D_97.
		levelWidth := (width + (1 << (level - 1)) - 1) >> (level - 1)
		levelHeight := (height + (1 << (level - 1)) - 1) >> (level - 1)

		// Vertical analysis first (process columns)
		for x := range levelWidth {
			col := make([]float64, levelHeight)
			for y := range levelHeight {
				col[y] = coeffs[y][x]
			}
			analyze1D_97(col)
			for y := range levelHeight {
				coeffs[y][x] = col[y]
			}
		}

		// Horizontal analysis second (process rows)
		for y := range levelHeight {
			analyze1D_97(coeffs[y][:levelWidth])
		}
	}
}
