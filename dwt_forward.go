package jpeg2000

// DwtForward runs the multi-level 2-D forward wavelet transform over a
// tile component's sample buffer, selecting the 5/3 or 9/7 kernel from its
// QMFBID. For each resolution level, finest to coarsest, it applies the
// 1-D lifting kernel along columns of the current LL region, then along
// rows, de-interleaving the result into that level's four sub-bands. Each
// level's cas bit is derived from that level's own canvas bounds (via
// resolutionBounds), not assumed to be zero, so a tile component whose
// canvas origin is not itself even gets the correct parity at every level.
// The number of levels is NumDecompositionLevels(); the transform operates
// in place over the component's own buffer, using only a per-row scratch.
func DwtForward(tc *TileComponent) error {
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
		Analyze2D_53_WithDims(tc.Samples, resDims)
	case QMFIrreversible:
		if tc.SamplesF == nil {
			return ErrUnsupportedWavelet
		}
		Analyze2D_97_WithDims(tc.SamplesF, resDims)
	default:
		return ErrUnsupportedWavelet
	}
	return nil
}
