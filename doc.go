// Package jpeg2000 implements the core signal-processing pipeline of a
// JPEG 2000 codec: the forward and inverse discrete wavelet transform over
// tile components, the block-sparse scratch array used for windowed
// reconstruction, quantization step-size bookkeeping, and a parallel
// tier-1 (EBCOT) code-block coder.
//
// It does not read or write codestreams, JP2 boxes, or image files, and it
// does not perform color-space conversion; those are external concerns
// built on top of the types and functions here.
//
// A reversible tile component is transformed with the 5/3 integer
// wavelet:
//
//	tc := &jpeg2000.TileComponent{X1: w, Y1: h, QMFBID: jpeg2000.QMFReversible, Samples: samples, Resolutions: levels}
//	jpeg2000.DwtForward(tc)
//	jpeg2000.DwtInverseFull(tc)
//
// Code blocks are coded in parallel through a T1Scheduler, which owns one
// BlockCoderFacade per worker and merges per-job distortion into a Tile's
// accumulator when rate control is requested:
//
//	sched := jpeg2000.NewT1Scheduler(4, func() jpeg2000.BlockCoderFacade {
//	    return jpeg2000.NewEBCOTBlockCoder(64, 64)
//	})
//	sched.EncodeBatch(jobs, tile, true)
package jpeg2000
