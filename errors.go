package jpeg2000

import "errors"

// Error taxonomy for the core signal-processing pipeline: allocation and
// validation failures surface immediately to the caller; block-coder
// content failures are collected per job and reported after a scheduler
// batch finishes. No error here is retried inside the core.
var (
	// ErrInvalidRegion is returned by SparseArray for non-positive
	// constructor arguments, or by a non-forgiving read/write whose
	// rectangle falls outside [0,width)x[0,height) or is empty.
	ErrInvalidRegion = errors.New("jpeg2000: invalid region")

	// ErrOutOfMemory is returned when a SparseArray block or grid
	// allocation fails. Go's make() panics rather than returning an error,
	// so sparsearray.go's recoverOOM converts that panic into this
	// sentinel; it can only catch a pathological requested size (e.g. an
	// overflowing blockWidth*blockHeight), not genuine heap exhaustion,
	// which the Go runtime reports as an unrecoverable fatal error
	// regardless of what callers do.
	ErrOutOfMemory = errors.New("jpeg2000: out of memory")

	// ErrBlockNotAllocated is returned by SparseArray.Write when the
	// caller attempts to write into a block that Alloc has not already
	// materialized. The original source asserts this invariant instead of
	// reporting it; this implementation resolves that open question by
	// treating the violation as a hard error (see DESIGN.md).
	ErrBlockNotAllocated = errors.New("jpeg2000: write targets unallocated block")

	// ErrTruncatedData and ErrCorruptBlock are surfaced by BlockCoderFacade
	// implementations; T1Scheduler marks the offending job failed and
	// continues the remaining jobs in the batch.
	ErrTruncatedData = errors.New("jpeg2000: truncated data")
	ErrCorruptBlock  = errors.New("jpeg2000: corrupt block")

	// ErrUnsupportedWavelet is returned when a TileComponent names a
	// QMFBID this implementation does not know how to transform.
	ErrUnsupportedWavelet = errors.New("jpeg2000: unsupported wavelet filter")
)
