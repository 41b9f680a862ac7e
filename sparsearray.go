package jpeg2000

// sparseSample is the set of sample domains SparseArray can hold: the
// integer domain shared by the reversible 5/3 filter and the coded/wire
// representation of both filters, and the floating-point domain the
// irreversible 9/7 filter lifts in before quantization.
type sparseSample interface {
	~int32 | ~float64
}

// SparseArray is a block-sparse 2-D grid used as scratch storage during
// region-clipped inverse DWT reconstruction: it holds partially decoded
// sub-band samples without allocating storage for the whole resolution
// plane. It is parametrized over the sample domain so the same block
// bookkeeping serves the reversible filter's int32 plane and the
// irreversible filter's float64 plane.
//
// The grid is logically width x height, tiled by uniform blocks of
// blockWidth x blockHeight. A block slot either holds an exclusively owned
// buffer of blockWidth*blockHeight samples, or is absent, which is
// semantically equivalent to all-zero samples. Once allocated, a slot is
// never freed until the array itself is discarded.
type SparseArray[T sparseSample] struct {
	width, height           int
	blockWidth, blockHeight int
	gridWidth, gridHeight   int
	blocks                  []*sparseBlock[T]
}

type sparseBlock[T sparseSample] struct {
	data []T
}

// NewSparseArray constructs an array of the given logical dimensions, tiled
// by blockWidth x blockHeight blocks. All four arguments must be positive.
func NewSparseArray[T sparseSample](width, height, blockWidth, blockHeight int) (*SparseArray[T], error) {
	if width <= 0 || height <= 0 || blockWidth <= 0 || blockHeight <= 0 {
		return nil, ErrInvalidRegion
	}
	gridWidth := (width + blockWidth - 1) / blockWidth
	gridHeight := (height + blockHeight - 1) / blockHeight

	var blocks []*sparseBlock[T]
	if err := recoverOOM(func() {
		blocks = make([]*sparseBlock[T], gridWidth*gridHeight)
	}); err != nil {
		return nil, err
	}

	return &SparseArray[T]{
		width:       width,
		height:      height,
		blockWidth:  blockWidth,
		blockHeight: blockHeight,
		gridWidth:   gridWidth,
		gridHeight:  gridHeight,
		blocks:      blocks,
	}, nil
}

// recoverOOM runs alloc and turns an allocation panic into ErrOutOfMemory.
// Go's make() panics rather than returning an error on failure, and the
// only failures it can panic with are pathological requested sizes (a
// negative or overflowing length/capacity, e.g. blockWidth*blockHeight
// overflowing int on a 32-bit build) — genuine heap exhaustion is reported
// by the runtime as a fatal error that cannot be recovered at all. This
// converts the former into ErrOutOfMemory; the latter still terminates the
// process, which is the only outcome Go's allocator allows.
func recoverOOM(alloc func()) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrOutOfMemory
		}
	}()
	alloc()
	return nil
}

func (s *SparseArray[T]) isRegionValid(x0, y0, x1, y1 int) bool {
	return !(x0 < 0 || x0 >= s.width || x1 <= x0 || x1 > s.width ||
		y0 < 0 || y0 >= s.height || y1 <= y0 || y1 > s.height)
}

// Alloc ensures every block intersecting [x0,y0,x1,y1) is materialized and
// zero-initialized. Out-of-bounds or empty rectangles are a no-op success.
func (s *SparseArray[T]) Alloc(x0, y0, x1, y1 int) error {
	if !s.isRegionValid(x0, y0, x1, y1) {
		return nil
	}

	gridY0 := y0 / s.blockHeight
	gridY1 := (y1 - 1) / s.blockHeight
	gridX0 := x0 / s.blockWidth
	gridX1 := (x1 - 1) / s.blockWidth

	for gy := gridY0; gy <= gridY1; gy++ {
		for gx := gridX0; gx <= gridX1; gx++ {
			idx := gy*s.gridWidth + gx
			if s.blocks[idx] == nil {
				var data []T
				if err := recoverOOM(func() {
					data = make([]T, s.blockWidth*s.blockHeight)
				}); err != nil {
					return err
				}
				s.blocks[idx] = &sparseBlock[T]{data: data}
			}
		}
	}
	return nil
}

// Read copies samples from the logical rectangle [x0,y0,x1,y1) into dest,
// which is addressed as dest[i*destLineStride + j*destColStride] for the
// j-th column of the i-th row of the rectangle. Absent blocks contribute
// zeros. If the rectangle is invalid, Read returns success without
// touching dest when forgiving is true, else ErrInvalidRegion.
func (s *SparseArray[T]) Read(x0, y0, x1, y1 int, dest []T, destColStride, destLineStride int, forgiving bool) error {
	if !s.isRegionValid(x0, y0, x1, y1) {
		if forgiving {
			return nil
		}
		return ErrInvalidRegion
	}
	return s.readOrWrite(x0, y0, x1, y1, dest, destColStride, destLineStride, true)
}

// Write copies samples from src into the logical rectangle [x0,y0,x1,y1).
// Every block touched by the rectangle must already be allocated via
// Alloc; violating that precondition is a hard error, never undefined
// behavior (see the resolved Open Question in DESIGN.md).
func (s *SparseArray[T]) Write(x0, y0, x1, y1 int, src []T, srcColStride, srcLineStride int, forgiving bool) error {
	if !s.isRegionValid(x0, y0, x1, y1) {
		if forgiving {
			return nil
		}
		return ErrInvalidRegion
	}
	return s.readOrWrite(x0, y0, x1, y1, src, srcColStride, srcLineStride, false)
}

// readOrWrite is the dual-purpose block-row-by-block-row walk shared by
// Read and Write. buf is the caller's dest (read) or src (write) plane,
// addressed with the given column/line strides. For each block intersected
// by the rectangle, it computes the within-block offset at which the
// rectangle begins (blockXOffset, blockYOffset) and the per-block run
// length (xIncr, yIncr), then either copies samples in or out.
func (s *SparseArray[T]) readOrWrite(x0, y0, x1, y1 int, buf []T, colStride, lineStride int, isRead bool) error {
	gridY0 := y0 / s.blockHeight
	gridY1 := (y1 - 1) / s.blockHeight
	gridX0 := x0 / s.blockWidth
	gridX1 := (x1 - 1) / s.blockWidth

	bufY0 := 0
	for gy := gridY0; gy <= gridY1; gy++ {
		blockY0 := gy * s.blockHeight
		yStart := max(y0, blockY0)
		yEnd := min(y1, blockY0+s.blockHeight)
		blockYOffset := yStart - blockY0
		yIncr := yEnd - yStart

		bufX0 := 0
		for gx := gridX0; gx <= gridX1; gx++ {
			blockX0 := gx * s.blockWidth
			xStart := max(x0, blockX0)
			xEnd := min(x1, blockX0+s.blockWidth)
			blockXOffset := xStart - blockX0
			xIncr := xEnd - xStart

			block := s.blocks[gy*s.gridWidth+gx]

			if block == nil {
				if isRead {
					zeroRect(buf, bufX0, bufY0, xIncr, yIncr, colStride, lineStride)
				} else {
					return ErrBlockNotAllocated
				}
			} else {
				copyRect(block.data, s.blockWidth, blockXOffset, blockYOffset,
					buf, bufX0, bufY0, colStride, lineStride,
					xIncr, yIncr, isRead)
			}

			bufX0 += xIncr
		}
		bufY0 += yIncr
	}
	return nil
}

// zeroRect sets a yIncr x xIncr rectangle of buf, addressed at (bufX0,bufY0)
// with the given strides, to zero. The fast path (unit column stride)
// memsets each row; otherwise each sample is cleared individually. Both
// paths are observably identical; only their cost differs.
func zeroRect[T sparseSample](buf []T, bufX0, bufY0, xIncr, yIncr, colStride, lineStride int) {
	for row := 0; row < yIncr; row++ {
		rowBase := (bufY0+row)*lineStride + bufX0*colStride
		if colStride == 1 {
			clear(buf[rowBase : rowBase+xIncr])
			continue
		}
		for col := 0; col < xIncr; col++ {
			buf[rowBase+col*colStride] = 0
		}
	}
}

// copyRect transfers a yIncr x xIncr rectangle between a block's own plane
// (row-major, width blockStride) and the caller's buf. When isRead, data
// flows block -> buf; otherwise buf -> block. The contiguous-copy fast
// path applies whenever the destination's column stride is 1.
func copyRect[T sparseSample](block []T, blockStride, blockXOffset, blockYOffset int,
	buf []T, bufX0, bufY0, colStride, lineStride, xIncr, yIncr int, isRead bool) {
	for row := 0; row < yIncr; row++ {
		blockRowBase := (blockYOffset+row)*blockStride + blockXOffset
		bufRowBase := (bufY0+row)*lineStride + bufX0*colStride

		if isRead {
			if colStride == 1 {
				copy(buf[bufRowBase:bufRowBase+xIncr], block[blockRowBase:blockRowBase+xIncr])
				continue
			}
			for col := 0; col < xIncr; col++ {
				buf[bufRowBase+col*colStride] = block[blockRowBase+col]
			}
			continue
		}

		if colStride == 1 {
			copy(block[blockRowBase:blockRowBase+xIncr], buf[bufRowBase:bufRowBase+xIncr])
			continue
		}
		for col := 0; col < xIncr; col++ {
			block[blockRowBase+col] = buf[bufRowBase+col*colStride]
		}
	}
}
