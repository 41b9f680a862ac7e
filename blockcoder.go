package jpeg2000

// BlockCoderFacade is the opaque per-code-block entropy coding capability
// consumed by T1Scheduler. Implementations must be re-entrant across
// concurrent calls on distinct instances and must not touch state shared
// between instances; T1Scheduler guarantees each worker calls through its
// own exclusively-owned facade.
type BlockCoderFacade interface {
	// Encode runs every applicable coding pass over job's coefficients and
	// returns the compressed bytes, the per-pass rate/distortion trace,
	// and the number of magnitude bit planes actually coded.
	Encode(job *CodeBlockJob) (JobResult, error)

	// Decode reconstructs coefficients from job's compressed bytes,
	// stopping after NumPasses passes (or fewer, if the stream truncates).
	Decode(job *CodeBlockJob) (JobResult, error)
}

// PassInfo records one coding pass's contribution to the rate-distortion
// trace produced by Encode.
type PassInfo struct {
	Rate               int     // cumulative bytes through this pass
	DistortionDecrease float64 // reduction in mean-squared error this pass contributes
	Length             int     // bytes added by this pass alone
}

// JobResult holds everything a BlockCoderFacade call produces for one
// CodeBlockJob. Only the fields relevant to the call direction are
// populated: Encode fills EncodedBytes/Passes/NumBitPlanes/Distortion;
// Decode fills Samples/NumPassesDecoded.
type JobResult struct {
	EncodedBytes []byte
	Passes       []PassInfo
	NumBitPlanes int

	Samples          [][]int32
	NumPassesDecoded int

	// Distortion is the job's contribution to the tile's distortion
	// accumulator; T1Scheduler merges it under a mutex when rate control
	// is requested, and discards it otherwise.
	Distortion float64
}

// CodeBlockJob is the immutable-by-convention descriptor a scheduler worker
// consumes exactly once. It borrows its coefficient plane and compressed
// block from the caller; the worker fills Result and the scheduler merges
// it back, after which the job is not touched again.
type CodeBlockJob struct {
	Subband SubbandType
	Width   int
	Height  int

	// Mb is the number of candidate magnitude bit planes for this block,
	// as supplied by QuantizationBridge.Kmax.
	Mb int

	// Coeffs is the encode-direction input: the sub-band coefficient
	// window for this code block, Height rows of Width int32 each.
	Coeffs [][]int32

	// Compressed is the decode-direction input.
	Compressed *CodeBlock

	Result JobResult
	Err    error
}

// ebcotBlockCoder is the concrete BlockCoderFacade backed by the EBCOT
// tier-1 coder and MQ arithmetic coder. One instance is created per
// T1Scheduler worker and reused across every job that worker claims: its
// encoder/decoder state arrays are sized once to the largest code block and
// reset between jobs rather than reallocated.
type ebcotBlockCoder struct {
	enc *ebcotEncoder
	dec *ebcotDecoder
}

// NewEBCOTBlockCoder constructs a facade whose internal state arrays are
// sized for code blocks up to maxWidth x maxHeight, the largest a caller
// will submit to this instance.
func NewEBCOTBlockCoder(maxWidth, maxHeight int) BlockCoderFacade {
	return &ebcotBlockCoder{
		enc: newEBCOTEncoder(maxWidth, maxHeight),
		dec: newEBCOTDecoder(maxWidth, maxHeight),
	}
}

func (c *ebcotBlockCoder) Encode(job *CodeBlockJob) (JobResult, error) {
	eb := c.enc.EncodeCodeBlock(job.Coeffs, job.Subband, job.Mb)

	passes := make([]PassInfo, len(eb.Passes))
	var allBytes []byte
	var cumulative float64
	var cumulativeBytes int
	for i, p := range eb.Passes {
		cumulative += p.Distortion
		cumulativeBytes += p.Length
		passes[i] = PassInfo{Rate: cumulativeBytes, DistortionDecrease: p.Distortion, Length: p.Length}
		allBytes = append(allBytes, p.Data...)
	}

	return JobResult{
		EncodedBytes: allBytes,
		Passes:       passes,
		NumBitPlanes: eb.NumBitPlanes,
		Distortion:   cumulative,
	}, nil
}

func (c *ebcotBlockCoder) Decode(job *CodeBlockJob) (JobResult, error) {
	if job.Compressed == nil {
		return JobResult{}, ErrCorruptBlock
	}
	if len(job.Compressed.Data) == 0 && job.Compressed.NumPasses > 0 {
		return JobResult{}, ErrTruncatedData
	}

	samples, err := c.dec.DecodeCodeBlock(job.Compressed, job.Subband)
	if err != nil {
		return JobResult{}, err
	}
	return JobResult{
		Samples:          samples,
		NumPassesDecoded: job.Compressed.NumPasses,
	}, nil
}
