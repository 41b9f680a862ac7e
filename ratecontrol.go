package jpeg2000

// PCRD-opt (Post-Compression Rate-Distortion optimization) for JPEG2000
//
// This implements the rate control algorithm described in ITU-T T.800 Annex J.
// After EBCOT Tier-1 encoding produces per-pass data for each code block,
// the rate controller decides how to optimally truncate these passes across
// all code blocks to achieve a target bitrate or quality level.
//
// The core idea: each coding pass has a rate-distortion slope (ΔD/ΔR),
// measuring how much distortion is reduced per byte spent. By including
// passes in decreasing slope order, we get the best quality for any given
// byte budget. A bisection search on the slope threshold (lambda) efficiently
// finds the optimal truncation point for a target byte count.
//
// RateController reads directly off the CodeBlockJob/JobResult pair
// T1Scheduler.EncodeBatch leaves behind: PassInfo.Length/.DistortionDecrease
// carry everything the slope computation needs, so there is no separate
// encode-trace type to bridge through. A job whose Encode call failed, or
// that was never submitted to the scheduler, has a nil Result.Passes and is
// excluded from every layer's allocation; its slot in the returned []int (or
// []LayerAllocation) is -1.

import (
	"math"
	"sort"
)

// TruncationPoint represents a truncation point for a code block pass.
type TruncationPoint struct {
	JobIndex   int     // index into the jobs slice passed to NewRateController
	PassIndex  int     // number of passes to include (1-based: pass pi is recorded as pi+1)
	Bytes      int     // bytes of this pass alone
	Distortion float64 // distortion reduction: cumulative up to this pass from computeRDSlopes, this pass alone from computeRemainingSlopes
	Slope      float64 // R-D slope = ΔD/ΔR (distortion reduction per byte)
}

// LayerAllocation specifies which passes of each code block go into a
// quality layer.
type LayerAllocation struct {
	// NumPasses[i] = number of passes for jobs[i] in this layer, or -1 if
	// jobs[i] has no encoded output.
	NumPasses []int
}

// RateController performs PCRD-opt rate-distortion optimization over a
// batch of code blocks already run through T1Scheduler.EncodeBatch.
type RateController struct {
	jobs []*CodeBlockJob
}

// NewRateController creates a rate controller for the given encoded jobs.
// jobs is typically the same slice just passed to T1Scheduler.EncodeBatch.
func NewRateController(jobs []*CodeBlockJob) *RateController {
	return &RateController{jobs: jobs}
}

// hasOutput reports whether jobs[i] completed Encode successfully and so
// has a usable pass trace. Encode always assigns a non-nil (possibly
// zero-length) Passes slice, so this doubles as "was this job processed at
// all" without needing a side index of skipped jobs.
func (rc *RateController) hasOutput(i int) bool {
	job := rc.jobs[i]
	return job.Err == nil && job.Result.Passes != nil
}

// OptimizeSingleLayer finds optimal truncation for a single quality layer
// to achieve the target byte count across rc.jobs.
//
// Returns the number of passes to include for each job, or -1 for a job
// that has no encoded output.
func (rc *RateController) OptimizeSingleLayer(targetBytes int) []int {
	n := len(rc.jobs)
	result := make([]int, n)
	for i := range result {
		if !rc.hasOutput(i) {
			result[i] = -1
		}
	}

	if targetBytes <= 0 || n == 0 {
		return result
	}

	// Check if distortion values are available. If all are zero,
	// fall back to uniform truncation.
	if !rc.hasDistortionInfo() {
		for i, v := range rc.uniformTruncation(targetBytes) {
			if rc.hasOutput(i) {
				result[i] = v
			}
		}
		return result
	}

	// Compute R-D slopes for all truncation points.
	slopes := rc.computeRDSlopes()
	if len(slopes) == 0 {
		return result
	}

	// Check total bytes if we include everything.
	totalAvailable := 0
	for i, job := range rc.jobs {
		if !rc.hasOutput(i) {
			continue
		}
		for _, p := range job.Result.Passes {
			totalAvailable += p.Length
		}
	}
	if targetBytes >= totalAvailable {
		for i, job := range rc.jobs {
			if rc.hasOutput(i) {
				result[i] = len(job.Result.Passes)
			}
		}
		return result
	}

	// Binary search on the slope threshold (lambda).
	// For a given lambda, include all passes with slope >= lambda.
	// Find lambda such that total bytes is closest to targetBytes without exceeding it.
	lambda := rc.bisectLambda(slopes, targetBytes)

	// Apply the threshold: include passes with slope >= lambda
	for i, v := range rc.applyThreshold(lambda, slopes) {
		if rc.hasOutput(i) {
			result[i] = v
		}
	}

	return result
}

// OptimizeLayers performs multi-layer PCRD-opt over rc.jobs.
// targetBytesPerLayer[i] = cumulative target bytes for layer i.
// Returns LayerAllocation for each layer; a job with no encoded output
// carries -1 in every layer.
func (rc *RateController) OptimizeLayers(targetBytesPerLayer []int) []LayerAllocation {
	numLayers := len(targetBytesPerLayer)
	n := len(rc.jobs)

	if numLayers == 0 || n == 0 {
		return nil
	}

	allocations := make([]LayerAllocation, numLayers)
	for layer := range allocations {
		allocations[layer] = LayerAllocation{NumPasses: make([]int, n)}
		for i := range allocations[layer].NumPasses {
			if !rc.hasOutput(i) {
				allocations[layer].NumPasses[i] = -1
			}
		}
	}

	// Track how many passes have been allocated so far per job across all
	// previous layers.
	allocatedPasses := make([]int, n)

	for layer := range numLayers {
		target := targetBytesPerLayer[layer]
		if target <= 0 {
			continue
		}

		// Compute how many bytes have already been allocated in previous layers.
		totalAllocatedBytes := 0
		for i, job := range rc.jobs {
			if !rc.hasOutput(i) {
				continue
			}
			for p := 0; p < allocatedPasses[i] && p < len(job.Result.Passes); p++ {
				totalAllocatedBytes += job.Result.Passes[p].Length
			}
		}

		// The remaining budget for this layer's cumulative target.
		remainingTarget := target - totalAllocatedBytes
		if remainingTarget <= 0 {
			// Already exceeded this layer's budget with previous layers.
			// Each job keeps its previous allocation (0 new passes).
			continue
		}

		// Build truncation points from only the remaining (unallocated) passes.
		remainingSlopes := rc.computeRemainingSlopes(allocatedPasses)

		if len(remainingSlopes) == 0 {
			continue
		}

		// Check if remaining budget covers all remaining passes.
		totalRemaining := 0
		for _, tp := range remainingSlopes {
			totalRemaining += tp.Bytes
		}

		if remainingTarget >= totalRemaining {
			// Include all remaining passes
			for i, job := range rc.jobs {
				if !rc.hasOutput(i) {
					continue
				}
				allocations[layer].NumPasses[i] = len(job.Result.Passes) - allocatedPasses[i]
				allocatedPasses[i] = len(job.Result.Passes)
			}
			continue
		}

		if !rc.hasDistortionInfo() {
			// Uniform truncation for remaining passes
			layerPasses := rc.uniformTruncationRemaining(remainingTarget, allocatedPasses)
			for i, v := range layerPasses {
				if !rc.hasOutput(i) {
					continue
				}
				allocations[layer].NumPasses[i] = v
				allocatedPasses[i] += v
			}
			continue
		}

		// Bisect on lambda for this layer's remaining passes.
		lambda := rc.bisectLambda(remainingSlopes, remainingTarget)

		// Apply threshold to get per-job pass counts for this layer.
		totalPasses := rc.applyThreshold(lambda, remainingSlopes)

		// applyThreshold returns absolute pass counts; keep only the passes
		// beyond what earlier layers already allocated.
		for i, total := range totalPasses {
			if !rc.hasOutput(i) {
				continue
			}
			newPasses := max(total-allocatedPasses[i], 0)
			allocations[layer].NumPasses[i] = newPasses
			allocatedPasses[i] += newPasses
		}
	}

	return allocations
}

// computeRDSlopes computes the rate-distortion slope for each truncation
// point across every job with encoded output. The slope is ΔD/ΔR (change
// in distortion per change in bytes).
func (rc *RateController) computeRDSlopes() []TruncationPoint {
	var points []TruncationPoint

	for ji, job := range rc.jobs {
		if !rc.hasOutput(ji) {
			continue
		}
		cumBytes := 0
		cumDist := 0.0

		for pi, pass := range job.Result.Passes {
			if pass.Length == 0 {
				// Skip zero-length passes; they contribute no bytes.
				continue
			}

			deltaR := pass.Length
			deltaD := pass.DistortionDecrease

			cumBytes += deltaR
			cumDist += deltaD

			slope := 0.0
			if deltaR > 0 {
				slope = deltaD / float64(deltaR)
			}

			points = append(points, TruncationPoint{
				JobIndex:   ji,
				PassIndex:  pi + 1, // 1-based: "include pi+1 passes"
				Bytes:      deltaR,
				Distortion: cumDist,
				Slope:      slope,
			})
		}
	}

	return points
}

// computeRemainingSlopes computes R-D slopes for passes not yet allocated.
// allocatedPasses[i] = number of passes already allocated for jobs[i].
func (rc *RateController) computeRemainingSlopes(allocatedPasses []int) []TruncationPoint {
	var points []TruncationPoint

	for ji, job := range rc.jobs {
		if !rc.hasOutput(ji) {
			continue
		}
		startPass := allocatedPasses[ji]

		for pi := startPass; pi < len(job.Result.Passes); pi++ {
			pass := job.Result.Passes[pi]
			if pass.Length == 0 {
				continue
			}

			deltaR := pass.Length
			deltaD := pass.DistortionDecrease

			slope := 0.0
			if deltaR > 0 {
				slope = deltaD / float64(deltaR)
			}

			points = append(points, TruncationPoint{
				JobIndex:   ji,
				PassIndex:  pi + 1, // absolute pass index (1-based)
				Bytes:      deltaR,
				Distortion: deltaD,
				Slope:      slope,
			})
		}
	}

	return points
}

// bisectLambda performs binary search on the slope threshold to find the
// lambda value that yields total bytes closest to targetBytes without
// exceeding it.
func (rc *RateController) bisectLambda(slopes []TruncationPoint, targetBytes int) float64 {
	if len(slopes) == 0 {
		return math.MaxFloat64
	}

	// Find the range of slopes.
	minSlope := math.MaxFloat64
	maxSlope := -math.MaxFloat64
	for _, tp := range slopes {
		if tp.Slope < minSlope {
			minSlope = tp.Slope
		}
		if tp.Slope > maxSlope {
			maxSlope = tp.Slope
		}
	}

	// Edge case: all slopes are the same.
	if maxSlope-minSlope < 1e-15 {
		// Check if including everything fits.
		total := 0
		for _, tp := range slopes {
			total += tp.Bytes
		}
		if total <= targetBytes {
			return minSlope
		}
		// Cannot fit anything meaningfully; return a very high threshold.
		return maxSlope + 1.0
	}

	// Binary search: find the smallest lambda such that
	// sum of bytes for passes with slope >= lambda <= targetBytes.
	lo := minSlope
	hi := maxSlope

	// Perform enough iterations for convergence (50 iterations gives
	// precision well beyond what floating-point slopes require).
	for range 50 {
		mid := (lo + hi) / 2.0

		totalBytes := 0
		for _, tp := range slopes {
			if tp.Slope >= mid {
				totalBytes += tp.Bytes
			}
		}

		if totalBytes <= targetBytes {
			// We can afford this threshold or lower; try lower to include more.
			hi = mid
		} else {
			// Too many bytes; raise the threshold.
			lo = mid
		}
	}

	// Use the upper bound (hi) as the final lambda to ensure we do not
	// exceed the target. Then verify and adjust.
	lambda := hi

	// Final check: ensure we don't exceed target.
	totalBytes := 0
	for _, tp := range slopes {
		if tp.Slope >= lambda {
			totalBytes += tp.Bytes
		}
	}

	if totalBytes > targetBytes {
		// Nudge lambda up slightly. This can happen due to floating point.
		// Sort slopes descending and find the exact cutoff.
		sorted := make([]TruncationPoint, len(slopes))
		copy(sorted, slopes)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Slope > sorted[j].Slope
		})

		cumBytes := 0
		for _, tp := range sorted {
			if cumBytes+tp.Bytes > targetBytes {
				// The threshold should be just above this slope.
				lambda = tp.Slope + 1e-15
				break
			}
			cumBytes += tp.Bytes
		}
	}

	return lambda
}

// applyThreshold applies a slope threshold and returns the number of
// passes to include for each job. For each job, includes the maximal
// prefix of passes such that every included pass has slope >= lambda.
//
// The key constraint: passes must form a prefix (you cannot skip an earlier
// pass and include a later one from the same job). We include passes
// sequentially until we encounter one below the threshold.
func (rc *RateController) applyThreshold(lambda float64, slopes []TruncationPoint) []int {
	n := len(rc.jobs)
	result := make([]int, n)

	// Build a lookup: for each job, determine which passes meet the threshold.
	// Since passes must be included as a prefix, find the longest prefix where
	// all passes have slope >= lambda.
	//
	// First, index slopes by job.
	type passSlope struct {
		absPassIndex int // 1-based absolute pass index
		slope        float64
	}
	jobSlopes := make(map[int][]passSlope)
	for _, tp := range slopes {
		jobSlopes[tp.JobIndex] = append(jobSlopes[tp.JobIndex], passSlope{
			absPassIndex: tp.PassIndex,
			slope:        tp.Slope,
		})
	}

	for ji := range n {
		passes, ok := jobSlopes[ji]
		if !ok {
			continue
		}

		// Sort by absolute pass index to ensure prefix ordering.
		sort.Slice(passes, func(i, j int) bool {
			return passes[i].absPassIndex < passes[j].absPassIndex
		})

		// Include the longest prefix of passes with slope >= lambda.
		count := 0
		for _, ps := range passes {
			if ps.slope >= lambda {
				count = ps.absPassIndex
			} else {
				break
			}
		}
		result[ji] = count
	}

	return result
}

// hasDistortionInfo checks whether any job has non-zero distortion values.
// If distortion was not computed during encoding, we fall back to uniform truncation.
func (rc *RateController) hasDistortionInfo() bool {
	for ji, job := range rc.jobs {
		if !rc.hasOutput(ji) {
			continue
		}
		for _, pass := range job.Result.Passes {
			if pass.DistortionDecrease != 0 {
				return true
			}
		}
	}
	return false
}

// uniformTruncation distributes the byte budget proportionally across all
// jobs with encoded output when distortion information is unavailable. Each
// job gets a share of the budget proportional to its total encoded size.
func (rc *RateController) uniformTruncation(targetBytes int) []int {
	n := len(rc.jobs)
	result := make([]int, n)

	// Compute total bytes across all jobs.
	totalBytes := 0
	jobTotals := make([]int, n)
	for i, job := range rc.jobs {
		if !rc.hasOutput(i) {
			continue
		}
		for _, pass := range job.Result.Passes {
			jobTotals[i] += pass.Length
		}
		totalBytes += jobTotals[i]
	}

	if totalBytes == 0 {
		return result
	}

	if targetBytes >= totalBytes {
		for i, job := range rc.jobs {
			if rc.hasOutput(i) {
				result[i] = len(job.Result.Passes)
			}
		}
		return result
	}

	// Each job gets a proportional share.
	for i, job := range rc.jobs {
		if !rc.hasOutput(i) || jobTotals[i] == 0 {
			continue
		}

		jobBudget := int(float64(targetBytes) * float64(jobTotals[i]) / float64(totalBytes))

		// Find the maximum number of passes that fit in the budget.
		cumBytes := 0
		for pi, pass := range job.Result.Passes {
			cumBytes += pass.Length
			if cumBytes > jobBudget {
				break
			}
			result[i] = pi + 1
		}
	}

	return result
}

// uniformTruncationRemaining distributes the byte budget proportionally
// across remaining (unallocated) passes when distortion information is
// unavailable.
func (rc *RateController) uniformTruncationRemaining(targetBytes int, allocatedPasses []int) []int {
	n := len(rc.jobs)
	result := make([]int, n)

	// Compute total remaining bytes across all jobs.
	totalRemaining := 0
	jobRemaining := make([]int, n)
	for i, job := range rc.jobs {
		if !rc.hasOutput(i) {
			continue
		}
		for pi := allocatedPasses[i]; pi < len(job.Result.Passes); pi++ {
			jobRemaining[i] += job.Result.Passes[pi].Length
		}
		totalRemaining += jobRemaining[i]
	}

	if totalRemaining == 0 {
		return result
	}

	if targetBytes >= totalRemaining {
		for i, job := range rc.jobs {
			if rc.hasOutput(i) {
				result[i] = len(job.Result.Passes) - allocatedPasses[i]
			}
		}
		return result
	}

	// Each job gets a proportional share.
	for i, job := range rc.jobs {
		if !rc.hasOutput(i) || jobRemaining[i] == 0 {
			continue
		}

		jobBudget := int(float64(targetBytes) * float64(jobRemaining[i]) / float64(totalRemaining))

		// Find the maximum number of remaining passes that fit.
		cumBytes := 0
		for pi := allocatedPasses[i]; pi < len(job.Result.Passes); pi++ {
			cumBytes += job.Result.Passes[pi].Length
			if cumBytes > jobBudget {
				break
			}
			result[i]++
		}
	}

	return result
}

// OptimizeTileRate runs PCRD-opt truncation over a batch of jobs already
// encoded by T1Scheduler.EncodeBatch, selecting how many passes of each
// code block survive under a byte budget for the tile. Jobs whose Encode
// call failed or that were never submitted for encoding are skipped; their
// slot in the returned []int is -1.
func OptimizeTileRate(jobs []*CodeBlockJob, targetBytes int) []int {
	return NewRateController(jobs).OptimizeSingleLayer(targetBytes)
}

// OptimizeTileLayers is OptimizeTileRate's progressive-quality counterpart:
// it runs multi-layer PCRD-opt over a completed encode batch. A job that
// failed or was never encoded gets -1 in every layer.
func OptimizeTileLayers(jobs []*CodeBlockJob, targetBytesPerLayer []int) []LayerAllocation {
	if len(targetBytesPerLayer) == 0 {
		return nil
	}
	allocations := NewRateController(jobs).OptimizeLayers(targetBytesPerLayer)
	if allocations != nil {
		return allocations
	}
	// len(jobs) == 0: OptimizeLayers returns nil for that case, but callers
	// of the tile-facing API expect one LayerAllocation per requested layer
	// even when there is nothing to allocate.
	allocations = make([]LayerAllocation, len(targetBytesPerLayer))
	for layer := range allocations {
		allocations[layer] = LayerAllocation{NumPasses: make([]int, len(jobs))}
	}
	return allocations
}
