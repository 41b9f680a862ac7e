package jpeg2000

import "testing"

func TestOptimizeTileRateTruncatesUnderBudget(t *testing.T) {
	sched := NewT1Scheduler(1, func() BlockCoderFacade {
		return NewEBCOTBlockCoder(8, 8)
	})

	jobs := make([]*CodeBlockJob, 4)
	for i := range jobs {
		coeffs := make([][]int32, 8)
		for y := range coeffs {
			coeffs[y] = make([]int32, 8)
			for x := range coeffs[y] {
				coeffs[y][x] = int32((x + y + i) % 37)
			}
		}
		jobs[i] = &CodeBlockJob{Subband: SubbandLL, Width: 8, Height: 8, Mb: 6, Coeffs: coeffs}
	}
	tile := &Tile{}
	sched.EncodeBatch(jobs, tile, true)

	for i, job := range jobs {
		if job.Err != nil {
			t.Fatalf("job %d: unexpected encode error %v", i, job.Err)
		}
	}

	fullBytes := 0
	for _, job := range jobs {
		fullBytes += len(job.Result.EncodedBytes)
	}
	if fullBytes == 0 {
		t.Fatal("expected nonzero encoded bytes across jobs")
	}

	allocated := OptimizeTileRate(jobs, fullBytes/2)
	if len(allocated) != len(jobs) {
		t.Fatalf("len(allocated) = %d, want %d", len(allocated), len(jobs))
	}
	for i, n := range allocated {
		if n < 0 {
			t.Fatalf("job %d: allocated = %d, want >= 0 for a successful job", i, n)
		}
		if n > jobs[i].Result.NumBitPlanes*3 {
			t.Fatalf("job %d: allocated %d passes exceeds plausible bound", i, n)
		}
	}
}

func TestOptimizeTileRateSkipsFailedJobs(t *testing.T) {
	jobs := []*CodeBlockJob{
		{Err: ErrCorruptBlock},
	}
	allocated := OptimizeTileRate(jobs, 1000)
	if allocated[0] != -1 {
		t.Fatalf("allocated[0] = %d, want -1 for a failed job", allocated[0])
	}
}

func TestOptimizeTileLayersAccumulatesAcrossLayers(t *testing.T) {
	sched := NewT1Scheduler(1, func() BlockCoderFacade {
		return NewEBCOTBlockCoder(8, 8)
	})

	jobs := make([]*CodeBlockJob, 3)
	for i := range jobs {
		coeffs := make([][]int32, 8)
		for y := range coeffs {
			coeffs[y] = make([]int32, 8)
			for x := range coeffs[y] {
				coeffs[y][x] = int32((x*3 + y + i) % 41)
			}
		}
		jobs[i] = &CodeBlockJob{Subband: SubbandLL, Width: 8, Height: 8, Mb: 6, Coeffs: coeffs}
	}
	tile := &Tile{}
	sched.EncodeBatch(jobs, tile, true)

	fullBytes := 0
	for i, job := range jobs {
		if job.Err != nil {
			t.Fatalf("job %d: unexpected encode error %v", i, job.Err)
		}
		fullBytes += len(job.Result.EncodedBytes)
	}
	if fullBytes == 0 {
		t.Fatal("expected nonzero encoded bytes across jobs")
	}

	targets := []int{fullBytes / 4, fullBytes / 2, fullBytes}
	layers := OptimizeTileLayers(jobs, targets)
	if len(layers) != len(targets) {
		t.Fatalf("len(layers) = %d, want %d", len(layers), len(targets))
	}

	cumulative := make([]int, len(jobs))
	for l, layer := range layers {
		if len(layer.NumPasses) != len(jobs) {
			t.Fatalf("layer %d: len(NumPasses) = %d, want %d", l, len(layer.NumPasses), len(jobs))
		}
		for i, n := range layer.NumPasses {
			if n < 0 {
				t.Fatalf("layer %d job %d: NumPasses = %d, want >= 0", l, i, n)
			}
			cumulative[i] += n
			if cumulative[i] > jobs[i].Result.NumBitPlanes*3 {
				t.Fatalf("layer %d job %d: cumulative passes %d exceeds plausible bound", l, i, cumulative[i])
			}
		}
	}
}

func TestOptimizeTileLayersSkipsFailedJobs(t *testing.T) {
	jobs := []*CodeBlockJob{
		{Err: ErrCorruptBlock},
	}
	layers := OptimizeTileLayers(jobs, []int{100, 200})
	for l, layer := range layers {
		if layer.NumPasses[0] != -1 {
			t.Fatalf("layer %d: NumPasses[0] = %d, want -1 for a failed job", l, layer.NumPasses[0])
		}
	}
}
