package jpeg2000

import (
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// T1Scheduler fans a batch of CodeBlockJob descriptors out to a pool of
// worker threads, invoking a BlockCoderFacade exactly once per job and
// merging each job's distortion into the owning Tile when rate control is
// requested.
//
// With one worker, jobs run on the caller's goroutine in submission order:
// this is the deterministic fast path used by tests and by callers that
// don't need parallelism. With more than one worker, dispatch goes through
// a workerpool.Pool's atomic work-stealing index, so the set of work
// performed is identical but the order is not. Each call claims one
// exclusively-owned BlockCoderFacade context from ctxPool for the duration
// of its job and returns it before the next index is claimed, so two
// concurrent calls never share a context even though the pool's own
// goroutines are not pinned to a fixed context.
type T1Scheduler struct {
	numWorkers int
	coders     []BlockCoderFacade
	ctxPool    chan BlockCoderFacade
	pool       *workerpool.Pool
}

// NewT1Scheduler constructs a scheduler with numWorkers workers, each
// owning its own BlockCoderFacade built by newCoder. Contexts are created
// here, at construction, and live for the scheduler's lifetime; they are
// never held by more than one in-flight job at a time. numWorkers < 1 is
// treated as 1.
func NewT1Scheduler(numWorkers int, newCoder func() BlockCoderFacade) *T1Scheduler {
	if numWorkers < 1 {
		numWorkers = 1
	}
	coders := make([]BlockCoderFacade, numWorkers)
	ctxPool := make(chan BlockCoderFacade, numWorkers)
	for i := range coders {
		coders[i] = newCoder()
		ctxPool <- coders[i]
	}
	s := &T1Scheduler{numWorkers: numWorkers, coders: coders, ctxPool: ctxPool}
	if numWorkers > 1 {
		s.pool = workerpool.New(numWorkers)
	}
	return s
}

// NumWorkers reports the worker count fixed at construction.
func (s *T1Scheduler) NumWorkers() int { return s.numWorkers }

// Close releases the underlying worker pool, if one was created. Safe to
// call on a single-worker scheduler, which never allocates one.
func (s *T1Scheduler) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EncodeBatch invokes Encode on every job exactly once, across s's workers.
// When needsRateControl is true, each job's resulting distortion is merged
// into tile.DistoTile under tile's mutex; otherwise distortion is computed
// but discarded. Per-job failures are recorded in each job's Err field
// rather than aborting the batch, and EncodeBatch returns no aggregate
// status: the scheduler does not retry and does not stop at the first
// failure.
func (s *T1Scheduler) EncodeBatch(jobs []*CodeBlockJob, tile *Tile, needsRateControl bool) {
	s.run(jobs, tile, needsRateControl, func(coder BlockCoderFacade, job *CodeBlockJob) {
		res, err := coder.Encode(job)
		job.Result = res
		job.Err = err
	})
}

// DecodeBatch invokes Decode on every job exactly once, with the same
// scheduling and distortion-merge contract as EncodeBatch. Decode jobs
// ordinarily carry zero distortion; the merge step is a no-op unless a
// BlockCoderFacade implementation chooses to report reconstruction error
// as a distortion proxy.
func (s *T1Scheduler) DecodeBatch(jobs []*CodeBlockJob, tile *Tile, needsRateControl bool) {
	s.run(jobs, tile, needsRateControl, func(coder BlockCoderFacade, job *CodeBlockJob) {
		res, err := coder.Decode(job)
		job.Result = res
		job.Err = err
	})
}

func (s *T1Scheduler) run(jobs []*CodeBlockJob, tile *Tile, needsRateControl bool, call func(BlockCoderFacade, *CodeBlockJob)) {
	n := len(jobs)
	if n == 0 {
		return
	}

	merge := func(job *CodeBlockJob) {
		if needsRateControl && job.Err == nil {
			tile.AddDistortion(job.Result.Distortion)
		}
	}

	if s.numWorkers == 1 {
		for _, job := range jobs {
			call(s.coders[0], job)
			merge(job)
		}
		return
	}

	// Dispatch goes through the shared workerpool.Pool's atomic work-stealing
	// index: each call claims one job index, checks out an exclusively-owned
	// coder context for its duration, and returns it to ctxPool before the
	// next index is processed by whichever goroutine claims it.
	s.pool.ParallelForAtomic(n, func(idx int) {
		coder := <-s.ctxPool
		job := jobs[idx]
		call(coder, job)
		s.ctxPool <- coder
		merge(job)
	})
}
