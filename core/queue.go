package core

import (
	"sync"
	"sync/atomic"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// jobQueue is an unbounded mutex-guarded FIFO. It backs the injector and the
// local and scope executors. The length is mirrored into an atomic so idle
// checks never take the lock.
type jobQueue struct {
	mu   sync.Mutex
	jobs []*job
	size atomic.Int64
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs: make([]*job, 0, defaultQueueCap),
	}
}

func (q *jobQueue) Push(j *job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.size.Store(int64(len(q.jobs)))
	q.mu.Unlock()
}

func (q *jobQueue) PushBatch(js []*job) {
	if len(js) == 0 {
		return
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, js...)
	q.size.Store(int64(len(q.jobs)))
	q.mu.Unlock()
}

func (q *jobQueue) Pop() (*job, bool) {
	if q.size.Load() == 0 {
		return nil, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	j := q.jobs[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	q.maybeCompactLocked()
	q.size.Store(int64(len(q.jobs)))

	return j, true
}

// PopUpTo removes and returns at most max jobs in FIFO order.
func (q *jobQueue) PopUpTo(max int) []*job {
	if max <= 0 || q.size.Load() == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.jobs)
	if n == 0 {
		return nil
	}

	if n <= max {
		batch := q.jobs
		q.jobs = make([]*job, 0, defaultQueueCap)
		q.size.Store(0)
		return batch
	}

	batch := make([]*job, max)
	copy(batch, q.jobs[:max])

	// Zero out the elements in the underlying array to prevent memory leak
	for i := range max {
		q.jobs[i] = nil
	}

	q.jobs = q.jobs[max:]
	q.maybeCompactLocked()
	q.size.Store(int64(len(q.jobs)))

	return batch
}

func (q *jobQueue) maybeCompactLocked() {
	n := len(q.jobs)
	c := cap(q.jobs)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.jobs = make([]*job, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]*job, n, newCap)
	copy(newSlice, q.jobs)
	q.jobs = newSlice
}

func (q *jobQueue) Len() int {
	return int(q.size.Load())
}

func (q *jobQueue) IsEmpty() bool {
	return q.size.Load() == 0
}

// Clear removes and returns every queued job.
func (q *jobQueue) Clear() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.jobs
	q.jobs = make([]*job, 0, defaultQueueCap)
	q.size.Store(0)
	return out
}
