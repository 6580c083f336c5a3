package core

import (
	"sync"
	"sync/atomic"
)

// workerQueueSize is the capacity of each worker's deque. Overflow goes to
// the injector.
const workerQueueSize = 63

// workDeque is a bounded double-ended queue owned by one worker. The owner
// pushes and pops at the back; thieves take from the front. A short-held
// mutex guards the ring; the length is mirrored for lock-free idle checks.
type workDeque struct {
	mu   sync.Mutex
	buf  [workerQueueSize]*job
	head int
	n    int
	size atomic.Int32
}

// PushBack appends j. It reports false when the deque is full.
func (d *workDeque) PushBack(j *job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n == workerQueueSize {
		return false
	}
	d.buf[(d.head+d.n)%workerQueueSize] = j
	d.n++
	d.size.Store(int32(d.n))
	return true
}

// PopBack removes the most recently pushed job.
func (d *workDeque) PopBack() *job {
	if d.size.Load() == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n == 0 {
		return nil
	}
	idx := (d.head + d.n - 1) % workerQueueSize
	j := d.buf[idx]
	d.buf[idx] = nil
	d.n--
	d.size.Store(int32(d.n))
	return j
}

// StealFront removes the oldest job.
func (d *workDeque) StealFront() *job {
	if d.size.Load() == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.popFrontLocked()
}

func (d *workDeque) popFrontLocked() *job {
	if d.n == 0 {
		return nil
	}
	j := d.buf[d.head]
	d.buf[d.head] = nil
	d.head = (d.head + 1) % workerQueueSize
	d.n--
	d.size.Store(int32(d.n))
	return j
}

// StealHalf removes the older half (rounded up) of the victim's jobs. The
// first job is returned for immediate execution; the rest are appended to
// dst, spilling to overflow when dst is full. It returns the number of jobs
// taken.
func (d *workDeque) StealHalf(dst *workDeque, overflow *jobQueue) (*job, int) {
	if d.size.Load() == 0 {
		return nil, 0
	}

	d.mu.Lock()
	k := (d.n + 1) / 2
	batch := make([]*job, 0, k)
	for range k {
		batch = append(batch, d.popFrontLocked())
	}
	d.mu.Unlock()

	if len(batch) == 0 {
		return nil, 0
	}
	for _, j := range batch[1:] {
		if dst == nil || !dst.PushBack(j) {
			overflow.Push(j)
		}
	}
	return batch[0], len(batch)
}

// Drain removes every job.
func (d *workDeque) Drain() []*job {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*job, 0, d.n)
	for d.n > 0 {
		out = append(out, d.popFrontLocked())
	}
	return out
}

func (d *workDeque) Len() int {
	return int(d.size.Load())
}

// free reports the number of empty slots.
func (d *workDeque) free() int {
	return workerQueueSize - d.Len()
}
