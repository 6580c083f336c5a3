package core

import (
	"sync"
	"testing"
)

// TestJobQueue_FIFO verifies FIFO ordering
// Given: A jobQueue with 5 jobs
// When: Jobs are popped
// Then: They come out in push order
func TestJobQueue_FIFO(t *testing.T) {
	// Arrange
	q := newJobQueue()
	jobs := newTestJobs(5)
	for _, j := range jobs {
		q.Push(j)
	}

	// Act & Assert
	for i := range jobs {
		got, ok := q.Pop()
		if !ok || got != jobs[i] {
			t.Fatalf("Pop() #%d returned the wrong job", i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue ok = true, want false")
	}
}

// TestJobQueue_PopUpTo verifies batch retrieval
// Given: A queue with 5 jobs
// When: PopUpTo(3) is called
// Then: The 3 oldest jobs are returned and 2 remain
func TestJobQueue_PopUpTo(t *testing.T) {
	q := newJobQueue()
	jobs := newTestJobs(5)
	q.PushBatch(jobs)

	batch := q.PopUpTo(3)

	if len(batch) != 3 || batch[0] != jobs[0] || batch[2] != jobs[2] {
		t.Fatalf("PopUpTo(3) returned %d jobs in the wrong order", len(batch))
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}

	// the batch must not alias the queue's storage
	q.Push(newTestJobs(1)[0])
	if batch[0] != jobs[0] {
		t.Error("batch changed after a later push")
	}

	rest := q.PopUpTo(10)
	if len(rest) != 3 {
		t.Errorf("PopUpTo(10) = %d jobs, want 3", len(rest))
	}
	if q.PopUpTo(1) != nil {
		t.Error("PopUpTo on empty queue != nil")
	}
}

// TestJobQueue_Compaction verifies the backing array shrinks
// Given: A queue grown to 1000 jobs
// When: All but 10 are popped
// Then: Capacity shrinks well below the peak
func TestJobQueue_Compaction(t *testing.T) {
	q := newJobQueue()
	q.PushBatch(newTestJobs(1000))

	for range 990 {
		q.Pop()
	}

	q.mu.Lock()
	c := cap(q.jobs)
	q.mu.Unlock()
	if c >= 1000 {
		t.Errorf("cap = %d after draining, want < 1000", c)
	}
	if q.Len() != 10 {
		t.Errorf("Len() = %d, want 10", q.Len())
	}
}

func TestJobQueue_Clear(t *testing.T) {
	q := newJobQueue()
	q.PushBatch(newTestJobs(4))

	out := q.Clear()

	if len(out) != 4 || !q.IsEmpty() {
		t.Errorf("Clear() = %d jobs, IsEmpty() = %v, want 4, true", len(out), q.IsEmpty())
	}
}

// TestJobQueue_ConcurrentPushPop verifies no job is lost or duplicated
// Given: 4 producers pushing 1000 jobs each
// When: 4 consumers pop concurrently
// Then: Exactly 4000 distinct jobs are popped
func TestJobQueue_ConcurrentPushPop(t *testing.T) {
	q := newJobQueue()
	const producers, perProducer = 4, 1000

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, j := range newTestJobs(perProducer) {
				q.Push(j)
			}
		}()
	}

	var mu sync.Mutex
	seen := make(map[*job]int)
	done := make(chan struct{})
	var consumers sync.WaitGroup
	for range 4 {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				j, ok := q.Pop()
				if !ok {
					select {
					case <-done:
						if q.IsEmpty() {
							return
						}
					default:
					}
					continue
				}
				mu.Lock()
				seen[j]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	close(done)
	consumers.Wait()

	if len(seen) != producers*perProducer {
		t.Fatalf("popped %d distinct jobs, want %d", len(seen), producers*perProducer)
	}
	for _, n := range seen {
		if n != 1 {
			t.Fatalf("job popped %d times, want 1", n)
		}
	}
}
