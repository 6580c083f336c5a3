package core

import (
	"path"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

const defaultTaskHistoryCapacity = 100

// ring is a fixed-size overwrite-oldest buffer.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// newest returns up to n items, most recent first. n <= 0 means all.
func (r *ring[T]) newest(n int) []T {
	size := r.len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]T, n)
	for i := range out {
		out[i] = r.buf[(r.next-1-i+len(r.buf))%len(r.buf)]
	}
	return out
}

// executionHistory keeps the last finished tasks of a pool for Stats-style
// inspection.
type executionHistory struct {
	mu      sync.Mutex
	records ring[TaskExecutionRecord]
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &executionHistory{records: ring[TaskExecutionRecord]{buf: make([]TaskExecutionRecord, capacity)}}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	h.records.push(record)
	h.mu.Unlock()
}

// Recent returns up to limit records, newest first.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.records.len() == 0 {
		return nil
	}
	return h.records.newest(limit)
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.records.len() == 0 {
		return TaskExecutionRecord{}, false
	}
	return h.records.newest(1)[0], true
}

// resolveTaskName names a task after its function, without the import path:
// "core.historySample", "main.main.func2".
func resolveTaskName(fn any) string {
	const anonymous = "anonymous"

	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return anonymous
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil || f.Name() == "" {
		return anonymous
	}
	return strings.TrimSuffix(path.Base(f.Name()), "-fm")
}
