package core

import (
	"context"
	"strings"
	"testing"
)

// TestExecutionHistory_Wraps verifies the ring buffer keeps the newest records
// Given: A history with capacity 3
// When: 5 records are added
// Then: Recent returns the last 3, newest first
func TestExecutionHistory_Wraps(t *testing.T) {
	h := newExecutionHistory(3)
	if _, ok := h.Last(); ok {
		t.Fatal("Last() on empty history ok = true")
	}

	for i := 1; i <= 5; i++ {
		h.Add(TaskExecutionRecord{TaskID: uint64(i)})
	}

	recent := h.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("len(Recent(0)) = %d, want 3", len(recent))
	}
	for i, want := range []uint64{5, 4, 3} {
		if recent[i].TaskID != want {
			t.Errorf("recent[%d].TaskID = %d, want %d", i, recent[i].TaskID, want)
		}
	}
	if got := h.Recent(2); len(got) != 2 || got[0].TaskID != 5 {
		t.Errorf("Recent(2) = %+v", got)
	}
	if last, ok := h.Last(); !ok || last.TaskID != 5 {
		t.Errorf("Last() = (%+v, %v), want TaskID 5", last, ok)
	}
}

func historySample(context.Context) (int, error) { return 0, nil }

// TestExecutionHistory_RecordsTaskName verifies names come from the function
func TestExecutionHistory_RecordsTaskName(t *testing.T) {
	pool := newTestPool(t, Config{Backend: BackendManual})
	task := Spawn(context.Background(), pool, historySample)
	pool.Tick(1)
	if _, err := task.Poll(); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	last, ok := pool.LastTask()
	if !ok {
		t.Fatal("LastTask() ok = false")
	}
	if !strings.HasSuffix(last.Name, "historySample") {
		t.Errorf("Name = %q, want suffix historySample", last.Name)
	}
	if last.WorkerID != -1 || last.Panicked || last.TaskID != 1 {
		t.Errorf("record = %+v", last)
	}
}

func TestResolveTaskName_Anonymous(t *testing.T) {
	if got := resolveTaskName(nil); got != "anonymous" {
		t.Errorf("resolveTaskName(nil) = %q, want anonymous", got)
	}
	var fn func()
	if got := resolveTaskName(fn); got != "anonymous" {
		t.Errorf("resolveTaskName(nil func) = %q, want anonymous", got)
	}
	if got := resolveTaskName(42); got != "anonymous" {
		t.Errorf("resolveTaskName(42) = %q, want anonymous", got)
	}
}

func TestResolveTaskName_TrimsImportPath(t *testing.T) {
	if got := resolveTaskName(historySample); got != "core.historySample" {
		t.Errorf("resolveTaskName(historySample) = %q, want core.historySample", got)
	}
}
