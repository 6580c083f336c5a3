package core

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parallelTestPools(t *testing.T) map[string]*TaskPool {
	t.Helper()
	return map[string]*TaskPool{
		"workers=0":   newTestPool(t, Config{ThreadCount: 0, MinChunkSize: 1}),
		"workers=1":   newTestPool(t, Config{ThreadCount: 1, MinChunkSize: 1}),
		"workers=4":   newTestPool(t, Config{ThreadCount: 4, MinChunkSize: 1}),
		"manual":      newTestPool(t, Config{Backend: BackendManual, MinChunkSize: 1}),
		"cooperative": newTestPool(t, Config{Backend: BackendCooperative, MinChunkSize: 1}),
	}
}

// TestParallelMap verifies order, length and idempotence on every backend
// Given: 1000 integers and pools of several shapes
// When: ParallelMap squares them with a chunk size of 7
// Then: The output matches a serial map and repeated runs agree
func TestParallelMap(t *testing.T) {
	data := make([]int, 1000)
	want := make([]int, len(data))
	for i := range data {
		data[i] = i
		want[i] = i * i
	}

	for name, pool := range parallelTestPools(t) {
		t.Run(name, func(t *testing.T) {
			ctx := testContext(t)
			square := func(v int) int { return v * v }

			got, err := ParallelMap(ctx, pool, data, 7, square)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("ParallelMap() mismatch (-want +got):\n%s", diff)
			}

			again, err := ParallelMap(ctx, pool, data, 7, square)
			require.NoError(t, err)
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("second ParallelMap() differs (-first +second):\n%s", diff)
			}
		})
	}
}

// TestParallelMap_AutoChunk verifies the default chunking covers every element
func TestParallelMap_AutoChunk(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 3})
	data := make([]string, 257)
	for i := range data {
		data[i] = strconv.Itoa(i)
	}

	got, err := ParallelMap(testContext(t), pool, data, 0, func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	})

	require.NoError(t, err)
	require.Len(t, got, len(data))
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestParallelMap_Empty(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 2})

	got, err := ParallelMap(context.Background(), pool, []int(nil), 4, func(v int) int { return v })

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// TestParallelMap_Panic verifies a panicking element surfaces as an error
func TestParallelMap_Panic(t *testing.T) {
	for name, pool := range parallelTestPools(t) {
		t.Run(name, func(t *testing.T) {
			data := make([]int, 64)
			for i := range data {
				data[i] = i
			}

			got, err := ParallelMap(testContext(t), pool, data, 8, func(v int) int {
				if v == 42 {
					panic("boom")
				}
				return v
			})

			assert.Nil(t, got)
			require.True(t, IsPanic(err), "err = %v", err)
			assert.Contains(t, err.Error(), "boom")
		})
	}
}

func TestParallelChunks(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 4, MinChunkSize: 1})
	data := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	sums, err := ParallelChunks(testContext(t), pool, data, 3, func(chunk []int) int {
		s := 0
		for _, v := range chunk {
			s += v
		}
		return s
	})

	require.NoError(t, err)
	assert.Equal(t, []int{6, 15, 24, 10}, sums)
}

// TestParallelForEach verifies in-place updates touch every element once
func TestParallelForEach(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 4, MinChunkSize: 1})
	data := make([]int, 500)
	var calls atomic.Int32

	err := ParallelForEach(testContext(t), pool, data, 16, func(i int, v *int) {
		calls.Add(1)
		*v = i + 1
	})

	require.NoError(t, err)
	assert.Equal(t, int32(500), calls.Load())
	for i, v := range data {
		require.Equal(t, i+1, v)
	}
}

func TestChunkSizeFor(t *testing.T) {
	pool := newTestPool(t, Config{ThreadCount: 4})

	assert.Equal(t, 25, chunkSizeFor(pool, 100, 0))
	assert.Equal(t, defaultMinChunkSize, chunkSizeFor(pool, 10, 0))
	assert.Equal(t, 40, chunkSizeFor(pool, 100, 40))
	assert.Equal(t, defaultMinChunkSize, chunkSizeFor(pool, 100, 2))
}
