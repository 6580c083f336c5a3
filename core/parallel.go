package core

import (
	"context"
)

// chunkSizeFor picks the chunk size for n items: the requested size, or an
// even split across the pool's threads, never below MinChunkSize.
func chunkSizeFor(p *TaskPool, n, requested int) int {
	size := requested
	if size <= 0 {
		threads := max(p.ThreadNum(), 1)
		size = (n + threads - 1) / threads
	}
	return max(size, p.cfg.MinChunkSize, 1)
}

// forRanges splits [0, n) into contiguous ranges and calls fn once per
// range, collecting results in range order. It runs serially on the caller
// when the pool has no worker threads or when there is a single range.
func forRanges[R any](ctx context.Context, p *TaskPool, n, chunkSize int, fn func(start, end int) R) ([]R, error) {
	if n == 0 {
		return nil, nil
	}
	size := chunkSizeFor(p, n, chunkSize)

	if !p.backend.parallel(p) || size >= n {
		out := make([]R, 0, (n+size-1)/size)
		for start := 0; start < n; start += size {
			end := min(start+size, n)
			r, err, pe := callGuarded(ctx, func(context.Context) (R, error) {
				return fn(start, end), nil
			})
			if pe != nil {
				return nil, pe
			}
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}

	return RunScope(ctx, p, func(s *Scope[R]) {
		for start := 0; start < n; start += size {
			end := min(start+size, n)
			s.Spawn(func(context.Context) (R, error) {
				return fn(start, end), nil
			})
		}
	})
}

// ParallelChunks runs f once per contiguous chunk of data and returns one
// result per chunk, in chunk order.
func ParallelChunks[In, R any](ctx context.Context, p *TaskPool, data []In, chunkSize int, f func(chunk []In) R) ([]R, error) {
	return forRanges(ctx, p, len(data), chunkSize, func(start, end int) R {
		return f(data[start:end])
	})
}

// ParallelMap applies f to every element and returns the results in input
// order. Execution order across chunks is unspecified.
func ParallelMap[In, Out any](ctx context.Context, p *TaskPool, data []In, chunkSize int, f func(In) Out) ([]Out, error) {
	if len(data) == 0 {
		return []Out{}, nil
	}
	out := make([]Out, len(data))
	_, err := forRanges(ctx, p, len(data), chunkSize, func(start, end int) struct{} {
		for i := start; i < end; i++ {
			out[i] = f(data[i])
		}
		return struct{}{}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParallelForEach calls f with the index and a pointer to every element, so
// elements can be updated in place.
func ParallelForEach[In any](ctx context.Context, p *TaskPool, data []In, chunkSize int, f func(i int, v *In)) error {
	_, err := forRanges(ctx, p, len(data), chunkSize, func(start, end int) struct{} {
		for i := start; i < end; i++ {
			f(i, &data[i])
		}
		return struct{}{}
	})
	return err
}
