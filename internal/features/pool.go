package features

import (
	"context"
	"sync"
)

// forEachOrdered fans n index-addressed jobs out over a bounded worker pool.
// Each worker writes its result into a caller-owned slot addressed by index,
// so output order is the input order regardless of scheduling. With a single
// worker it degenerates to a plain loop.
func forEachOrdered(ctx context.Context, n, workers int, fn func(i int)) {
	if workers <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			// Stop feeding; workers drain what is queued.
			close(jobs)
			wg.Wait()
			return
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
}
