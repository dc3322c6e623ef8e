// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// replicateSeeds derives one seed per replication from a master stream, so the
// draws of replication b do not depend on which worker runs it.
// seed 0 means time-based.
func replicateSeeds(seed uint64, n int) []uint64 {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	masterRng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = masterRng.Uint64()
	}
	return seeds
}

// replicateSource returns the RNG source for replication b
func replicateSource(seeds []uint64, b int) rand.Source {
	return rand.NewPCG(seeds[b], uint64(b))
}

// runParallel calls fn(b) for b = 0..n-1 on a pool of workers.
// fn must only write to slots indexed by b. Returns ctx.Err() if the context
// was cancelled before every replication ran.
func runParallel(ctx context.Context, n, workers int, fn func(b int)) error {
	if workers <= 1 {
		for b := 0; b < n; b++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(b)
		}
		return nil
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)

	worker := func() {
		defer wg.Done()
		for b := range jobs {
			if ctx.Err() != nil {
				continue
			}
			fn(b)
		}
	}

	// Start workers
	for w := 0; w < workers; w++ {
		go worker()
	}

	// Feed jobs
	for b := 0; b < n; b++ {
		select {
		case jobs <- b:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)

	wg.Wait()
	return ctx.Err()
}
