// Package parallel fans independent work items out across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum work units per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4096,
	}
}

// Sequential returns a config that never spawns goroutines.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// ForWeighted executes f(i) for i in [0, n) where every index costs weight
// work units (for example one image of weight = C*H*W elements).
//
// Falls back to sequential execution if parallelism is disabled or the
// total work is below MinChunkSize. Each index is visited by exactly one
// goroutine, so f may write to per-index state without locking.
func ForWeighted(n, weight int, f func(i int), cfg Config) {
	weight = max(weight, 1)
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < 2 || n*weight < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	minItems := max((cfg.MinChunkSize+weight-1)/weight, 1)
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, minItems)

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForBatch runs f over every (example, position) pair of a batch, where
// each pair costs weight work units.
func ForBatch(batch, positions, weight int, f func(b, j int), cfg Config) {
	ForWeighted(batch*positions, weight, func(k int) {
		f(k/positions, k%positions)
	}, cfg)
}

// ForErr is ForWeighted for work that can fail. It returns the error of
// the lowest failing index, so the result does not depend on scheduling.
func ForErr(n, weight int, f func(i int) error, cfg Config) error {
	errs := make([]error, n)
	ForWeighted(n, weight, func(i int) {
		errs[i] = f(i)
	}, cfg)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
