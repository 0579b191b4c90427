package refresh

import (
	"sync"
	"sync/atomic"
)

// effectiveConcurrency clamps the requested worker count to [1, total].
// Non-positive requests fall back to sequential execution.
func effectiveConcurrency(requested, total int) int {
	if requested < 1 {
		requested = 1
	}
	if requested > total {
		requested = total
	}
	return requested
}

// runPool drains indexes [0,total) with workers goroutines sharing an atomic
// cursor. Each worker claims the next index, runs the task body to completion,
// then claims again — no worker holds more than one in-flight task. shouldStop
// is consulted before every claim; a true result makes the worker exit without
// claiming. Claim order is strictly increasing and no index is claimed twice;
// completion order across workers is unspecified. runPool returns only once
// every worker has exited, reporting whether any worker refused a claim while
// indexes remained.
func runPool(workers, total int, shouldStop func() bool, task func(index int)) bool {
	var cursor atomic.Int64
	var stopped atomic.Bool
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if shouldStop != nil && shouldStop() {
					if cursor.Load() < int64(total) {
						stopped.Store(true)
					}
					return
				}
				i := cursor.Add(1) - 1
				if i >= int64(total) {
					return
				}
				task(int(i))
			}
		}()
	}

	wg.Wait()
	return stopped.Load()
}
