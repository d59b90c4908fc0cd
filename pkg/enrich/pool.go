package enrich

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/scrapeworks/follower-enrich/pkg/provider"
)

// LookupFunc performs the per-follower detail lookup.
type LookupFunc func(ctx context.Context, follower provider.RawFollower) (*provider.UserDetail, error)

// Result is the outcome of enriching one follower. Exactly one Result is
// produced per submitted follower; Err is set when the lookup failed after
// retry exhaustion.
type Result struct {
	Follower provider.RawFollower
	Detail   *provider.UserDetail
	Err      error
}

// enrichBatch runs the lookup for every follower with at most `workers`
// calls in flight. The returned slice has the same length and order as the
// input; results are associated by index, not by completion order. The pool
// fully drains before returning, so no goroutines outlive the call.
func enrichBatch(ctx context.Context, followers []provider.RawFollower, workers int, lookup LookupFunc) []Result {
	n := len(followers)
	if n == 0 {
		return []Result{}
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	results := make([]Result, n)

	jobs := make(chan int, n)
	for i := range followers {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for idx := range jobs {
				follower := followers[idx]

				// Fast-fail remaining jobs once the request is cancelled.
				if err := ctx.Err(); err != nil {
					results[idx] = Result{Follower: follower, Err: err}
					continue
				}

				detail, err := lookup(ctx, follower)
				if err != nil {
					log.Warn().
						Err(err).
						Int("worker_id", workerID).
						Str("follower_id", follower.ID).
						Msg("Follower lookup failed")
					results[idx] = Result{Follower: follower, Err: err}
					continue
				}

				// Each slot is written by exactly one job, so the slice
				// needs no locking.
				results[idx] = Result{Follower: follower, Detail: detail}
			}
		}(w)
	}

	wg.Wait()
	return results
}
