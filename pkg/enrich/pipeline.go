// Package enrich implements the follower enrichment pipeline: one listing
// call fanned out to a bounded pool of per-user lookups, filtered to a
// minimum-follower threshold with source-page order preserved.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrapeworks/follower-enrich/pkg/provider"
)

// Prometheus metrics for pipeline operations.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_pages_total",
		Help: "Total enriched pages by outcome",
	}, []string{"outcome"})

	pageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrich_page_duration_seconds",
		Help:    "End-to-end duration of one page enrichment",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	lookupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrich_lookup_failures_total",
		Help: "Total follower lookups dropped after retry exhaustion",
	})

	filteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrich_filtered_total",
		Help: "Total enriched followers excluded by the minimum-follower threshold",
	})
)

// Worker and page size bounds.
const (
	MinWorkers     = 1
	MaxWorkers     = 8
	DefaultWorkers = 5

	DefaultPageSize = 200
)

// Provider is the remote boundary the pipeline consumes. Both calls apply
// retry internally and return either a result or a terminal error.
type Provider interface {
	ListFollowers(ctx context.Context, userID string, pageSize int, cursor string) (*provider.FollowerPage, error)
	LookupUser(ctx context.Context, id string) (*provider.UserDetail, error)
}

// Params are the inputs for one pipeline invocation. All state is
// request-scoped; the caller drives pagination via the returned cursor.
type Params struct {
	// Account is the display label echoed in the response (handle or id).
	Account string

	// UserID is the provider identifier of the account.
	UserID string

	// PageSize of the listing call (default DefaultPageSize).
	PageSize int

	// MinFollowers is the inclusive threshold for the output filter.
	MinFollowers int

	// Workers bounds the concurrent lookups (clamped to MinWorkers..MaxWorkers).
	Workers int

	// Cursor is the opaque continuation token from a previous call.
	Cursor string
}

// ResponsePayload is the result of one pipeline invocation.
// Invariant: Returned == len(Users).
type ResponsePayload struct {
	Account    string                `json:"account_scraped"`
	Returned   int                   `json:"returned"`
	NextCursor string                `json:"next_cursor,omitempty"`
	Users      []provider.UserDetail `json:"users"`

	// Failed counts lookups dropped after retry exhaustion. Diagnostic
	// only; failed lookups never appear in Users.
	Failed int `json:"-"`
}

// PipelineError wraps a listing-call failure that fails the whole request.
type PipelineError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Pipeline orchestrates listing, fan-out enrichment, and filtering.
type Pipeline struct {
	provider Provider
	logger   zerolog.Logger
}

// New creates a pipeline on top of a provider client.
func New(p Provider) *Pipeline {
	return &Pipeline{
		provider: p,
		logger:   log.With().Str("component", "enrich-pipeline").Logger(),
	}
}

// ClampWorkers bounds a requested worker count to the supported range.
func ClampWorkers(workers int) int {
	if workers < MinWorkers {
		return MinWorkers
	}
	if workers > MaxWorkers {
		return MaxWorkers
	}
	return workers
}

// Enrich fetches one follower page, enriches it in parallel, and returns
// the filtered payload. A listing failure fails the whole request; a
// single lookup failure only drops that follower from the output.
func (p *Pipeline) Enrich(ctx context.Context, params Params) (*ResponsePayload, error) {
	start := time.Now()
	defer func() {
		pageDuration.Observe(time.Since(start).Seconds())
	}()

	if params.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	workers := params.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	workers = ClampWorkers(workers)

	account := params.Account
	if account == "" {
		account = params.UserID
	}

	page, err := p.provider.ListFollowers(ctx, params.UserID, pageSize, params.Cursor)
	if err != nil {
		pagesTotal.WithLabelValues("error").Inc()
		return nil, &PipelineError{Op: "list followers", Err: err}
	}

	payload := &ResponsePayload{
		Account:    account,
		NextCursor: page.NextCursor,
		Users:      []provider.UserDetail{},
	}

	if len(page.Followers) == 0 {
		pagesTotal.WithLabelValues("empty").Inc()
		return payload, nil
	}

	results := enrichBatch(ctx, page.Followers, workers, func(ctx context.Context, f provider.RawFollower) (*provider.UserDetail, error) {
		detail, err := p.provider.LookupUser(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		if detail.Username == "" {
			detail.Username = f.Username
		}
		return detail, nil
	})

	// Cancellation fails the request outright; partial results are not
	// salvaged.
	if err := ctx.Err(); err != nil {
		pagesTotal.WithLabelValues("cancelled").Inc()
		return nil, &PipelineError{Op: "enrich followers", Err: err}
	}

	filtered := 0
	for _, r := range results {
		if r.Err != nil {
			payload.Failed++
			lookupFailuresTotal.Inc()
			continue
		}
		if r.Detail.FollowersCount < params.MinFollowers {
			filtered++
			filteredTotal.Inc()
			continue
		}
		payload.Users = append(payload.Users, *r.Detail)
	}
	payload.Returned = len(payload.Users)

	pagesTotal.WithLabelValues("ok").Inc()

	p.logger.Info().
		Str("account", account).
		Int("page_followers", len(page.Followers)).
		Int("returned", payload.Returned).
		Int("filtered", filtered).
		Int("failed", payload.Failed).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Page enrichment complete")

	return payload, nil
}
