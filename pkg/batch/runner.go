package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/tscache/pkg/cache"
)

// Cache is the subset of *cache.Store the runner drives.
type Cache interface {
	Fetch(ctx context.Context, req cache.CacheRequest) (*cache.CacheResponse, error)
	Insert(ctx context.Context, point cache.TimeSeriesPoint) error
}

// Config holds worker pool settings.
type Config struct {
	// MaxConcurrency is the number of workers
	MaxConcurrency int

	// Timeout bounds each fetch or insert
	Timeout time.Duration
}

// DefaultConfig returns the default pool settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        5 * time.Second,
	}
}

// FetchResult is the outcome of one request of a FetchAll batch.
type FetchResult struct {
	Index    int
	Response *cache.CacheResponse
	Err      error
}

// PointError describes a point rejected by InsertAll.
type PointError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// InsertSummary reports an InsertAll batch.
type InsertSummary struct {
	// Submitted counts points handed to the cache
	Submitted int `json:"submitted"`

	// Rejected counts invalid points
	Rejected int          `json:"rejected"`
	Errors   []PointError `json:"errors,omitempty"`
}

// Runner executes batches against a cache.
type Runner struct {
	cache  Cache
	config Config
	logger zerolog.Logger
}

// NewRunner creates a runner. Non-positive settings take their defaults.
func NewRunner(c Cache, config Config) *Runner {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &Runner{
		cache:  c,
		config: config,
		logger: log.With().Str("component", "tscache-batch").Logger(),
	}
}

// FetchAll runs every request and returns one result per request, in input
// order. Requests not started before ctx is cancelled carry ctx.Err().
func (r *Runner) FetchAll(ctx context.Context, reqs []cache.CacheRequest) []FetchResult {
	results := make([]FetchResult, len(reqs))
	for i := range results {
		results[i].Index = i
	}

	r.run(ctx, len(reqs), func(ctx context.Context, i int) {
		results[i].Response, results[i].Err = r.cache.Fetch(ctx, reqs[i])
	}, func(i int, err error) {
		results[i].Err = err
	})

	return results
}

// InsertAll writes every point.
func (r *Runner) InsertAll(ctx context.Context, points []cache.TimeSeriesPoint) InsertSummary {
	var (
		mu      sync.Mutex
		summary InsertSummary
	)
	reject := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		summary.Rejected++
		summary.Errors = append(summary.Errors, PointError{Index: i, Error: err.Error()})
	}

	r.run(ctx, len(points), func(ctx context.Context, i int) {
		if err := r.cache.Insert(ctx, points[i]); err != nil {
			reject(i, err)
			return
		}
		mu.Lock()
		summary.Submitted++
		mu.Unlock()
	}, reject)

	sort.Slice(summary.Errors, func(a, b int) bool {
		return summary.Errors[a].Index < summary.Errors[b].Index
	})
	return summary
}

// run feeds indexes 0..n-1 to the worker pool. skipped is called for every
// index that was not processed because ctx ended.
func (r *Runner) run(ctx context.Context, n int, process func(context.Context, int), skipped func(int, error)) {
	if n == 0 {
		return
	}
	start := time.Now()

	workers := r.config.MaxConcurrency
	if workers > n {
		workers = n
	}

	queue := make(chan int, n)
	for i := 0; i < n; i++ {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go r.worker(ctx, w, queue, process, skipped, &wg)
	}
	wg.Wait()

	r.logger.Debug().
		Int("items", n).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")
}

func (r *Runner) worker(ctx context.Context, workerID int, queue <-chan int, process func(context.Context, int), skipped func(int, error), wg *sync.WaitGroup) {
	defer wg.Done()
	processed := 0

	for i := range queue {
		if err := ctx.Err(); err != nil {
			skipped(i, err)
			continue
		}

		itemCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		process(itemCtx, i)
		cancel()
		processed++
	}

	if processed > 0 {
		r.logger.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Worker completed")
	}
}
