package query

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mwtools/wikiquery/pkg/client"
)

var mwBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mw_batches_total",
	Help: "Executed batches by reference kind and outcome",
}, []string{"kind", "outcome"})

// Reducer folds one batch's page sequence into a single value.
// Reducers must not perform network I/O or mutate shared state.
type Reducer[T any] func(ctx context.Context, pages *Pages) (T, error)

// Executor fans a descriptor list out over a bounded worker pool, one
// concurrent task per descriptor, and associates results positionally.
type Executor struct {
	driver      *Driver
	concurrency int
	logger      zerolog.Logger
}

// NewExecutor creates an executor. Concurrency caps simultaneous in-flight
// batches; values <= 0 fall back to 10.
func NewExecutor(driver *Driver, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Executor{
		driver:      driver,
		concurrency: concurrency,
		logger:      log.With().Str("component", "mw-executor").Logger(),
	}
}

// Execute runs every descriptor's full continuation sequence through the
// reducer. Results and errors are positional: results[i] and errs[i] belong
// to descriptors[i]. A failing task does not cancel its siblings; their
// results are retained.
func Execute[T any](ctx context.Context, ex *Executor, descriptors []Descriptor, reduce Reducer[T]) ([]T, []error) {
	results := make([]T, len(descriptors))
	errs := make([]error, len(descriptors))
	if len(descriptors) == 0 {
		return results, errs
	}

	start := time.Now()
	indexes := make(chan int, len(descriptors))
	for i := range descriptors {
		indexes <- i
	}
	close(indexes)

	workers := ex.concurrency
	if workers > len(descriptors) {
		workers = len(descriptors)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				desc := descriptors[i]
				pages := ex.driver.Run(desc)
				value, err := reduce(ctx, pages)
				if err == nil {
					err = pages.Err()
				}
				if err != nil {
					mwBatchesTotal.WithLabelValues(desc.Kind.String(), "error").Inc()
					ex.logger.Warn().
						Err(err).
						Str("kind", desc.Kind.String()).
						Int("batch", i).
						Int("batch_size", len(desc.Batch)).
						Msg("Batch failed")
					errs[i] = err
					continue
				}
				mwBatchesTotal.WithLabelValues(desc.Kind.String(), "ok").Inc()
				results[i] = value
			}
		}()
	}
	wg.Wait()

	ex.logger.Debug().
		Int("batches", len(descriptors)).
		Dur("duration", time.Since(start)).
		Msg("Fan-out wave complete")

	return results, errs
}

// CollectPages is a pass-through reducer returning the raw page sequence of a
// batch as a slice.
func CollectPages(ctx context.Context, pages *Pages) ([]*client.ResultPage, error) {
	var out []*client.ResultPage
	for pages.Next(ctx) {
		out = append(out, pages.Page())
	}
	return out, pages.Err()
}

// Combined folds positional errors into one error, nil when all succeeded.
func Combined(errs []error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
