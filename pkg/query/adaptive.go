package query

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mwBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mw_batch_size",
		Help: "Current adaptive batch size",
	})

	mwWavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mw_waves_total",
		Help: "Adaptive controller waves by outcome",
	}, []string{"outcome"})
)

// AdaptiveConfig configures the adaptive retry controller.
type AdaptiveConfig struct {
	// InitialBatchSize is the starting batch size for a fresh controller.
	InitialBatchSize int

	// MinBatchSize is the floor reached by repeated halving.
	MinBatchSize int

	// MaxBatchSize is the ceiling reached by growth after clean waves.
	MaxBatchSize int

	// Backoff is the fixed wait between a failed wave and the next one.
	Backoff time.Duration

	// MaxWaves bounds the number of waves per job. 0 means unbounded; the
	// caller is then responsible for bounding via context deadline.
	MaxWaves int
}

// DefaultAdaptiveConfig returns the default controller configuration.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		InitialBatchSize: DefaultBatchSize,
		MinBatchSize:     1,
		MaxBatchSize:     200,
		Backoff:          10 * time.Second,
	}
}

// waveState tracks where a job is in the shrink/grow loop.
type waveState int

const (
	statePlanning waveState = iota
	stateInFlight
	statePartialFailure
	stateSucceeded
	stateFailed
)

func (s waveState) String() string {
	switch s {
	case statePlanning:
		return "planning"
	case stateInFlight:
		return "in_flight"
	case statePartialFailure:
		return "partial_failure"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Controller wraps fan-out execution in a congestion-control loop: batch size
// halves after a failed wave and grows back toward the ceiling after clean
// ones. The size persists across jobs run through the same controller, so a
// sequence of clean jobs re-grows a previously shrunk size.
type Controller struct {
	executor *Executor
	config   AdaptiveConfig
	logger   zerolog.Logger

	mu   sync.Mutex
	size int
}

// NewController creates an adaptive retry controller.
func NewController(executor *Executor, config AdaptiveConfig) *Controller {
	if config.InitialBatchSize <= 0 {
		config.InitialBatchSize = DefaultBatchSize
	}
	if config.MinBatchSize <= 0 {
		config.MinBatchSize = 1
	}
	if config.MaxBatchSize < config.InitialBatchSize {
		config.MaxBatchSize = config.InitialBatchSize
	}
	return &Controller{
		executor: executor,
		config:   config,
		logger:   log.With().Str("component", "mw-adaptive").Logger(),
		size:     config.InitialBatchSize,
	}
}

// BatchSize returns the controller's current batch size.
func (c *Controller) BatchSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// recordFailure shrinks the batch size and returns the new value.
func (c *Controller) recordFailure() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.size = nextSizeAfterFailure(c.size, c.config.MinBatchSize)
	mwBatchSize.Set(float64(c.size))
	return c.size
}

// recordSuccess grows the batch size and returns the new value.
func (c *Controller) recordSuccess() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.size = nextSizeAfterSuccess(c.size, c.config.MaxBatchSize)
	mwBatchSize.Set(float64(c.size))
	return c.size
}

func nextSizeAfterFailure(size, floor int) int {
	size = size / 2
	if size < floor {
		return floor
	}
	return size
}

func nextSizeAfterSuccess(size, ceiling int) int {
	if size >= ceiling {
		return ceiling
	}
	if size <= ceiling/2 {
		return size * 2
	}
	return ceiling
}

// BatchResult pairs one succeeded batch's reduced value with the descriptor
// that produced it, so callers can associate generator-style results with
// their source reference.
type BatchResult[T any] struct {
	Descriptor Descriptor
	Value      T
}

// RunAdaptive drives a logical reference set to completion and returns the
// reduced value of every succeeded batch. See RunAdaptiveBatches.
func RunAdaptive[T any](ctx context.Context, c *Controller, refs []Ref, opts PlanOptions, reduce Reducer[T]) ([]T, error) {
	batches, err := RunAdaptiveBatches(ctx, c, refs, opts, reduce)
	values := make([]T, len(batches))
	for i, b := range batches {
		values[i] = b.Value
	}
	return values, err
}

// RunAdaptiveBatches drives a logical reference set to completion: every
// reference is either resolved by a succeeded batch or the job fails once the
// wave budget is exhausted. Results of completed batches are retained across
// waves; only references from failed batches are re-planned. Result order
// follows batch completion across waves, not the input order.
func RunAdaptiveBatches[T any](ctx context.Context, c *Controller, refs []Ref, opts PlanOptions, reduce Reducer[T]) ([]BatchResult[T], error) {
	var collected []BatchResult[T]
	remaining := refs
	state := statePlanning
	wave := 0

	for {
		wave++
		if c.config.MaxWaves > 0 && wave > c.config.MaxWaves {
			mwWavesTotal.WithLabelValues(stateFailed.String()).Inc()
			return collected, fmt.Errorf("wave budget exhausted after %d waves with %d references unresolved",
				c.config.MaxWaves, len(remaining))
		}

		planOpts := opts
		planOpts.BatchSize = c.BatchSize()
		descriptors, err := Plan(remaining, planOpts)
		if err != nil {
			return collected, err
		}
		if len(descriptors) == 0 {
			return collected, nil
		}

		state = stateInFlight
		c.logger.Debug().
			Int("wave", wave).
			Int("batches", len(descriptors)).
			Int("batch_size", planOpts.BatchSize).
			Str("state", state.String()).
			Msg("Executing wave")

		results, errs := Execute(ctx, c.executor, descriptors, reduce)

		var failed []Ref
		for i := range descriptors {
			if errs[i] != nil {
				failed = append(failed, refsFromValues(descriptors[i].Kind, descriptors[i].Batch)...)
				continue
			}
			collected = append(collected, BatchResult[T]{
				Descriptor: descriptors[i],
				Value:      results[i],
			})
		}

		if len(failed) == 0 {
			state = stateSucceeded
			newSize := c.recordSuccess()
			mwWavesTotal.WithLabelValues(state.String()).Inc()
			c.logger.Info().
				Int("wave", wave).
				Int("batches", len(descriptors)).
				Int("next_batch_size", newSize).
				Msg("Wave succeeded")
			return collected, nil
		}

		state = statePartialFailure
		mwWavesTotal.WithLabelValues(state.String()).Inc()
		newSize := c.recordFailure()
		c.logger.Warn().
			Err(Combined(errs)).
			Int("wave", wave).
			Int("unresolved", len(failed)).
			Int("batch_size", newSize).
			Str("state", state.String()).
			Msg("Wave had failures, shrinking batch size")

		if ctxErr := sleepCtx(ctx, c.config.Backoff); ctxErr != nil {
			return collected, ctxErr
		}
		remaining = failed
	}
}

// refsFromValues rebuilds references from a descriptor's wire values so a
// failed batch can be re-planned. Values are already canonical, so feeding
// them through planning again is idempotent.
func refsFromValues(kind Kind, values []string) []Ref {
	refs := make([]Ref, 0, len(values))
	for _, v := range values {
		switch kind {
		case KindTitle:
			refs = append(refs, Title(v))
		case KindPageID:
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			refs = append(refs, PageID(id))
		case KindRevisionID:
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			refs = append(refs, RevisionID(id))
		}
	}
	return refs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
