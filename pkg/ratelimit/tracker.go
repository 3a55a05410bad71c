package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	mwLagErrorsRecent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mw_lag_errors_recent",
		Help: "Number of lag/throttle errors observed in the current window",
	})

	mwRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mw_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to critical lag state",
	})

	mwRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mw_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to recent lag errors",
	})
)

// throttleCodes are the API error codes the tracker records.
var throttleCodes = map[string]bool{
	"maxlag":      true,
	"ratelimited": true,
	"readonly":    true,
}

// Tracker monitors remote lag signals and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current rate limit state from Redis.
// Returns a default healthy state if no data exists.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	retryUntil, err := t.redis.Get(ctx, RedisKeyRetryUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get retry deadline: %w", err)
	}

	errorCount, err := t.redis.Get(ctx, RedisKeyErrorCount).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get error count: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	if err == redis.Nil && retryUntil == 0 && errorCount == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return &State{LastUpdate: time.Now()}, nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return &State{
		RetryUntil: time.Unix(retryUntil, 0),
		ErrorCount: errorCount,
		LastUpdate: lastUpdate,
	}, nil
}

// UpdateFromHeaders records a Retry-After header if the response carries one.
// Responses without the header leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return nil
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		return fmt.Errorf("parse Retry-After header: %w", err)
	}

	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	if err := t.writeState(ctx, &deadline, 0); err != nil {
		return err
	}

	t.logger.Warn().
		Int("retry_after_seconds", seconds).
		Time("retry_until", deadline).
		Msg("Remote requested a wait via Retry-After")
	return nil
}

// RecordAPIError counts a lag/throttle API error toward the shared window.
// Other error codes are ignored.
func (t *Tracker) RecordAPIError(ctx context.Context, code string, headers http.Header) error {
	if !throttleCodes[code] {
		return nil
	}

	count, err := t.redis.Incr(ctx, RedisKeyErrorCount).Result()
	if err != nil {
		return fmt.Errorf("increment error count: %w", err)
	}
	if err := t.redis.Expire(ctx, RedisKeyErrorCount, errorWindow).Err(); err != nil {
		return fmt.Errorf("set error count expiry: %w", err)
	}
	if err := t.writeState(ctx, nil, 0); err != nil {
		return err
	}

	mwLagErrorsRecent.Set(float64(count))

	t.logger.Warn().
		Str("code", code).
		Int64("errors_recent", count).
		Msg("Lag/throttle error recorded")

	// A Retry-After may accompany the error body.
	return t.UpdateFromHeaders(ctx, headers)
}

// writeState persists the deadline and timestamp fields atomically.
func (t *Tracker) writeState(ctx context.Context, retryUntil *time.Time, _ int) error {
	pipe := t.redis.Pipeline()
	if retryUntil != nil {
		pipe.Set(ctx, RedisKeyRetryUntil, retryUntil.Unix(), errorWindow)
	}

	lastUpdateJSON, err := json.Marshal(time.Now())
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current
// rate limit state. Returns false if the request should be blocked.
// Returns true but sleeps briefly when throttling is in effect.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("errors_recent", state.ErrorCount).
			Dur("wait_duration", state.TimeUntilRetry()).
			Msg("Lag state critical - blocking request")

		mwRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("errors_recent", state.ErrorCount).
			Msg("Recent lag errors - throttling request")

		mwRateLimitThrottlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return true, nil
}
