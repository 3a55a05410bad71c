// Package ratelimit implements server-lag and throttle tracking for the
// MediaWiki Action API. The API signals overload through maxlag/ratelimited
// error codes and a Retry-After header; the tracker records those in shared
// Redis state and gates outgoing requests accordingly.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRetryUntil = "mw:rate_limit:retry_until"
	RedisKeyErrorCount = "mw:rate_limit:error_count"
	RedisKeyLastUpdate = "mw:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ErrorCountWarning applies throttling once this many lag/throttle
	// errors were observed in the current window.
	ErrorCountWarning = 3

	// ErrorCountCritical blocks requests until the retry deadline passes.
	ErrorCountCritical = 10

	// errorWindow is how long a recorded error contributes to the count.
	errorWindow = 60 * time.Second
)

// State represents the current shared rate-limit state.
// It is shared across all client instances via Redis.
type State struct {
	// RetryUntil is the deadline the remote asked us to wait for
	// (from the Retry-After header). Zero when no wait was requested.
	RetryUntil time.Time `json:"retry_until"`

	// ErrorCount is the number of lag/throttle errors in the current window.
	ErrorCount int `json:"error_count"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked outright.
func (s *State) NeedsCriticalBlock() bool {
	if time.Now().Before(s.RetryUntil) {
		return true
	}
	return s.ErrorCount >= ErrorCountCritical && !s.IsStale(errorWindow)
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.ErrorCount >= ErrorCountWarning && !s.IsStale(errorWindow) &&
		!s.NeedsCriticalBlock()
}

// TimeUntilRetry returns the duration until the retry deadline.
// Returns 0 if the deadline has already passed.
func (s *State) TimeUntilRetry() time.Duration {
	d := time.Until(s.RetryUntil)
	if d < 0 {
		return 0
	}
	return d
}
