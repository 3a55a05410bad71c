package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidRequest is returned for malformed caller input.
	// It is never retried.
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassInvalidRequest represents malformed caller input.
	ErrorClassInvalidRequest ErrorClass = "invalid_request"

	// ErrorClassRemote represents a structured error reported by the API.
	ErrorClassRemote ErrorClass = "remote"

	// ErrorClassTransport represents connectivity and timeout errors.
	ErrorClassTransport ErrorClass = "transport"
)

// RemoteError is a structured error reported inside the API response envelope.
type RemoteError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (code %s): %s", e.Code, e.Info)
}

// TransportError wraps a connectivity fault (DNS, connection reset, timeout,
// malformed body).
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// transientRemoteCodes are API error codes that indicate server-side load or
// throttling rather than a malformed query. Only these remote errors are
// retried at the request level; everything else propagates to the caller.
var transientRemoteCodes = map[string]bool{
	"maxlag":      true,
	"ratelimited": true,
	"readonly":    true,
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass, err error) bool {
	switch errorClass {
	case ErrorClassInvalidRequest:
		return false
	case ErrorClassTransport:
		return true
	case ErrorClassRemote:
		var remote *RemoteError
		if errors.As(err, &remote) {
			return transientRemoteCodes[remote.Code] ||
				strings.HasPrefix(remote.Code, "internal_api_error")
		}
		return false
	default:
		return false
	}
}

// Classify categorizes an error for observability and retry handling.
// Unknown errors are treated as transport faults.
func Classify(err error) ErrorClass {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return ErrorClassRemote
	}
	if errors.Is(err, ErrInvalidRequest) {
		return ErrorClassInvalidRequest
	}
	return ErrorClassTransport
}
