// Package rest provides the error type and bounded retry helper shared by the
// Zendesk and Quay API clients.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// APIError represents a failed request against a remote API. A StatusCode of
// zero means the request never produced a response (transport failure).
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new API error.
func NewAPIError(statusCode int, message string, err error) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// Retryable reports whether err is worth retrying: transport failures and
// server-side (5xx) responses. Client-side responses (auth failures, not
// found) never become valid by retrying.
func Retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 0 || apiErr.StatusCode >= http.StatusInternalServerError
}

// RetryPolicy bounds how often an operation is re-attempted.
type RetryPolicy struct {
	Attempts int           // total attempts, including the first
	Backoff  time.Duration // linear backoff unit: attempt n waits n*Backoff
}

// Do runs op up to policy.Attempts times, sleeping a linearly growing backoff
// between attempts. Only errors classified by Retryable are retried; any other
// error is returned immediately. The sleep honors context cancellation.
func Do(ctx context.Context, logger *slog.Logger, policy RetryPolicy, op func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := time.Duration(attempt) * policy.Backoff
		logger.Warn("request failed, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", wait,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}
