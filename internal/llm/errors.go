package llm

import (
	"errors"
	"fmt"
	"time"

	"github.com/talesmith-ai/talesmith/internal/ratelimit"
)

// RateLimitError is a 429 from the provider. RetryAfter is extracted from the
// error body's human-readable hint, zero when the body carried none; Snapshot
// carries any quota headers that accompanied the failure.
type RateLimitError struct {
	Model      string
	RetryAfter time.Duration
	Message    string
	Snapshot   *ratelimit.Snapshot
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s (retry in %s): %s", e.Model, e.RetryAfter, e.Message)
}

// AuthError is a 401/403 from the provider. Credentials problems are fatal
// for the process's LLM capability and are never retried.
type AuthError struct {
	StatusCode int
	Message    string
	Snapshot   *ratelimit.Snapshot
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider authentication failed: status %d: %s", e.StatusCode, e.Message)
}

// ServerError is a 5xx from the provider, expected to be transient.
type ServerError struct {
	StatusCode int
	Message    string
	Snapshot   *ratelimit.Snapshot
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("provider server error: status %d: %s", e.StatusCode, e.Message)
}

// APIError is any other non-success response.
type APIError struct {
	StatusCode int
	Message    string
	Snapshot   *ratelimit.Snapshot
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider request failed: status %d: %s", e.StatusCode, e.Message)
}

// ErrorSnapshot returns the quota snapshot attached to a provider error, or
// nil. Error responses carry the same x-ratelimit-* headers success does, so
// capacity tracking must not go blind on a failed round trip.
func ErrorSnapshot(err error) *ratelimit.Snapshot {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.Snapshot
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Snapshot
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.Snapshot
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Snapshot
	}
	return nil
}
