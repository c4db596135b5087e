package llm

import (
	"fmt"
	"strings"
	"time"
)

// ErrorType classifies a provider call failure.
type ErrorType string

const (
	// ErrorTypeRateLimited is a provider 429. Scope distinguishes per-minute
	// limits (transient, worth a bounded wait) from per-day limits
	// (non-recoverable within the request).
	ErrorTypeRateLimited ErrorType = "rate_limited"

	// ErrorTypeTimeout covers request timeouts and transient network failures.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeFatal covers any other non-2xx response or malformed reply.
	// Fatal errors propagate immediately without retry or fallback.
	ErrorTypeFatal ErrorType = "fatal"
)

// RateLimitScope distinguishes the two provider rate-limit windows.
type RateLimitScope string

const (
	ScopePerMinute RateLimitScope = "per_minute"
	ScopePerDay    RateLimitScope = "per_day"
)

// Error is a structured provider call failure.
type Error struct {
	Type       ErrorType
	Message    string // Provider-supplied human-readable message
	StatusCode int
	Model      string
	Cause      error

	// Rate-limit detail, populated only when Type is ErrorTypeRateLimited.
	Scope      RateLimitScope
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface. Fatal errors are
// never retried; rate limits and timeouts are.
func (e *Error) IsRetryable() bool {
	return e.Type != ErrorTypeFatal
}
