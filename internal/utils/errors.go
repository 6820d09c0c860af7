package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SnippetLimit bounds how much of an upstream body is carried inside an error.
const SnippetLimit = 200

// TimeoutError is returned when an upstream does not answer within its budget.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

// Error returns the error message string.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
}

// HTTPError represents a reachable upstream that answered with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Snippet    string
}

// Error returns the error message string.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Snippet)
}

// ShapeError means the response decoded but lacks the structure we depend on.
// It is never retried.
type ShapeError struct {
	Label  string
	Reason string
	Sample string
}

// Error returns the error message string.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape: %s", e.Label, e.Reason)
}

// DeliveryError wraps a downstream send failure after retries were exhausted.
type DeliveryError struct {
	Exchange string
	Asset    string
	Err      error
}

// Error returns the error message string.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed for %s:%s: %v", e.Exchange, e.Asset, e.Err)
}

// Unwrap exposes the underlying send error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ConfigError represents a missing or invalid configuration value.
type ConfigError struct {
	Key    string
	Reason string
}

// Error returns the error message string.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// NewShapeError creates a ShapeError carrying a bounded sample of the raw response.
//
// Parameters:
//   - label: The operation that produced the response.
//   - reason: What was missing or malformed.
//   - raw: The raw response body.
//
// Returns:
//   - An error interface wrapping the ShapeError.
func NewShapeError(label, reason string, raw []byte) error {
	return &ShapeError{
		Label:  label,
		Reason: reason,
		Sample: Truncate(string(raw), SnippetLimit),
	}
}

// NewConfigErrorf creates a ConfigError with a formatted reason.
func NewConfigErrorf(key, format string, args ...interface{}) error {
	return &ConfigError{
		Key:    key,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsRetryable reports whether an operation failing with err may succeed on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var shapeErr *ShapeError
	if errors.As(err, &shapeErr) {
		return false
	}
	var configErr *ConfigError
	return !errors.As(err, &configErr)
}

// Truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
