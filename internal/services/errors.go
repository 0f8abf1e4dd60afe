// Package services holds the relay's business rules: the access gate, address
// anonymization, the message read/write paths and security code rotation.
// Handlers translate the errors declared here into HTTP responses.
package services

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrCodeRequired is returned when no security code was presented.
	ErrCodeRequired = errors.New("security code required")

	// ErrInvalidCode is returned when the presented code is not the live one.
	ErrInvalidCode = errors.New("invalid security code")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RateLimitError is returned when a sender exhausted its write quota.
type RateLimitError struct {
	Max        int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. Max %d messages per minute.", e.Max)
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
