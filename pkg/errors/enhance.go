package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified enhancement failure.
type ErrorCode string

const (
	ErrTimeout     ErrorCode = "timeout"
	ErrRateLimit   ErrorCode = "rate_limit"
	ErrUnavailable ErrorCode = "unavailable"
	ErrBadStatus   ErrorCode = "bad_status"
	ErrParseError  ErrorCode = "parse_error"
	ErrCanceled    ErrorCode = "canceled"
	ErrInternal    ErrorCode = "internal"
)

// EnhanceError is a structured error for a failed enhancement call.
type EnhanceError struct {
	Code       ErrorCode
	Provider   string
	ItemID     string
	StatusCode int
	Message    string
	Duration   time.Duration
	Cause      error
}

func (e *EnhanceError) Error() string {
	if e.Code == ErrTimeout && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s", e.Code, e.Provider, e.Duration.Truncate(time.Millisecond))
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %s", e.Code, e.Provider, e.StatusCode, e.Message)
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EnhanceError) Unwrap() error {
	return e.Cause
}

// NewEnhanceError builds an EnhanceError with an explicit code.
func NewEnhanceError(code ErrorCode, provider, message string, cause error) *EnhanceError {
	return &EnhanceError{
		Code:     code,
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// StatusError builds an EnhanceError for an unexpected HTTP status.
func StatusError(provider string, status int, body string) *EnhanceError {
	code := ErrBadStatus
	switch {
	case status == 429:
		code = ErrRateLimit
	case status == 502 || status == 503 || status == 504:
		code = ErrUnavailable
	}
	return &EnhanceError{
		Code:       code,
		Provider:   provider,
		StatusCode: status,
		Message:    truncate(body, 200),
	}
}

// ClassifyError inspects an error and returns an *EnhanceError with the appropriate code.
// Errors that are already classified are returned as-is.
func ClassifyError(err error, provider string) *EnhanceError {
	if err == nil {
		return nil
	}

	var existing *EnhanceError
	if errors.As(err, &existing) {
		return existing
	}

	ee := &EnhanceError{
		Provider: provider,
		Cause:    err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		ee.Code = ErrTimeout
		ee.Message = "request timed out"
		return ee
	}

	if errors.Is(err, context.Canceled) {
		ee.Code = ErrCanceled
		ee.Message = "request cancelled"
		return ee
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	ee.Message = msg

	switch {
	case strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timeout"):
		ee.Code = ErrTimeout
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") ||
		strings.Contains(lower, "too many requests") || strings.Contains(lower, "resource_exhausted"):
		ee.Code = ErrRateLimit
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "no such host"):
		ee.Code = ErrUnavailable
	case strings.Contains(lower, "unmarshal") || strings.Contains(lower, "invalid character") ||
		strings.Contains(lower, "unexpected end of json") || strings.Contains(lower, "parsing"):
		ee.Code = ErrParseError
	default:
		ee.Code = ErrInternal
	}
	return ee
}

// CodeOf returns the code of a classified error, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var ee *EnhanceError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ErrInternal
}

// IsTimeout returns true if the error is a classified timeout.
func IsTimeout(err error) bool {
	var ee *EnhanceError
	if errors.As(err, &ee) {
		return ee.Code == ErrTimeout
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient.
func IsErrorRetryable(err error) bool {
	var ee *EnhanceError
	if errors.As(err, &ee) {
		return IsRetryable(ee.Code)
	}
	return false
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
