package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrJobNotFound is returned when a job id has no stored record.
var ErrJobNotFound = errors.New("job not found")

// ValidationError reports malformed or missing input. It carries every
// detected violation, not just the first one, and is never retried.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Issues, " ")
}

// NewValidationError builds a ValidationError from one or more issues.
func NewValidationError(issues ...string) *ValidationError {
	return &ValidationError{Issues: issues}
}

// AuthorizationError reports a shared-secret mismatch on a protected write.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Reason
}

// BackendError reports a non-retryable failure response from the model
// backend. The caller decides what to do with it.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: status %d: %s", e.StatusCode, e.Body)
}

// TransientError reports a retryable failure (timeout, network error, or a
// retryable HTTP status) whose retry budget has been exhausted.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ParseError reports a successful backend response whose payload did not
// contain the expected structured content. Raw retains the original text.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
