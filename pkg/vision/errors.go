package vision

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies fallback-path failures for user-visible reporting.
type Kind string

const (
	// KindCredential covers both a missing stored key and a key the
	// provider rejects.
	KindCredential Kind = "credential"
	// KindNetwork covers transport failures, timeouts, and provider
	// outages.
	KindNetwork Kind = "network"
	// KindInvalidResponse covers responses missing the expected
	// structure (no choices, no content).
	KindInvalidResponse Kind = "invalid_response"
	// KindNoNames means the provider answered but read no names.
	KindNoNames Kind = "no_names"
)

// Error is a structured fallback-path error. Fallback failures are
// surfaced to the user but never revert local-pass presence marks.
type Error struct {
	Kind       Kind
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Kind))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
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

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured vision error.
func NewError(kind Kind, message string, retryable bool, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// Classify categorizes a provider error into a structured Error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var visionErr *Error
	if errors.As(err, &visionErr) {
		return visionErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	// Rejected credentials (not retryable)
	if strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key") {
		e := NewError(KindCredential, "credential rejected by provider", false, err)
		e.StatusCode = statusCode
		return e
	}

	// Connection failures (retryable)
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") {
		e := NewError(KindNetwork, "connection failed", true, err)
		e.StatusCode = statusCode
		return e
	}

	// Timeouts (retryable)
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "context canceled") {
		e := NewError(KindNetwork, "request timeout", true, err)
		e.StatusCode = statusCode
		return e
	}

	// Rate limiting (retryable after backoff)
	if strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") {
		e := NewError(KindNetwork, "rate limited", true, err)
		e.StatusCode = statusCode
		return e
	}

	// 5xx server errors (retryable)
	if statusCode >= 500 {
		e := NewError(KindNetwork, "provider error", true, err)
		e.StatusCode = statusCode
		return e
	}

	e := NewError(KindNetwork, "fallback request failed", false, err)
	e.StatusCode = statusCode
	return e
}

// KindOf extracts the Kind from an error, or "" for non-vision errors.
func KindOf(err error) Kind {
	var visionErr *Error
	if errors.As(err, &visionErr) {
		return visionErr.Kind
	}
	return ""
}
