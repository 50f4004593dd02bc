package client

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidInput is returned synchronously for malformed purge requests.
	ErrInvalidInput = errors.New("invalid purge request")

	// ErrAuthentication is returned when credentials are missing or rejected.
	ErrAuthentication = errors.New("authentication failed")

	// ErrClientClosed is returned for purges submitted after Close.
	ErrClientClosed = errors.New("client closed")
)

// ErrorClass represents a classification of purge request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors and unexpected statuses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a non-201 answer from the Fast Purge API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Detail     string
	Endpoint   string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fast Purge %s error (status %d): %s", e.ErrorClass, e.StatusCode, e.Message)
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// PurgeError reports the chunks of a purge that failed. Chunks not listed
// completed and are not rolled back.
type PurgeError struct {
	Failed []Outcome
	Total  int
}

// Error implements the error interface.
func (e *PurgeError) Error() string {
	msgs := make([]string, 0, len(e.Failed))
	for _, o := range e.Failed {
		msgs = append(msgs, fmt.Sprintf("chunk %d: %v", o.Index, o.Err))
	}
	return fmt.Sprintf("purge failed for %d of %d chunks: %s",
		len(e.Failed), e.Total, strings.Join(msgs, "; "))
}

// Unwrap exposes every chunk error to errors.Is/As.
func (e *PurgeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, o := range e.Failed {
		errs = append(errs, o.Err)
	}
	return errs
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx answers will not change on resend; auth failures are fatal.
		return false
	}
}

// classifyStatus maps an HTTP status other than 201 to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status == 401 || status == 403:
		return ErrorClassAuth
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// classifyError finds the class of an error returned by a purge attempt.
func classifyError(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	if errors.Is(err, ErrAuthentication) {
		return ErrorClassAuth
	}
	if errors.Is(err, ErrInvalidInput) {
		return ErrorClassClient
	}
	return ErrorClassNetwork
}
