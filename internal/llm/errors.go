package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an error returned by an LLM provider API.
type APIError struct {
	// Provider is the name of the LLM provider (e.g., "openai", "anthropic").
	Provider string
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification from the API.
	Type string
	// Code is the provider-specific error code (if available).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error is a transient error that may succeed
// on retry. This includes rate limiting (429), server errors (5xx), and network
// errors (StatusCode 0 indicates no HTTP response was received).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// IsAuth returns true if the error is an authentication or authorization
// failure. Auth errors are fatal to a workflow run; they are never retried.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden
}

// ResponseError indicates the provider replied but the response could not be
// parsed or did not match the requested structure. Callers treat it the same
// as any other per-call failure for fallback purposes.
type ResponseError struct {
	// Reason describes what was wrong with the response.
	Reason string
	// Err is the underlying parse error, if any.
	Err error
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed LLM response: %s: %v", e.Reason, e.Err)
	}
	return "malformed LLM response: " + e.Reason
}

// Unwrap returns the underlying parse error.
func (e *ResponseError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is a provider authentication failure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}

// IsTransientError reports whether err is worth retrying.
func IsTransientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsTransient()
}
