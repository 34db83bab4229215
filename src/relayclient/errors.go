package relayclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error variables
var (
	// ErrNoBaseURL indicates the client was built without a server URL
	ErrNoBaseURL = errors.New("relay base URL is required")

	// ErrSessionGone indicates the session was deleted or expired server-side
	ErrSessionGone = errors.New("session gone")

	// ErrNotFound indicates the addressed resource no longer exists
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing or rejected token
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoActiveTurn indicates an interrupt/steer raced a turn that already ended
	ErrNoActiveTurn = errors.New("no active turn")
)

// ErrorResponse matches the relay error format:
// {"error":{"message":"...","code":"..."}}
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// APIError represents an error response from the relay API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("relay error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("relay error %d: %s", e.StatusCode, e.Message)
}

// Is maps well-known statuses onto the package sentinels so callers can use
// errors.Is without losing the structured error.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrSessionGone:
		return e.StatusCode == http.StatusGone
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNoActiveTurn:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// IsRetryable returns true if the request may succeed on a retry.
func (e *APIError) IsRetryable() bool {
	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
