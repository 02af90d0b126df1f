package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversation package.
var (
	// ErrConnect indicates a voice session could not be established by
	// either the signed or the direct path.
	ErrConnect = errors.New("conversation: could not establish voice session")

	// ErrMissingAgentID indicates neither a signed URL nor an agent ID was given.
	ErrMissingAgentID = errors.New("conversation: agent ID is required")

	// ErrNotConnected indicates the provider is not connected.
	ErrNotConnected = errors.New("conversation: not connected")

	// ErrAlreadyConnected indicates a connection is already live or in progress.
	ErrAlreadyConnected = errors.New("conversation: already connected")

	// ErrConnectionClosed indicates the connection was closed unexpectedly.
	ErrConnectionClosed = errors.New("conversation: connection closed")

	// ErrInvalidMessage indicates a malformed message was received.
	ErrInvalidMessage = errors.New("conversation: invalid message")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("conversation: operation timed out")
)

// ConnectError reports why both connection paths failed. It matches
// ErrConnect.
type ConnectError struct {
	// Signed is the failure of the signed-URL path, nil if it was not tried.
	Signed error
	// Direct is the failure of the direct agent-ID path.
	Direct error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	switch {
	case e.Signed != nil && e.Direct != nil:
		return fmt.Sprintf("%v: signed url: %v; direct: %v", ErrConnect, e.Signed, e.Direct)
	case e.Direct != nil:
		return fmt.Sprintf("%v: %v", ErrConnect, e.Direct)
	default:
		return ErrConnect.Error()
	}
}

// Unwrap returns the direct-path failure.
func (e *ConnectError) Unwrap() error {
	return e.Direct
}

// Is reports whether target is ErrConnect.
func (e *ConnectError) Is(target error) bool {
	return target == ErrConnect
}

// APIError represents an error event sent by the conversation service.
type APIError struct {
	// StatusCode is the HTTP status code (if applicable).
	StatusCode int

	// Code is the error code from the API.
	Code string

	// Message is the human-readable error message.
	Message string

	// Retryable indicates if the request can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("conversation: API error [%s]: %s", e.Code, e.Message)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("conversation: API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("conversation: API error: %s", e.Message)
}

// IsRetryable returns true if the error can be retried.
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// NewAPIError creates a new APIError.
func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Retryable:  statusCode == 429 || statusCode >= 500,
	}
}

// ConnectionError represents a WebSocket connection error.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("conversation: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("conversation: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsNotConnected returns true if the error indicates no connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}

// IsRetryable returns true if the error can be retried. A failed connect
// is always retryable by the user.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrConnect) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.IsRetryable()
	}
	return errors.Is(err, ErrTimeout)
}
