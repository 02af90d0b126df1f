package elevenlabs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("elevenlabs: API key is required")

	// ErrNoAgent indicates no agent is configured for a variant.
	ErrNoAgent = errors.New("elevenlabs: no agent configured")

	// ErrNotReady indicates the conversation transcript is still being
	// processed.
	ErrNotReady = errors.New("elevenlabs: conversation not ready")

	// ErrConversationFailed indicates the service could not process the
	// conversation.
	ErrConversationFailed = errors.New("elevenlabs: conversation processing failed")
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("elevenlabs: API error (HTTP %d) [%s]: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("elevenlabs: API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for rate limits and server errors.
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// IsRetryable reports whether err is a retryable API error.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return errors.Is(err, ErrNotReady)
}

// parseError builds an APIError from an error body. The API answers
// either {"detail": "..."} or {"detail": {"status": "...", "message": "..."}}.
func parseError(status int, body []byte) *APIError {
	e := &APIError{
		StatusCode: status,
		Retryable:  status == http.StatusTooManyRequests || status >= 500,
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		var text string
		switch {
		case json.Unmarshal(envelope.Detail, &detail) == nil && detail.Message != "":
			e.Code = detail.Status
			e.Message = detail.Message
		case json.Unmarshal(envelope.Detail, &text) == nil:
			e.Message = text
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
		if len(body) > 0 && len(body) < 512 {
			e.Message = string(body)
		}
	}
	return e
}
