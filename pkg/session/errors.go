package session

import (
	"errors"

	"github.com/teslashibe/go-rehearse/pkg/conversation"
	"github.com/teslashibe/go-rehearse/pkg/media"
	"github.com/teslashibe/go-rehearse/pkg/phase"
	"github.com/teslashibe/go-rehearse/pkg/workflow"
)

// Sentinel errors for the session package.
var (
	// ErrInvalidState indicates the action is not valid in the current
	// status or phase.
	ErrInvalidState = errors.New("session: invalid state")

	// ErrClosed indicates the session was closed.
	ErrClosed = errors.New("session: closed")

	// ErrNotFound indicates no live session has the given ID.
	ErrNotFound = errors.New("session: not found")

	// ErrNoRecording indicates there is no finished recording to submit.
	ErrNoRecording = errors.New("session: no recording to submit")
)

// Code classifies a failure shown to the user.
type Code string

const (
	CodeDeviceDenied       Code = "device_denied"
	CodeConnect            Code = "connect_failed"
	CodeTranscriptionEmpty Code = "transcription_empty"
	CodeRetrievalFailed    Code = "retrieval_failed"
	CodeReviewFailed       Code = "review_failed"
	CodeInternal           Code = "internal"
)

// Error is a recovered failure as exposed in a Snapshot.
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return string(e.Code) + ": " + e.Detail
	}
	return string(e.Code) + ": " + e.Message
}

// Classify maps err onto the failure taxonomy. It returns nil for a nil
// error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	e := &Error{Detail: err.Error()}
	switch {
	case errors.Is(err, media.ErrDeviceDenied):
		e.Code = CodeDeviceDenied
		e.Message = "Accès à la caméra ou au micro refusé. La session continue avec les périphériques disponibles."
	case errors.Is(err, conversation.ErrConnect):
		e.Code = CodeConnect
		e.Message = "Impossible de démarrer la conversation. Réessayez."
		e.Retryable = true
	case errors.Is(err, phase.ErrTranscriptionEmpty):
		e.Code = CodeTranscriptionEmpty
		e.Message = "Aucune parole détectée dans l'enregistrement. Veuillez réenregistrer votre déclaration."
		e.Retryable = true
	case errors.Is(err, workflow.ErrRetrievalFailed):
		e.Code = CodeRetrievalFailed
		e.Message = "Impossible de récupérer la transcription de la conversation."
		e.Retryable = true
	case errors.Is(err, workflow.ErrReviewFailed):
		e.Code = CodeReviewFailed
		e.Message = "Impossible de générer l'analyse de votre performance."
		e.Retryable = true
	default:
		e.Code = CodeInternal
		e.Message = "Une erreur inattendue est survenue."
	}
	return e
}
