// Package review turns a rehearsal transcript into a scored performance
// review.
package review

import (
	"errors"
	"net/url"
	"time"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
)

var (
	// ErrEmptyTranscript is returned when there is nothing to review.
	ErrEmptyTranscript = errors.New("review: empty transcript")

	// ErrMalformed is returned when the model output is not a valid review.
	ErrMalformed = errors.New("review: malformed model output")

	// ErrNotFound is returned by stores for an unknown review.
	ErrNotFound = errors.New("review: not found")
)

// Review is a generated performance review.
type Review struct {
	ID             string                `json:"id"`
	SessionID      string                `json:"session_id"`
	Kind           exercise.Kind         `json:"kind"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Summary        string                `json:"summary"`
	Score          int                   `json:"score"`
	Strengths      []string              `json:"strengths"`
	Improvements   []string              `json:"improvements"`
	Transcript     transcript.Transcript `json:"transcript"`
	Model          string                `json:"model,omitempty"`
	DocID          string                `json:"doc_id,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Ref points the presentation layer at a stored review.
type Ref struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// RefFor builds the navigable reference of r.
func RefFor(r *Review) Ref {
	q := url.Values{}
	if r.ConversationID != "" {
		q.Set("conversationId", r.ConversationID)
	}
	q.Set("agentType", string(r.Kind))
	return Ref{ID: r.ID, URL: "/results/" + url.PathEscape(r.ID) + "?" + q.Encode()}
}

// Request is the input of one review.
type Request struct {
	SessionID      string
	ConversationID string
	Kind           exercise.Kind
	Transcript     transcript.Transcript
}

// Store persists reviews.
type Store interface {
	Save(r *Review) error
	Get(id string) (*Review, error)
}
