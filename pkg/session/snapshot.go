package session

import (
	"time"

	"github.com/teslashibe/go-rehearse/pkg/conversation"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/phase"
	"github.com/teslashibe/go-rehearse/pkg/recorder"
	"github.com/teslashibe/go-rehearse/pkg/review"
	"github.com/teslashibe/go-rehearse/pkg/timer"
)

// Status is the lifecycle status of a session.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusEnded        Status = "ended"
)

// Snapshot is the presentation view of a session.
type Snapshot struct {
	ID     string        `json:"id"`
	Kind   exercise.Kind `json:"kind"`
	Title  string        `json:"title"`
	Status Status        `json:"status"`

	// Phase is only set for multi-phase exercises.
	Phase      phase.Phase `json:"phase,omitempty"`
	Transcript string      `json:"transcript,omitempty"`

	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Clock          string `json:"clock"`
	Budget         string `json:"budget"`

	Media        MediaState        `json:"media"`
	Recording    RecordingState    `json:"recording"`
	Conversation ConversationState `json:"conversation"`

	Reviewing bool        `json:"reviewing"`
	Review    *review.Ref `json:"review,omitempty"`
	Error     *Error      `json:"error,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// MediaState describes the live devices.
type MediaState struct {
	Acquired bool `json:"acquired"`
	Video    bool `json:"video"`
	Audio    bool `json:"audio"`
}

// RecordingState describes the declaration recorder.
type RecordingState struct {
	State      string             `json:"state"`
	Elapsed    string             `json:"elapsed"`
	Finalizing bool               `json:"finalizing"`
	Level      float64            `json:"level"`
	Artifact   *recorder.Artifact `json:"artifact,omitempty"`
}

// ConversationState describes the voice session.
type ConversationState struct {
	ID        string                       `json:"id,omitempty"`
	State     conversation.ConnectionState `json:"state"`
	Speaking  conversation.Party           `json:"speaking"`
	Elapsed   string                       `json:"elapsed"`
	Remaining string                       `json:"remaining"`
}

// snapshot must run on the loop.
func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:             s.id,
		Kind:           s.profile.Kind,
		Title:          s.profile.Title,
		Status:         s.status,
		ElapsedSeconds: int64(s.timer.Elapsed() / time.Second),
		Budget:         timer.Format(s.cfg.limit),
		Reviewing:      s.reviewing,
		Review:         s.review,
		Error:          s.err,
		UpdatedAt:      time.Now(),
	}

	current := s.phase.Phase()
	if s.profile.MultiPhase {
		snap.Phase = current
		snap.Transcript = s.phase.Transcript().Text()
	}

	if s.handle != nil {
		snap.Media = MediaState{
			Acquired: true,
			Video:    s.handle.VideoEnabled(),
			Audio:    s.handle.AudioEnabled(),
		}
	}

	snap.Recording = RecordingState{
		State:      s.rec.State().String(),
		Elapsed:    timer.Format(s.rec.Elapsed()),
		Finalizing: s.rec.Finalizing(),
		Level:      s.rec.Level(),
		Artifact:   s.artifact,
	}

	h := s.conv.Handle()
	snap.Conversation = ConversationState{
		ID:        s.convID,
		State:     h.State,
		Speaking:  h.Speaking,
		Elapsed:   timer.Format(s.conv.Elapsed()),
		Remaining: timer.Format(s.conv.Timer().Remaining()),
	}

	snap.Clock = snap.Conversation.Elapsed
	if s.profile.MultiPhase && current != phase.Questions && current != phase.Complete {
		snap.Clock = snap.Recording.Elapsed
	}
	return snap
}
