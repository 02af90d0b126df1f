package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
)

// ConnectionState represents the voice session connection state.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates connection is being established.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *ConnectionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "disconnected":
		*s = StateDisconnected
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	default:
		return fmt.Errorf("conversation: unknown state %q", text)
	}
	return nil
}

// Party is who is currently speaking.
type Party string

const (
	PartyNone  Party = "none"
	PartyAgent Party = "agent"
	PartyUser  Party = "user"
)

// EventType identifies a provider event.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventDisconnected   EventType = "disconnected"
	EventAudio          EventType = "audio"
	EventAgentResponse  EventType = "agent_response"
	EventUserTranscript EventType = "user_transcript"
	EventInterruption   EventType = "interruption"
	EventListening      EventType = "listening"
	EventError          EventType = "error"
)

// Event is one message on a provider's event queue.
type Event struct {
	Type EventType
	// Audio is agent PCM16 for EventAudio.
	Audio []byte
	// Text carries responses and transcripts.
	Text string
	// Err is set on EventError and on an unsolicited EventDisconnected.
	Err error
}

// Params selects the remote agent for one connection. SignedURL takes
// precedence over AgentID.
type Params struct {
	SignedURL        string
	AgentID          string
	DynamicVariables map[string]string
}

// Provider is a real-time voice transport. Events returns the queue of the
// current connection; it is closed when the connection ends.
type Provider interface {
	// Connect dials the service and returns the conversation ID.
	Connect(ctx context.Context, p Params) (string, error)

	// Close ends the connection. It is idempotent.
	Close() error

	// IsConnected returns true if connected.
	IsConnected() bool

	// SendAudio streams user PCM16 audio.
	SendAudio(pcm []byte) error

	// Events returns the event queue of the current connection.
	Events() <-chan Event
}

// Authorizer issues short-lived signed URLs for an agent variant.
type Authorizer interface {
	SignedURL(ctx context.Context, variant exercise.Variant) (string, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, variant exercise.Variant) (string, error)

// SignedURL implements Authorizer.
func (f AuthorizerFunc) SignedURL(ctx context.Context, variant exercise.Variant) (string, error) {
	return f(ctx, variant)
}

// Context describes the agent to reach.
type Context struct {
	Variant          exercise.Variant
	AgentID          string
	DynamicVariables map[string]string
}

// WithTranscript returns a copy carrying the transcript as the
// "transcript" dynamic variable.
func (c Context) WithTranscript(t transcript.Transcript) Context {
	vars := make(map[string]string, len(c.DynamicVariables)+1)
	for k, v := range c.DynamicVariables {
		vars[k] = v
	}
	vars["transcript"] = t.Text()
	c.DynamicVariables = vars
	return c
}

// Handle is a snapshot of the live conversation.
type Handle struct {
	ID       string          `json:"id"`
	Speaking Party           `json:"speaking"`
	State    ConnectionState `json:"state"`
}

// Reason is why a conversation ended.
type Reason string

const (
	ReasonManual Reason = "manual"
	ReasonLimit  Reason = "limit"
	ReasonRemote Reason = "remote"
	ReasonClosed Reason = "closed"
)

// End describes a finished conversation.
type End struct {
	ConversationID string
	Reason         Reason
	Elapsed        time.Duration
	Err            error

	// Traffic is set when the provider is Metered.
	Traffic *Metrics
}

// Metered is implemented by providers that count the traffic of their
// current or last connection.
type Metered interface {
	Metrics() Metrics
}

// Metrics tracks connection and usage statistics.
type Metrics struct {
	ConnectionTime     time.Time
	MessagesSent       int64
	MessagesReceived   int64
	AudioBytesSent     int64
	AudioBytesReceived int64
}
