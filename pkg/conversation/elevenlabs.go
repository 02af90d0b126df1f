package conversation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ElevenLabs implements Provider for the ElevenLabs conversational AI
// WebSocket API.
type ElevenLabs struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     ConnectionState
	events    chan Event
	convID    string
	closing   bool
	connectAt time.Time

	writeMu sync.Mutex

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	audioSent        atomic.Int64
	audioReceived    atomic.Int64
}

// NewElevenLabs creates a new ElevenLabs conversation provider.
//
//	provider := NewElevenLabs(
//	    WithAPIKey(apiKey),
//	    WithLogger(logger),
//	)
//	id, err := provider.Connect(ctx, Params{SignedURL: signed})
func NewElevenLabs(opts ...Option) *ElevenLabs {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	return &ElevenLabs{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.elevenlabs"),
		state:  StateDisconnected,
	}
}

// Connect dials the agent, sends the initiation data carrying the dynamic
// variables, and waits for the session metadata that names the
// conversation.
func (e *ElevenLabs) Connect(ctx context.Context, p Params) (string, error) {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.mu.Unlock()
		return "", ErrAlreadyConnected
	}
	e.state = StateConnecting
	e.mu.Unlock()

	id, conn, err := e.dial(ctx, p)
	if err != nil {
		e.mu.Lock()
		e.state = StateDisconnected
		e.mu.Unlock()
		return "", err
	}

	events := make(chan Event, e.config.EventBuffer)

	e.mu.Lock()
	e.conn = conn
	e.state = StateConnected
	e.events = events
	e.convID = id
	e.closing = false
	e.connectAt = time.Now()
	e.messagesSent.Store(0)
	e.messagesReceived.Store(0)
	e.audioSent.Store(0)
	e.audioReceived.Store(0)
	e.mu.Unlock()

	events <- Event{Type: EventConnected}
	go e.handleMessages(conn, events)

	e.logger.Info("connected to ElevenLabs", "conversation_id", id)
	return id, nil
}

func (e *ElevenLabs) dial(ctx context.Context, p Params) (string, *websocket.Conn, error) {
	target, signed, err := e.target(p)
	if err != nil {
		return "", nil, err
	}

	headers := http.Header{}
	if !signed && e.config.APIKey != "" {
		headers.Set("xi-api-key", e.config.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: e.config.Timeout,
	}

	e.logger.Info("connecting to ElevenLabs", "signed", signed, "agent_id", p.AgentID)

	conn, resp, err := dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil {
			return "", nil, NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
		}
		return "", nil, NewConnectionError("dial failed", err, true)
	}

	id, err := e.initiate(ctx, conn, p.DynamicVariables)
	if err != nil {
		conn.Close()
		return "", nil, err
	}
	return id, conn, nil
}

func (e *ElevenLabs) target(p Params) (string, bool, error) {
	if p.SignedURL != "" {
		return p.SignedURL, true, nil
	}
	if p.AgentID == "" {
		return "", false, ErrMissingAgentID
	}
	u, err := url.Parse(e.config.BaseURL)
	if err != nil {
		return "", false, fmt.Errorf("conversation.elevenlabs: invalid URL: %w", err)
	}
	q := u.Query()
	q.Set("agent_id", p.AgentID)
	u.RawQuery = q.Encode()
	return u.String(), false, nil
}

func (e *ElevenLabs) initiate(ctx context.Context, conn *websocket.Conn, vars map[string]string) (string, error) {
	start := initiationMessage{Type: "conversation_initiation_client_data"}
	if len(vars) > 0 {
		start.DynamicVariables = vars
	}
	data, err := json.Marshal(start)
	if err != nil {
		return "", fmt.Errorf("conversation.elevenlabs: marshal failed: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", NewConnectionError("send initiation failed", err, true)
	}

	deadline := time.Now().Add(e.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", NewConnectionError("waiting for session metadata", err, true)
		}
		var msg incoming
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "conversation_initiation_metadata":
			if msg.Metadata == nil || msg.Metadata.ConversationID == "" {
				return "", fmt.Errorf("%w: metadata without conversation id", ErrInvalidMessage)
			}
			return msg.Metadata.ConversationID, nil
		case "ping":
			e.pong(conn, msg)
		case "error":
			return "", NewAPIError(0, msg.Code, msg.Message)
		}
	}
}

// Close ends the connection. The event queue is closed by the read loop.
func (e *ElevenLabs) Close() error {
	e.mu.Lock()
	conn := e.conn
	if conn == nil {
		e.mu.Unlock()
		return nil
	}
	e.conn = nil
	e.closing = true
	e.state = StateDisconnected
	e.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	err := conn.Close()

	e.logger.Info("disconnected from ElevenLabs")
	return err
}

// IsConnected returns true if connected.
func (e *ElevenLabs) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateConnected
}

// Events returns the event queue of the current connection.
func (e *ElevenLabs) Events() <-chan Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.events
}

// ConversationID returns the ID of the current or last conversation.
func (e *ElevenLabs) ConversationID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.convID
}

// SendAudio sends a user audio chunk.
func (e *ElevenLabs) SendAudio(pcm []byte) error {
	e.mu.RLock()
	conn := e.conn
	state := e.state
	e.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(audioChunkMessage{UserAudioChunk: base64.StdEncoding.EncodeToString(pcm)})
	if err != nil {
		return fmt.Errorf("conversation.elevenlabs: marshal failed: %w", err)
	}

	if err := e.write(conn, data); err != nil {
		return NewConnectionError("send audio failed", err, true)
	}
	e.messagesSent.Add(1)
	e.audioSent.Add(int64(len(pcm)))
	return nil
}

// Metrics returns the statistics of the current or last connection.
func (e *ElevenLabs) Metrics() Metrics {
	e.mu.RLock()
	at := e.connectAt
	e.mu.RUnlock()
	return Metrics{
		ConnectionTime:     at,
		MessagesSent:       e.messagesSent.Load(),
		MessagesReceived:   e.messagesReceived.Load(),
		AudioBytesSent:     e.audioSent.Load(),
		AudioBytesReceived: e.audioReceived.Load(),
	}
}

func (e *ElevenLabs) write(conn *websocket.Conn, data []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(e.config.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// handleMessages reads until the connection fails or is closed, then
// closes the event queue.
func (e *ElevenLabs) handleMessages(conn *websocket.Conn, events chan Event) {
	defer close(events)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(e.config.ReadTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			solicited := e.closing && e.conn != conn
			if e.conn == conn {
				e.conn = nil
				e.state = StateDisconnected
			}
			e.mu.Unlock()

			if solicited {
				return
			}
			var cause error = NewConnectionError("read failed", err, true)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.logger.Info("connection closed by remote")
				cause = ErrConnectionClosed
			} else {
				e.logger.Error("read error", "error", err)
			}
			conn.Close()
			e.emit(events, Event{Type: EventDisconnected, Err: cause})
			return
		}

		e.messagesReceived.Add(1)

		var msg incoming
		if err := json.Unmarshal(data, &msg); err != nil {
			e.logger.Warn("failed to parse message", "error", err)
			continue
		}

		e.handleMessage(conn, events, msg)
	}
}

func (e *ElevenLabs) handleMessage(conn *websocket.Conn, events chan Event, msg incoming) {
	switch msg.Type {
	case "audio":
		// Handle both nested (audio_event) and flat (audio) formats
		encoded := msg.Audio
		if msg.AudioEvent != nil && msg.AudioEvent.AudioBase64 != "" {
			encoded = msg.AudioEvent.AudioBase64
		}
		if encoded == "" {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			e.logger.Warn("failed to decode audio", "error", err)
			return
		}
		e.audioReceived.Add(int64(len(audio)))
		e.emit(events, Event{Type: EventAudio, Audio: audio})

	case "agent_response":
		text := msg.Text
		if msg.AgentResponse != nil {
			text = msg.AgentResponse.AgentResponse
		}
		e.emit(events, Event{Type: EventAgentResponse, Text: text})

	case "user_transcript":
		text := msg.Text
		if msg.UserTranscription != nil {
			text = msg.UserTranscription.UserTranscript
		}
		e.emit(events, Event{Type: EventUserTranscript, Text: text})

	case "interruption":
		e.emit(events, Event{Type: EventInterruption})

	case "audio_done", "agent_response_done":
		e.emit(events, Event{Type: EventListening})

	case "error":
		e.emit(events, Event{Type: EventError, Err: NewAPIError(0, msg.Code, msg.Message)})

	case "ping":
		e.pong(conn, msg)

	default:
		e.logger.Debug("unhandled message type", "type", msg.Type)
	}
}

// emit queues an event. Audio is dropped when the queue is full; other
// events wait.
func (e *ElevenLabs) emit(events chan Event, ev Event) {
	if ev.Type == EventAudio {
		select {
		case events <- ev:
		default:
			e.logger.Warn("event queue full, dropping audio")
		}
		return
	}
	events <- ev
}

// pong responds to a ping message with its event_id.
func (e *ElevenLabs) pong(conn *websocket.Conn, msg incoming) {
	eventID := 0
	if msg.PingEvent != nil {
		eventID = msg.PingEvent.EventID
	}
	data, _ := json.Marshal(pongMessage{Type: "pong", EventID: eventID})
	if err := e.write(conn, data); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		e.logger.Debug("pong failed", "error", err)
	}
}

// Message types for the ElevenLabs API

type initiationMessage struct {
	Type             string            `json:"type"`
	DynamicVariables map[string]string `json:"dynamic_variables,omitempty"`
}

type audioChunkMessage struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

type incoming struct {
	Type    string `json:"type"`
	Audio   string `json:"audio,omitempty"`
	Text    string `json:"text,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Nested event structures
	Metadata          *metadataEvent          `json:"conversation_initiation_metadata_event,omitempty"`
	AudioEvent        *audioEvent             `json:"audio_event,omitempty"`
	AgentResponse     *agentResponseEvent     `json:"agent_response_event,omitempty"`
	UserTranscription *userTranscriptionEvent `json:"user_transcription_event,omitempty"`
	PingEvent         *pingEvent              `json:"ping_event,omitempty"`
}

type metadataEvent struct {
	ConversationID         string `json:"conversation_id"`
	AgentOutputAudioFormat string `json:"agent_output_audio_format,omitempty"`
	UserInputAudioFormat   string `json:"user_input_audio_format,omitempty"`
}

type audioEvent struct {
	EventID     int    `json:"event_id"`
	AudioBase64 string `json:"audio_base_64"`
}

type agentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
}

type userTranscriptionEvent struct {
	UserTranscript string `json:"user_transcript"`
}

type pingEvent struct {
	EventID int `json:"event_id"`
	PingMs  int `json:"ping_ms,omitempty"`
}

// Ensure ElevenLabs implements Provider.
var (
	_ Provider = (*ElevenLabs)(nil)
	_ Metered  = (*ElevenLabs)(nil)
)
