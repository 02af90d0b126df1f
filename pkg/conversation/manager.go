// Package conversation manages real-time voice sessions with a remote
// agent: connection with signed-URL fallback, speaking state, the session
// time budget, and a single end notification per connection.
package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-rehearse/pkg/timer"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAuthorizer sets the signed-URL issuer. Without one only the direct
// path is used.
func WithAuthorizer(a Authorizer) ManagerOption {
	return func(m *Manager) { m.auth = a }
}

// WithManagerLogger sets the structured logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithTimerOptions configures the session timer.
func WithTimerOptions(opts ...timer.Option) ManagerOption {
	return func(m *Manager) { m.timerOpts = append(m.timerOpts, opts...) }
}

// OnEnd sets the callback fired exactly once per connection.
func OnEnd(fn func(End)) ManagerOption {
	return func(m *Manager) { m.onEnd = fn }
}

// OnEvent sets an observer for provider events of the live connection.
func OnEvent(fn func(Event)) ManagerOption {
	return func(m *Manager) { m.onEvent = fn }
}

// OnFallback sets a callback fired when the signed path fails and the
// direct path is tried.
func OnFallback(fn func(err error)) ManagerOption {
	return func(m *Manager) { m.onFallback = fn }
}

// Manager drives one provider through successive connections.
type Manager struct {
	provider   Provider
	auth       Authorizer
	logger     *slog.Logger
	timerOpts  []timer.Option
	onEnd      func(End)
	onEvent    func(Event)
	onFallback func(error)

	timer *timer.Timer

	mu       sync.Mutex
	state    ConnectionState
	speaking Party
	convID   string
	link     *link
}

// link is one connection. ended guards the end notification.
type link struct {
	id    string
	ended bool
}

// NewManager creates a manager for provider.
func NewManager(provider Provider, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider: provider,
		logger:   slog.Default(),
		state:    StateDisconnected,
		speaking: PartyNone,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "conversation.manager")
	topts := append([]timer.Option{}, m.timerOpts...)
	topts = append(topts, timer.OnLimit(m.limitReached))
	m.timer = timer.New(topts...)
	return m
}

// Connect establishes a voice session. The signed-URL path is tried first;
// on failure the agent is dialed directly. If both fail a *ConnectError is
// returned and nothing is retried.
func (m *Manager) Connect(ctx context.Context, c Context) (Handle, error) {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return Handle{}, ErrAlreadyConnected
	}
	m.state = StateConnecting
	m.mu.Unlock()

	id, err := m.dial(ctx, c)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.logger.Warn("voice session failed", "variant", c.Variant, "error", err)
		return Handle{}, err
	}

	l := &link{id: id}
	events := m.provider.Events()

	m.mu.Lock()
	m.state = StateConnected
	m.speaking = PartyNone
	m.convID = id
	m.link = l
	m.mu.Unlock()

	m.timer.Start()
	go m.watch(l, events)

	m.logger.Info("voice session connected", "conversation_id", id, "variant", c.Variant)
	return m.Handle(), nil
}

func (m *Manager) dial(ctx context.Context, c Context) (string, error) {
	var signedErr error
	if m.auth != nil {
		signed, err := m.auth.SignedURL(ctx, c.Variant)
		if err == nil {
			id, err := m.provider.Connect(ctx, Params{SignedURL: signed, DynamicVariables: c.DynamicVariables})
			if err == nil {
				return id, nil
			}
			signedErr = err
		} else {
			signedErr = err
		}
		if ctx.Err() != nil {
			return "", &ConnectError{Signed: signedErr, Direct: ctx.Err()}
		}
		m.logger.Warn("signed url path failed, connecting directly", "variant", c.Variant, "error", signedErr)
		if m.onFallback != nil {
			m.onFallback(signedErr)
		}
	}

	if c.AgentID == "" {
		return "", &ConnectError{Signed: signedErr, Direct: ErrMissingAgentID}
	}
	id, err := m.provider.Connect(ctx, Params{AgentID: c.AgentID, DynamicVariables: c.DynamicVariables})
	if err != nil {
		return "", &ConnectError{Signed: signedErr, Direct: err}
	}
	return id, nil
}

// watch consumes the provider queue of one connection. A closed queue is
// an unsolicited disconnect unless the link already ended.
func (m *Manager) watch(l *link, events <-chan Event) {
	for ev := range events {
		if ev.Type == EventDisconnected {
			m.finish(l, ReasonRemote, ev.Err)
			continue
		}

		m.mu.Lock()
		live := m.link == l && !l.ended
		if live {
			switch ev.Type {
			case EventAudio, EventAgentResponse:
				m.speaking = PartyAgent
			case EventUserTranscript, EventInterruption:
				m.speaking = PartyUser
			case EventListening:
				m.speaking = PartyNone
			}
		}
		m.mu.Unlock()

		if ev.Type == EventError {
			m.logger.Warn("provider error", "error", ev.Err)
		}
		if live && m.onEvent != nil {
			m.onEvent(ev)
		}
	}
	m.finish(l, ReasonRemote, ErrConnectionClosed)
}

func (m *Manager) limitReached(elapsed time.Duration) {
	m.mu.Lock()
	l := m.link
	m.mu.Unlock()
	if l == nil {
		return
	}
	m.logger.Info("voice session cap reached", "elapsed", elapsed)
	m.finish(l, ReasonLimit, nil)
}

// finish ends l once. The conversation ID is captured before the provider
// is closed.
func (m *Manager) finish(l *link, reason Reason, cause error) (End, bool) {
	m.mu.Lock()
	if l == nil || l.ended {
		m.mu.Unlock()
		return End{}, false
	}
	l.ended = true
	id := l.id
	current := m.link == l
	if current {
		m.state = StateDisconnected
		m.speaking = PartyNone
	}
	m.mu.Unlock()

	m.timer.Stop()
	elapsed := m.timer.Elapsed()
	if current {
		if err := m.provider.Close(); err != nil {
			m.logger.Debug("provider close", "error", err)
		}
	}

	end := End{ConversationID: id, Reason: reason, Elapsed: elapsed}
	if reason == ReasonRemote {
		end.Err = cause
	}
	if mp, ok := m.provider.(Metered); ok {
		t := mp.Metrics()
		end.Traffic = &t
	}
	m.logger.Info("voice session ended", "conversation_id", id, "reason", reason, "elapsed", elapsed)
	if m.onEnd != nil {
		m.onEnd(end)
	}
	return end, true
}

// Disconnect ends the live conversation at the user's request and returns
// its ID, or "" if nothing was live.
func (m *Manager) Disconnect() string {
	return m.end(ReasonManual)
}

// Close ends the live conversation during teardown.
func (m *Manager) Close() string {
	return m.end(ReasonClosed)
}

func (m *Manager) end(reason Reason) string {
	m.mu.Lock()
	l := m.link
	m.mu.Unlock()
	end, ok := m.finish(l, reason, nil)
	if !ok {
		return ""
	}
	return end.ConversationID
}

// SendAudio forwards user audio to the live connection.
func (m *Manager) SendAudio(pcm []byte) error {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != StateConnected {
		return ErrNotConnected
	}
	return m.provider.SendAudio(pcm)
}

// Handle returns a snapshot of the conversation.
func (m *Manager) Handle() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Handle{ID: m.convID, Speaking: m.speaking, State: m.state}
}

// State returns the connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Speaking returns who is speaking.
func (m *Manager) Speaking() Party {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

// ConversationID returns the ID of the current or last conversation.
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.convID
}

// Elapsed returns the time spent in the current or last conversation.
func (m *Manager) Elapsed() time.Duration {
	return m.timer.Elapsed()
}

// Timer exposes the session timer.
func (m *Manager) Timer() *timer.Timer {
	return m.timer
}
