package conversation

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a mock implementation of Provider for testing.
type Mock struct {
	mu sync.Mutex

	// State
	connected bool
	events    chan Event
	count     int
	traffic   Metrics

	// Configurable behavior
	ConnectFunc   func(ctx context.Context, p Params) (string, error)
	SendAudioFunc func(pcm []byte) error

	// Captured calls for assertions
	Connects  []Params
	AudioSent [][]byte
	Closes    int
}

// NewMock creates a new Mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// Connect implements Provider. Without ConnectFunc it succeeds with IDs
// "conv-1", "conv-2", and so on.
func (m *Mock) Connect(ctx context.Context, p Params) (string, error) {
	m.mu.Lock()
	if m.connected {
		m.mu.Unlock()
		return "", ErrAlreadyConnected
	}
	m.Connects = append(m.Connects, p)
	m.count++
	n := m.count
	fn := m.ConnectFunc
	m.mu.Unlock()

	id := fmt.Sprintf("conv-%d", n)
	if fn != nil {
		var err error
		if id, err = fn(ctx, p); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.traffic = Metrics{}
	m.events = make(chan Event, 64)
	m.events <- Event{Type: EventConnected}
	return id, nil
}

// Close implements Provider.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closes++
	if m.connected {
		m.connected = false
		close(m.events)
	}
	return nil
}

// IsConnected implements Provider.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SendAudio implements Provider.
func (m *Mock) SendAudio(pcm []byte) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(pcm)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.AudioSent = append(m.AudioSent, append([]byte(nil), pcm...))
	m.traffic.MessagesSent++
	m.traffic.AudioBytesSent += int64(len(pcm))
	return nil
}

// Metrics implements Metered for the current or last connection.
func (m *Mock) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.traffic
}

// Events implements Provider.
func (m *Mock) Events() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// LastParams returns the parameters of the most recent Connect call.
func (m *Mock) LastParams() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Connects) == 0 {
		return Params{}
	}
	return m.Connects[len(m.Connects)-1]
}

// SentAudio returns a copy of the audio passed to SendAudio.
func (m *Mock) SentAudio() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.AudioSent...)
}

// Simulation helpers for testing

// SimulateEvent queues ev on the live connection. It reports false when
// nothing is connected.
func (m *Mock) SimulateEvent(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return false
	}
	m.traffic.MessagesReceived++
	m.traffic.AudioBytesReceived += int64(len(ev.Audio))
	m.events <- ev
	return true
}

// SimulateAudio simulates agent audio.
func (m *Mock) SimulateAudio(pcm []byte) bool {
	return m.SimulateEvent(Event{Type: EventAudio, Audio: pcm})
}

// SimulateAgentResponse simulates an agent response.
func (m *Mock) SimulateAgentResponse(text string) bool {
	return m.SimulateEvent(Event{Type: EventAgentResponse, Text: text})
}

// SimulateUserTranscript simulates a user transcript.
func (m *Mock) SimulateUserTranscript(text string) bool {
	return m.SimulateEvent(Event{Type: EventUserTranscript, Text: text})
}

// SimulateInterruption simulates the user interrupting the agent.
func (m *Mock) SimulateInterruption() bool {
	return m.SimulateEvent(Event{Type: EventInterruption})
}

// SimulateListening simulates the agent yielding the turn.
func (m *Mock) SimulateListening() bool {
	return m.SimulateEvent(Event{Type: EventListening})
}

// SimulateDisconnect simulates the remote end dropping the connection.
func (m *Mock) SimulateDisconnect(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return false
	}
	m.connected = false
	m.events <- Event{Type: EventDisconnected, Err: err}
	close(m.events)
	return true
}

var (
	_ Provider = (*Mock)(nil)
	_ Metered  = (*Mock)(nil)
)
