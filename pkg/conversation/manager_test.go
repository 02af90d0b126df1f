package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-rehearse/internal/log"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/timer"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
)

type endRecorder struct {
	mu   sync.Mutex
	ends []End
}

func (r *endRecorder) record(e End) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, e)
}

func (r *endRecorder) all() []End {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]End(nil), r.ends...)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func signedOK(url string) Authorizer {
	return AuthorizerFunc(func(context.Context, exercise.Variant) (string, error) {
		return url, nil
	})
}

func signedFail() Authorizer {
	return AuthorizerFunc(func(context.Context, exercise.Variant) (string, error) {
		return "", errors.New("signed url: 500")
	})
}

func newTestManager(p Provider, opts ...ManagerOption) *Manager {
	base := []ManagerOption{
		WithManagerLogger(log.Discard()),
		WithTimerOptions(timer.WithTickInterval(0)),
	}
	return NewManager(p, append(base, opts...)...)
}

func TestConnectPaths(t *testing.T) {
	tests := []struct {
		name       string
		auth       Authorizer
		connect    func(ctx context.Context, p Params) (string, error)
		agentID    string
		wantSigned bool
		wantErr    bool
		fallbacks  int32
	}{
		{
			name:       "signed url",
			auth:       signedOK("wss://signed"),
			agentID:    "agent-1",
			wantSigned: true,
		},
		{
			name:      "signed url fetch fails",
			auth:      signedFail(),
			agentID:   "agent-1",
			fallbacks: 1,
		},
		{
			name: "signed connect fails",
			auth: signedOK("wss://signed"),
			connect: func(_ context.Context, p Params) (string, error) {
				if p.SignedURL != "" {
					return "", errors.New("expired")
				}
				return "direct-1", nil
			},
			agentID:   "agent-1",
			fallbacks: 1,
		},
		{
			name:    "no authorizer",
			agentID: "agent-1",
		},
		{
			name:      "both paths fail",
			auth:      signedFail(),
			connect:   func(context.Context, Params) (string, error) { return "", errors.New("refused") },
			agentID:   "agent-1",
			wantErr:   true,
			fallbacks: 1,
		},
		{
			name:      "no agent id",
			auth:      signedFail(),
			wantErr:   true,
			fallbacks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMock()
			mock.ConnectFunc = tt.connect
			var fallbacks atomic.Int32
			opts := []ManagerOption{OnFallback(func(error) { fallbacks.Add(1) })}
			if tt.auth != nil {
				opts = append(opts, WithAuthorizer(tt.auth))
			}
			m := newTestManager(mock, opts...)

			h, err := m.Connect(context.Background(), Context{Variant: exercise.VariantCommittee, AgentID: tt.agentID})
			if fallbacks.Load() != tt.fallbacks {
				t.Errorf("fallbacks = %d, want %d", fallbacks.Load(), tt.fallbacks)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrConnect) {
					t.Fatalf("Connect() error = %v, want ErrConnect", err)
				}
				if !IsRetryable(err) {
					t.Error("connect failure should be retryable")
				}
				if m.State() != StateDisconnected {
					t.Errorf("State() = %v, want disconnected", m.State())
				}
				return
			}
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer m.Close()

			if h.State != StateConnected || h.ID == "" {
				t.Errorf("Handle = %+v", h)
			}
			last := mock.LastParams()
			if tt.wantSigned {
				if last.SignedURL != "wss://signed" || last.AgentID != "" {
					t.Errorf("params = %+v, want signed", last)
				}
			} else if last.AgentID != tt.agentID || last.SignedURL != "" {
				t.Errorf("params = %+v, want direct", last)
			}
		})
	}
}

func TestConnectTwice(t *testing.T) {
	m := newTestManager(NewMock())
	if _, err := m.Connect(context.Background(), Context{AgentID: "a"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer m.Close()
	if _, err := m.Connect(context.Background(), Context{AgentID: "a"}); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() = %v, want ErrAlreadyConnected", err)
	}
}

func TestDynamicTranscript(t *testing.T) {
	mock := NewMock()
	m := newTestManager(mock, WithAuthorizer(signedOK("wss://signed")))

	c := Context{Variant: exercise.VariantQuestions, AgentID: "a"}.WithTranscript(transcript.FromText("Bonjour à tous"))
	if _, err := m.Connect(context.Background(), c); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer m.Close()

	if got := mock.LastParams().DynamicVariables["transcript"]; got != "Bonjour à tous" {
		t.Errorf("transcript variable = %q", got)
	}
}

func TestSpeakingParty(t *testing.T) {
	mock := NewMock()
	var seen atomic.Int32
	m := newTestManager(mock, OnEvent(func(Event) { seen.Add(1) }))

	if _, err := m.Connect(context.Background(), Context{AgentID: "a"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer m.Close()

	if m.Speaking() != PartyNone {
		t.Errorf("Speaking() = %v, want none", m.Speaking())
	}

	steps := []struct {
		simulate func() bool
		want     Party
	}{
		{func() bool { return mock.SimulateAudio([]byte{1, 2}) }, PartyAgent},
		{func() bool { return mock.SimulateUserTranscript("oui") }, PartyUser},
		{func() bool { return mock.SimulateAgentResponse("Merci.") }, PartyAgent},
		{mock.SimulateInterruption, PartyUser},
		{mock.SimulateListening, PartyNone},
	}
	for i, step := range steps {
		if !step.simulate() {
			t.Fatalf("step %d: mock not connected", i)
		}
		want := step.want
		eventually(t, func() bool { return m.Speaking() == want })
	}
	eventually(t, func() bool { return seen.Load() >= int32(len(steps)) })
}

func TestDisconnectCapturesID(t *testing.T) {
	mock := NewMock()
	ends := &endRecorder{}
	m := newTestManager(mock, OnEnd(ends.record))

	h, err := m.Connect(context.Background(), Context{AgentID: "a"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := m.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	mock.SimulateAudio([]byte{4, 5})

	if got := m.Disconnect(); got != h.ID {
		t.Errorf("Disconnect() = %q, want %q", got, h.ID)
	}
	if got := m.Disconnect(); got != "" {
		t.Errorf("second Disconnect() = %q, want empty", got)
	}
	if mock.IsConnected() {
		t.Error("provider should be closed")
	}

	time.Sleep(20 * time.Millisecond)
	got := ends.all()
	if len(got) != 1 {
		t.Fatalf("OnEnd calls = %d, want 1", len(got))
	}
	if got[0].Reason != ReasonManual || got[0].ConversationID != h.ID {
		t.Errorf("End = %+v", got[0])
	}
	want := Metrics{MessagesSent: 1, AudioBytesSent: 3, MessagesReceived: 1, AudioBytesReceived: 2}
	if tr := got[0].Traffic; tr == nil || *tr != want {
		t.Errorf("End.Traffic = %+v, want %+v", tr, want)
	}
	if m.ConversationID() != h.ID {
		t.Error("ConversationID() should survive the disconnect")
	}
}

func TestRemoteDisconnect(t *testing.T) {
	mock := NewMock()
	ends := &endRecorder{}
	m := newTestManager(mock, OnEnd(ends.record))

	if _, err := m.Connect(context.Background(), Context{AgentID: "a"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	cause := errors.New("network lost")
	mock.SimulateDisconnect(cause)

	eventually(t, func() bool { return len(ends.all()) == 1 })
	end := ends.all()[0]
	if end.Reason != ReasonRemote || !errors.Is(end.Err, cause) {
		t.Errorf("End = %+v", end)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v", m.State())
	}
	if got := m.Disconnect(); got != "" {
		t.Errorf("Disconnect() after remote end = %q", got)
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(ends.all()); n != 1 {
		t.Errorf("OnEnd calls = %d, want 1", n)
	}
}

func TestManualAndRemoteRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		mock := NewMock()
		ends := &endRecorder{}
		m := newTestManager(mock, OnEnd(ends.record))
		if _, err := m.Connect(context.Background(), Context{AgentID: "a"}); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); m.Disconnect() }()
		go func() { defer wg.Done(); mock.SimulateDisconnect(errors.New("drop")) }()
		wg.Wait()

		eventually(t, func() bool { return len(ends.all()) >= 1 })
		time.Sleep(10 * time.Millisecond)
		if n := len(ends.all()); n != 1 {
			t.Fatalf("run %d: OnEnd calls = %d, want 1", i, n)
		}
	}
}

func TestLimitForcesDisconnect(t *testing.T) {
	clock := timer.NewFakeClock(time.Unix(0, 0))
	mock := NewMock()
	ends := &endRecorder{}
	m := newTestManager(mock, OnEnd(ends.record), WithTimerOptions(timer.WithClock(clock)))

	h, err := m.Connect(context.Background(), Context{Variant: exercise.VariantCommittee, AgentID: "a"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	clock.Advance(timer.DefaultLimit - time.Second)
	m.Timer().Tick()
	if m.State() != StateConnected {
		t.Fatal("disconnected before the cap")
	}

	clock.Advance(time.Second)
	m.Timer().Tick()
	m.Timer().Tick()

	eventually(t, func() bool { return len(ends.all()) == 1 })
	end := ends.all()[0]
	if end.Reason != ReasonLimit || end.ConversationID != h.ID || end.Elapsed != timer.DefaultLimit {
		t.Errorf("End = %+v", end)
	}
	if mock.IsConnected() {
		t.Error("provider should be closed at the cap")
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(ends.all()); n != 1 {
		t.Errorf("OnEnd calls = %d, want 1", n)
	}
}

func TestReconnect(t *testing.T) {
	mock := NewMock()
	ends := &endRecorder{}
	m := newTestManager(mock, OnEnd(ends.record))

	first, err := m.Connect(context.Background(), Context{AgentID: "a"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	m.Disconnect()

	second, err := m.Connect(context.Background(), Context{AgentID: "a"})
	if err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if second.ID == first.ID {
		t.Error("reconnect should produce a new conversation")
	}
	m.Close()

	eventually(t, func() bool { return len(ends.all()) == 2 })
	if got := ends.all()[1].Reason; got != ReasonClosed {
		t.Errorf("second End reason = %v, want closed", got)
	}
}

func TestSendAudio(t *testing.T) {
	mock := NewMock()
	m := newTestManager(mock)

	if err := m.SendAudio([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendAudio() before connect = %v, want ErrNotConnected", err)
	}
	if _, err := m.Connect(context.Background(), Context{AgentID: "a"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer m.Close()
	if err := m.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	if sent := mock.SentAudio(); len(sent) != 1 || len(sent[0]) != 3 {
		t.Errorf("AudioSent = %v", sent)
	}
}
