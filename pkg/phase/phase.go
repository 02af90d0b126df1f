// Package phase implements the two-phase flow of the declaration exercise:
// a recorded monologue, then a live question round seeded with its
// transcript.
package phase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-rehearse/pkg/transcript"
)

// Phase is a step of the exercise.
type Phase string

const (
	Declaration          Phase = "declaration"
	Transcribing         Phase = "transcribing"
	AwaitingConfirmation Phase = "awaiting-confirmation"
	PendingQuestions     Phase = "pending-questions"
	Questions            Phase = "questions"
	Complete             Phase = "complete"
)

// DefaultDelay is the pause between a successful transcription and the
// start of the question round.
const DefaultDelay = 2 * time.Second

var (
	// ErrTranscriptionEmpty indicates the recording produced no usable text.
	ErrTranscriptionEmpty = errors.New("phase: transcription empty")

	// ErrInvalidTransition indicates the operation is not valid in the
	// current phase.
	ErrInvalidTransition = errors.New("phase: invalid transition")
)

// Scheduler runs fn after d and returns a function that cancels it. fn
// must not run before the scheduler returns.
type Scheduler func(d time.Duration, fn func()) (cancel func())

// AfterFunc schedules on the runtime timer.
func AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Option configures a Machine.
type Option func(*Machine)

// WithConfirmation requires Confirm before the question round starts.
func WithConfirmation(enabled bool) Option {
	return func(m *Machine) { m.confirm = enabled }
}

// WithDelay sets the delay before the question round starts.
func WithDelay(d time.Duration) Option {
	return func(m *Machine) { m.delay = d }
}

// WithScheduler sets how the delayed transition is scheduled.
func WithScheduler(s Scheduler) Option {
	return func(m *Machine) { m.after = s }
}

// WithInitial sets the starting phase. Single-phase exercises start in
// Questions.
func WithInitial(p Phase) Option {
	return func(m *Machine) { m.phase = p }
}

// OnEnterQuestions sets the callback fired once when the question round
// starts.
func OnEnterQuestions(fn func(transcript.Transcript)) Option {
	return func(m *Machine) { m.onEnterQuestions = fn }
}

// OnChange sets a callback fired on every phase change.
func OnChange(fn func(from, to Phase)) Option {
	return func(m *Machine) { m.onChange = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// Machine is the phase state machine. It is safe for concurrent use but is
// meant to be driven from one event loop.
type Machine struct {
	confirm          bool
	delay            time.Duration
	after            Scheduler
	onEnterQuestions func(transcript.Transcript)
	onChange         func(from, to Phase)
	logger           *slog.Logger

	mu         sync.Mutex
	phase      Phase
	transcript transcript.Transcript
	cancel     func()
	gen        int
	entered    bool
}

// New creates a machine in the Declaration phase.
func New(opts ...Option) *Machine {
	m := &Machine{
		phase:  Declaration,
		delay:  DefaultDelay,
		after:  AfterFunc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "phase.machine")
	return m
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Transcript returns the accepted declaration transcript.
func (m *Machine) Transcript() transcript.Transcript {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

// BeginTranscription marks the recording as handed to transcription.
func (m *Machine) BeginTranscription() error {
	return m.transition(Declaration, Transcribing)
}

// TranscriptionResult applies the outcome of transcription. A failed or
// blank result returns to Declaration with ErrTranscriptionEmpty so the
// user can record again. Otherwise the machine waits for Confirm or
// schedules the question round.
func (m *Machine) TranscriptionResult(text string, err error) (Phase, error) {
	m.mu.Lock()
	if m.phase != Transcribing {
		p := m.phase
		m.mu.Unlock()
		return p, fmt.Errorf("%w: transcription result in %s", ErrInvalidTransition, p)
	}

	if err != nil || strings.TrimSpace(text) == "" {
		m.phase = Declaration
		m.mu.Unlock()
		m.changed(Transcribing, Declaration)
		if err != nil {
			return Declaration, fmt.Errorf("%w: %v", ErrTranscriptionEmpty, err)
		}
		return Declaration, ErrTranscriptionEmpty
	}

	m.transcript = transcript.FromText(text)
	next := PendingQuestions
	if m.confirm {
		next = AwaitingConfirmation
	} else {
		m.schedule()
	}
	m.phase = next
	m.mu.Unlock()

	m.changed(Transcribing, next)
	return next, nil
}

// Confirm accepts the transcript and starts the question round.
func (m *Machine) Confirm() error {
	if err := m.transition(AwaitingConfirmation, PendingQuestions); err != nil {
		return err
	}
	return m.Advance()
}

// Retake rejects the transcript and returns to Declaration.
func (m *Machine) Retake() error {
	m.mu.Lock()
	if m.phase != AwaitingConfirmation {
		p := m.phase
		m.mu.Unlock()
		return fmt.Errorf("%w: retake in %s", ErrInvalidTransition, p)
	}
	m.phase = Declaration
	m.transcript = transcript.Transcript{}
	m.mu.Unlock()
	m.changed(AwaitingConfirmation, Declaration)
	return nil
}

// Advance enters Questions and fires OnEnterQuestions once.
func (m *Machine) Advance() error {
	m.mu.Lock()
	if m.phase != PendingQuestions {
		p := m.phase
		m.mu.Unlock()
		return fmt.Errorf("%w: advance in %s", ErrInvalidTransition, p)
	}
	m.cancelLocked()
	m.phase = Questions
	fire := !m.entered
	m.entered = true
	tr := m.transcript
	cb := m.onEnterQuestions
	m.mu.Unlock()

	m.changed(PendingQuestions, Questions)
	if fire && cb != nil {
		cb(tr)
	}
	return nil
}

// Complete enters Complete. It returns false if already complete.
func (m *Machine) Complete() bool {
	m.mu.Lock()
	if m.phase == Complete {
		m.mu.Unlock()
		return false
	}
	from := m.phase
	m.cancelLocked()
	m.phase = Complete
	m.mu.Unlock()

	m.changed(from, Complete)
	return true
}

// Cancel cancels a pending scheduled transition.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
}

func (m *Machine) transition(from, to Phase) error {
	m.mu.Lock()
	if m.phase != from {
		p := m.phase
		m.mu.Unlock()
		return fmt.Errorf("%w: %s to %s in %s", ErrInvalidTransition, from, to, p)
	}
	m.phase = to
	m.mu.Unlock()
	m.changed(from, to)
	return nil
}

// schedule must be called with mu held.
func (m *Machine) schedule() {
	m.cancelLocked()
	gen := m.gen
	m.cancel = m.after(m.delay, func() {
		m.mu.Lock()
		stale := gen != m.gen
		m.mu.Unlock()
		if stale {
			return
		}
		if err := m.Advance(); err != nil {
			m.logger.Debug("scheduled advance skipped", "error", err)
		}
	})
}

// cancelLocked must be called with mu held.
func (m *Machine) cancelLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Machine) changed(from, to Phase) {
	m.logger.Debug("phase changed", "from", from, "to", to)
	if m.onChange != nil {
		m.onChange(from, to)
	}
}
