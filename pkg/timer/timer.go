// Package timer implements the elapsed-time counter shared by recordings and
// live conversations.
//
// Elapsed time is derived from wall-clock deltas rather than counted ticks, so
// a slow or stalled ticker never makes the displayed value drift. The ticker
// only drives the hard-cap check.
package timer

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultLimit is the hard cap for a rehearsal segment.
	DefaultLimit = 900 * time.Second

	// DefaultTickInterval is how often the cap is evaluated.
	DefaultTickInterval = time.Second
)

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock.
var System Clock = systemClock{}

// State is a snapshot of the timer.
type State struct {
	StartEpoch        time.Time     `json:"start_epoch"`
	PausedAccumulated time.Duration `json:"paused_accumulated"`
	Running           bool          `json:"running"`
}

// Elapsed returns the displayed elapsed time at now.
func (s State) Elapsed(now time.Time) time.Duration {
	d := s.PausedAccumulated
	if s.Running {
		d += now.Sub(s.StartEpoch)
	}
	if d < 0 {
		return 0
	}
	return d
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock sets the clock.
func WithClock(c Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithLimit sets the hard cap. Zero disables it.
func WithLimit(d time.Duration) Option {
	return func(t *Timer) { t.limit = d }
}

// WithTickInterval sets the ticker period. Zero disables the internal ticker;
// callers then drive the cap check with Tick.
func WithTickInterval(d time.Duration) Option {
	return func(t *Timer) { t.interval = d }
}

// OnLimit sets the callback fired once per Start when the cap is reached.
func OnLimit(fn func(elapsed time.Duration)) Option {
	return func(t *Timer) { t.onLimit = fn }
}

// OnTick sets a callback invoked on every tick with the current elapsed time.
func OnTick(fn func(elapsed time.Duration)) Option {
	return func(t *Timer) { t.onTick = fn }
}

// Timer is a pausable elapsed-time counter with a hard cap.
type Timer struct {
	clock    Clock
	limit    time.Duration
	interval time.Duration
	onLimit  func(time.Duration)
	onTick   func(time.Duration)

	mu      sync.Mutex
	state   State
	started bool
	stopped bool
	fired   bool
	stopCh  chan struct{}
}

// New creates a stopped timer.
func New(opts ...Option) *Timer {
	t := &Timer{
		clock:    System,
		limit:    DefaultLimit,
		interval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start resets the counter to zero and starts it.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.haltTicker()
	t.state = State{StartEpoch: t.clock.Now(), Running: true}
	t.started = true
	t.stopped = false
	t.fired = false

	if t.interval > 0 {
		t.stopCh = make(chan struct{})
		go t.run(t.stopCh, t.interval)
	}
}

// Pause freezes the counter. It is a no-op unless running.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.Running {
		return
	}
	t.state.PausedAccumulated += t.clock.Now().Sub(t.state.StartEpoch)
	t.state.Running = false
}

// Resume continues from the frozen value. It is a no-op unless paused.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || t.stopped || t.state.Running {
		return
	}
	t.state.StartEpoch = t.clock.Now()
	t.state.Running = true
}

// Stop halts the counter and keeps the final value. Calling it again has no
// effect.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.state.Running {
		t.state.PausedAccumulated += t.clock.Now().Sub(t.state.StartEpoch)
		t.state.Running = false
	}
	t.stopped = true
	t.haltTicker()
}

// Elapsed returns the current elapsed time.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Elapsed(t.clock.Now())
}

// State returns a snapshot.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Running reports whether the counter is advancing.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Running
}

// Limit returns the configured cap.
func (t *Timer) Limit() time.Duration {
	return t.limit
}

// Remaining returns the time left before the cap, or zero without one.
func (t *Timer) Remaining() time.Duration {
	if t.limit <= 0 {
		return 0
	}
	r := t.limit - t.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

// Tick evaluates the cap. The limit callback fires at most once per Start,
// and never while paused or stopped.
func (t *Timer) Tick() {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	elapsed := t.state.Elapsed(t.clock.Now())
	fire := t.state.Running && t.limit > 0 && elapsed >= t.limit && !t.fired
	if fire {
		t.fired = true
	}
	onTick, onLimit := t.onTick, t.onLimit
	t.mu.Unlock()

	if onTick != nil {
		onTick(elapsed)
	}
	if fire && onLimit != nil {
		onLimit(elapsed)
	}
}

func (t *Timer) run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// haltTicker must be called with mu held.
func (t *Timer) haltTicker() {
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
}

// Format renders d as MM:SS, or HH:MM:SS from one hour on.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
