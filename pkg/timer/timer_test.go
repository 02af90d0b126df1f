package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestTimer(clock *FakeClock, opts ...Option) *Timer {
	base := []Option{WithClock(clock), WithTickInterval(0)}
	return New(append(base, opts...)...)
}

func TestTimer_PauseResume(t *testing.T) {
	clock := NewFakeClock(epoch)
	tm := newTestTimer(clock)

	tm.Start()
	clock.Advance(10 * time.Second)
	tm.Pause()

	clock.Advance(5 * time.Second)
	if got := tm.Elapsed(); got != 10*time.Second {
		t.Errorf("paused elapsed = %v, want 10s", got)
	}

	tm.Resume()
	clock.Advance(5 * time.Second)
	if got := tm.Elapsed(); got != 15*time.Second {
		t.Errorf("elapsed after resume = %v, want 15s", got)
	}
}

func TestTimer_StartResets(t *testing.T) {
	clock := NewFakeClock(epoch)
	tm := newTestTimer(clock)

	tm.Start()
	clock.Advance(42 * time.Second)
	tm.Stop()

	tm.Start()
	if got := tm.Elapsed(); got != 0 {
		t.Errorf("elapsed after restart = %v, want 0", got)
	}
}

func TestTimer_StopIsIdempotent(t *testing.T) {
	clock := NewFakeClock(epoch)
	tm := newTestTimer(clock)

	tm.Start()
	clock.Advance(3 * time.Second)
	tm.Stop()
	clock.Advance(time.Minute)
	tm.Stop()
	tm.Resume()

	if got := tm.Elapsed(); got != 3*time.Second {
		t.Errorf("elapsed = %v, want 3s", got)
	}
	if tm.Running() {
		t.Error("stopped timer must not run")
	}
}

func TestTimer_LimitFiresOnce(t *testing.T) {
	clock := NewFakeClock(epoch)
	var fired atomic.Int32
	tm := newTestTimer(clock,
		WithLimit(900*time.Second),
		OnLimit(func(time.Duration) { fired.Add(1) }),
	)

	tm.Start()
	clock.Advance(899 * time.Second)
	tm.Tick()
	if fired.Load() != 0 {
		t.Fatal("fired before the limit")
	}

	clock.Advance(time.Second)
	tm.Tick()
	tm.Tick()
	clock.Advance(10 * time.Second)
	tm.Tick()

	if n := fired.Load(); n != 1 {
		t.Errorf("limit fired %d times, want 1", n)
	}
}

func TestTimer_LimitRearmsOnStart(t *testing.T) {
	clock := NewFakeClock(epoch)
	var fired atomic.Int32
	tm := newTestTimer(clock,
		WithLimit(time.Minute),
		OnLimit(func(time.Duration) { fired.Add(1) }),
	)

	for i := 0; i < 2; i++ {
		tm.Start()
		clock.Advance(2 * time.Minute)
		tm.Tick()
		tm.Stop()
	}
	if n := fired.Load(); n != 2 {
		t.Errorf("limit fired %d times, want 2", n)
	}
}

func TestTimer_PausedNeverFires(t *testing.T) {
	clock := NewFakeClock(epoch)
	var fired atomic.Int32
	tm := newTestTimer(clock,
		WithLimit(900*time.Second),
		OnLimit(func(time.Duration) { fired.Add(1) }),
	)

	tm.Start()
	clock.Advance(600 * time.Second)
	tm.Pause()
	clock.Advance(time.Hour)
	tm.Tick()

	if fired.Load() != 0 {
		t.Error("paused timer must not trigger the limit")
	}
	if got := tm.Remaining(); got != 300*time.Second {
		t.Errorf("remaining = %v, want 5m", got)
	}
}

func TestTimer_TickerDrivesLimit(t *testing.T) {
	done := make(chan struct{})
	tm := New(
		WithLimit(30*time.Millisecond),
		WithTickInterval(5*time.Millisecond),
		OnLimit(func(time.Duration) { close(done) }),
	)
	tm.Start()
	defer tm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("limit callback not invoked by ticker")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{59 * time.Second, "00:59"},
		{15 * time.Minute, "15:00"},
		{61*time.Minute + 5*time.Second, "01:01:05"},
		{1500 * time.Millisecond, "00:01"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestState_Elapsed(t *testing.T) {
	s := State{StartEpoch: epoch, PausedAccumulated: 7 * time.Second, Running: true}
	if got := s.Elapsed(epoch.Add(3 * time.Second)); got != 10*time.Second {
		t.Errorf("running elapsed = %v, want 10s", got)
	}
	s.Running = false
	if got := s.Elapsed(epoch.Add(time.Hour)); got != 7*time.Second {
		t.Errorf("frozen elapsed = %v, want 7s", got)
	}
}
