package recorder

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-rehearse/internal/log"
	"github.com/teslashibe/go-rehearse/pkg/audioio"
	"github.com/teslashibe/go-rehearse/pkg/timer"
)

// feed hands chunks to the recorder one at a time. push returns once the
// capture loop has fully processed the chunk and asked for the next one.
type feed struct {
	ch        chan audioio.AudioChunk
	next      chan struct{}
	delivered bool
}

func newFeed() *feed {
	return &feed{ch: make(chan audioio.AudioChunk), next: make(chan struct{})}
}

func (f *feed) Read(ctx context.Context) (audioio.AudioChunk, error) {
	if f.delivered {
		select {
		case f.next <- struct{}{}:
		case <-ctx.Done():
			return audioio.AudioChunk{}, ctx.Err()
		}
	}
	select {
	case <-ctx.Done():
		return audioio.AudioChunk{}, ctx.Err()
	case c, ok := <-f.ch:
		if !ok {
			return audioio.AudioChunk{}, io.EOF
		}
		f.delivered = true
		return c, nil
	}
}

func (f *feed) push(c audioio.AudioChunk) {
	f.ch <- c
	<-f.next
}

func chunk(n int, v int16) audioio.AudioChunk {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return audioio.AudioChunk{Samples: s, SampleRate: 16000, Channels: 1}
}

func newTestRecorder(clock *timer.FakeClock, opts ...Option) *Recorder {
	base := []Option{
		WithLogger(log.Discard()),
		WithTimerOptions(timer.WithClock(clock), timer.WithTickInterval(0)),
	}
	return New(append(base, opts...)...)
}

func wait(t *testing.T, r *Recorder) (*Artifact, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.Wait(ctx)
}

func TestStartErrors(t *testing.T) {
	r := newTestRecorder(timer.NewFakeClock(time.Unix(0, 0)))

	if err := r.Start(nil); !errors.Is(err, ErrNoMedia) {
		t.Errorf("Start(nil) = %v, want ErrNoMedia", err)
	}
	if err := r.Pause(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Pause() while idle = %v, want ErrInvalidState", err)
	}
	if err := r.Stop(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Stop() while idle = %v, want ErrInvalidState", err)
	}

	if err := r.Start(newFeed()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(newFeed()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Start() = %v, want ErrAlreadyActive", err)
	}
	if err := r.Resume(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Resume() while recording = %v, want ErrInvalidState", err)
	}
	if err := r.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := r.Start(newFeed()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("Start() while paused = %v, want ErrAlreadyActive", err)
	}
	r.Discard()
}

func TestRecordPauseStop(t *testing.T) {
	clock := timer.NewFakeClock(time.Unix(0, 0))
	var published atomic.Int32
	r := newTestRecorder(clock, OnArtifact(func(*Artifact) { published.Add(1) }))
	src := newFeed()

	if err := r.Start(src); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	src.push(chunk(160, 1000))
	clock.Advance(10 * time.Second)

	if err := r.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	src.push(chunk(160, 5000)) // discarded
	clock.Advance(5 * time.Second)

	if err := r.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	src.push(chunk(160, 2000))
	clock.Advance(10 * time.Second)

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if r.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", r.State())
	}

	art, err := wait(t, r)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if art.Duration != 20*time.Second {
		t.Errorf("Duration = %v, want 20s", art.Duration)
	}
	if art.MIMEType != "audio/wav" {
		t.Errorf("MIMEType = %q", art.MIMEType)
	}
	if want := 44 + 2*160*2; len(art.Data) != want {
		t.Errorf("len(Data) = %d, want %d", len(art.Data), want)
	}
	if art.AutoStop {
		t.Error("manual stop flagged as auto")
	}
	if r.Finalizing() {
		t.Error("Finalizing() should be false after Wait")
	}
	if got, _ := r.Artifact(); got != art {
		t.Error("Artifact() should return the published artifact")
	}

	deadline := time.Now().Add(time.Second)
	for published.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if published.Load() != 1 {
		t.Errorf("OnArtifact calls = %d, want 1", published.Load())
	}
}

func TestRestartAfterStop(t *testing.T) {
	r := newTestRecorder(timer.NewFakeClock(time.Unix(0, 0)))

	if err := r.Start(newFeed()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	first, err := wait(t, r)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !first.Empty() {
		t.Error("take without audio should be empty")
	}

	src := newFeed()
	if err := r.Start(src); err != nil {
		t.Fatalf("Start() after stop error = %v", err)
	}
	src.push(chunk(80, 7))
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	second, err := wait(t, r)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if second.ID == first.ID {
		t.Error("new take should produce a new artifact")
	}
	if second.Empty() {
		t.Error("second take should hold audio")
	}
}

func TestAutoStopAtLimit(t *testing.T) {
	clock := timer.NewFakeClock(time.Unix(0, 0))
	var autoStops atomic.Int32
	r := newTestRecorder(clock, OnAutoStop(func(time.Duration) { autoStops.Add(1) }))

	if err := r.Start(newFeed()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clock.Advance(899 * time.Second)
	r.Timer().Tick()
	if r.State() != StateRecording {
		t.Fatalf("State() = %v before the cap", r.State())
	}

	clock.Advance(time.Second)
	r.Timer().Tick()
	r.Timer().Tick()

	if r.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", r.State())
	}
	if autoStops.Load() != 1 {
		t.Errorf("OnAutoStop calls = %d, want 1", autoStops.Load())
	}
	if err := r.Stop(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Stop() after auto stop = %v, want ErrInvalidState", err)
	}
	art, err := wait(t, r)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !art.AutoStop {
		t.Error("artifact should be flagged as auto stopped")
	}
	if art.Duration != timer.DefaultLimit {
		t.Errorf("Duration = %v, want %v", art.Duration, timer.DefaultLimit)
	}
}

func TestPausedNeverAutoStops(t *testing.T) {
	clock := timer.NewFakeClock(time.Unix(0, 0))
	r := newTestRecorder(clock)

	if err := r.Start(newFeed()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clock.Advance(100 * time.Second)
	if err := r.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	clock.Advance(time.Hour)
	r.Timer().Tick()
	if r.State() != StatePaused {
		t.Errorf("State() = %v, want paused", r.State())
	}
	r.Discard()
}

func TestDiscard(t *testing.T) {
	var published atomic.Int32
	r := newTestRecorder(timer.NewFakeClock(time.Unix(0, 0)), OnArtifact(func(*Artifact) { published.Add(1) }))
	src := newFeed()

	if err := r.Start(src); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	src.push(chunk(160, 10))
	ready := r.Ready()
	r.Discard()

	if r.State() != StateIdle {
		t.Errorf("State() = %v, want idle", r.State())
	}
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("take never finalized")
	}
	time.Sleep(20 * time.Millisecond)
	if published.Load() != 0 {
		t.Errorf("OnArtifact fired for a discarded take")
	}
	if _, err := r.Wait(context.Background()); !errors.Is(err, ErrNotFinalized) {
		t.Errorf("Wait() after discard = %v, want ErrNotFinalized", err)
	}
}

func TestLevel(t *testing.T) {
	r := newTestRecorder(timer.NewFakeClock(time.Unix(0, 0)))
	src := newFeed()
	if err := r.Start(src); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Discard()

	src.push(chunk(160, 16384))
	deadline := time.Now().Add(time.Second)
	for r.Level() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.Level(); got < 0.49 || got > 0.51 {
		t.Errorf("Level() = %v, want ~0.5", got)
	}
}
