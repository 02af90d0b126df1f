// Package recorder captures a bounded local audio recording with
// pause/resume and publishes the finished artifact asynchronously.
package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
	"github.com/teslashibe/go-rehearse/pkg/timer"
)

// State is the recording lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source supplies captured audio.
type Source interface {
	Read(ctx context.Context) (audioio.AudioChunk, error)
}

// Artifact is a finished recording. It is immutable once published.
type Artifact struct {
	ID        string        `json:"id"`
	Data      []byte        `json:"-"`
	Size      int           `json:"size"`
	Duration  time.Duration `json:"duration"`
	MIMEType  string        `json:"mime_type"`
	AutoStop  bool          `json:"auto_stop"`
	CreatedAt time.Time     `json:"created_at"`
}

// Empty reports whether the artifact holds no audio.
func (a *Artifact) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEncoder sets the encoder factory. The default is WAV.
func WithEncoder(fn EncoderFunc) Option {
	return func(r *Recorder) { r.newEncoder = fn }
}

// WithFormat sets the expected capture format.
func WithFormat(cfg audioio.Config) Option {
	return func(r *Recorder) { r.format = cfg }
}

// WithTimerOptions configures the recording timer.
func WithTimerOptions(opts ...timer.Option) Option {
	return func(r *Recorder) { r.timerOpts = append(r.timerOpts, opts...) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// OnArtifact sets the callback fired when an artifact is published.
func OnArtifact(fn func(*Artifact)) Option {
	return func(r *Recorder) { r.onArtifact = fn }
}

// OnAutoStop sets the callback fired when the cap stops the recording.
func OnAutoStop(fn func(elapsed time.Duration)) Option {
	return func(r *Recorder) { r.onAutoStop = fn }
}

// Recorder is a single-take recording sub-session.
type Recorder struct {
	format     audioio.Config
	newEncoder EncoderFunc
	timerOpts  []timer.Option
	logger     *slog.Logger
	onArtifact func(*Artifact)
	onAutoStop func(time.Duration)

	timer *timer.Timer

	mu         sync.Mutex
	state      State
	take       *take
	finalizing bool

	level atomic.Uint64
}

// take is one start-to-stop recording.
type take struct {
	paused  atomic.Bool
	cancel  context.CancelFunc
	capture chan struct{}
	queue   chan audioio.AudioChunk
	written chan struct{}
	enc     Encoder
	encErr  error
	ready   chan struct{}

	artifact *Artifact
	err      error
	autoStop bool
}

// New creates an idle recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		format:     audioio.DefaultConfig(),
		newEncoder: NewWAV,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "recorder.recorder")
	topts := append([]timer.Option{}, r.timerOpts...)
	topts = append(topts, timer.OnLimit(r.limitReached))
	r.timer = timer.New(topts...)
	return r
}

// Start begins a new take from src. It is valid from idle or stopped.
func (r *Recorder) Start(src Source) error {
	if src == nil {
		return ErrNoMedia
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording || r.state == StatePaused {
		return ErrAlreadyActive
	}

	enc, err := r.newEncoder(r.format)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &take{
		cancel:  cancel,
		capture: make(chan struct{}),
		queue:   make(chan audioio.AudioChunk, 256),
		written: make(chan struct{}),
		enc:     enc,
		ready:   make(chan struct{}),
	}
	r.take = t
	r.state = StateRecording
	r.finalizing = false
	r.level.Store(0)

	go r.captureLoop(ctx, src, t)
	go r.writeLoop(t)

	r.timer.Start()
	r.logger.Info("recording started", "mime_type", enc.MIMEType())
	return nil
}

func (r *Recorder) captureLoop(ctx context.Context, src Source, t *take) {
	defer close(t.capture)
	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				r.logger.Warn("capture read failed", "error", err)
			}
			return
		}
		if t.paused.Load() {
			continue
		}
		r.level.Store(math.Float64bits(chunk.Level()))
		select {
		case t.queue <- chunk:
			continue
		default:
		}
		select {
		case t.queue <- chunk:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Recorder) writeLoop(t *take) {
	defer close(t.written)
	for chunk := range t.queue {
		if t.encErr != nil {
			continue
		}
		t.encErr = t.enc.Write(chunk)
	}
}

// Pause suspends capture. Only valid while recording.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return ErrInvalidState
	}
	r.take.paused.Store(true)
	r.state = StatePaused
	r.timer.Pause()
	return nil
}

// Resume continues a paused take.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return ErrInvalidState
	}
	r.take.paused.Store(false)
	r.state = StateRecording
	r.timer.Resume()
	return nil
}

// Stop ends the take. The artifact is finalized in the background; use
// Ready or Wait to get it.
func (r *Recorder) Stop() error {
	return r.stop(false)
}

func (r *Recorder) stop(auto bool) error {
	r.mu.Lock()
	if r.state != StateRecording && r.state != StatePaused {
		r.mu.Unlock()
		return ErrInvalidState
	}
	t := r.take
	r.state = StateStopped
	r.finalizing = true
	t.autoStop = auto
	r.timer.Stop()
	duration := r.timer.Elapsed()
	mime := t.enc.MIMEType()
	r.mu.Unlock()

	t.cancel()
	go r.finalize(t, duration, mime)

	r.logger.Info("recording stopped", "duration", duration, "auto", auto)
	return nil
}

func (r *Recorder) finalize(t *take, duration time.Duration, mime string) {
	<-t.capture
	close(t.queue)
	<-t.written

	var art *Artifact
	err := t.encErr
	if err == nil {
		var data []byte
		data, err = t.enc.Finish()
		if err == nil {
			art = &Artifact{
				ID:        uuid.NewString(),
				Data:      data,
				Size:      len(data),
				Duration:  duration,
				MIMEType:  mime,
				AutoStop:  t.autoStop,
				CreatedAt: time.Now(),
			}
		}
	}

	r.mu.Lock()
	discarded := t.err != nil
	if !discarded {
		t.artifact = art
		t.err = err
	}
	if r.take == t {
		r.finalizing = false
	}
	cb := r.onArtifact
	r.mu.Unlock()

	close(t.ready)

	if err != nil {
		r.logger.Error("recording finalize failed", "error", err)
		return
	}
	if discarded {
		return
	}
	r.logger.Info("recording finalized", "artifact", art.ID, "bytes", art.Size)
	if cb != nil {
		cb(art)
	}
}

func (r *Recorder) limitReached(elapsed time.Duration) {
	if err := r.stop(true); err != nil {
		return
	}
	r.logger.Info("recording cap reached", "elapsed", elapsed)
	if r.onAutoStop != nil {
		r.onAutoStop(elapsed)
	}
}

// Discard stops any active take without publishing its artifact and
// returns the recorder to idle.
func (r *Recorder) Discard() {
	r.mu.Lock()
	t := r.take
	active := r.state == StateRecording || r.state == StatePaused
	r.state = StateIdle
	r.take = nil
	r.finalizing = false
	if t != nil && t.artifact == nil && t.err == nil {
		t.err = ErrDiscarded
	}
	r.timer.Stop()
	r.mu.Unlock()

	if t != nil && active {
		t.cancel()
		go r.finalize(t, 0, "")
	}
	r.level.Store(0)
}

// Ready returns a channel closed once the current take is finalized, or
// nil if nothing was recorded.
func (r *Recorder) Ready() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.take == nil {
		return nil
	}
	return r.take.ready
}

// Wait blocks until the current take's artifact is published.
func (r *Recorder) Wait(ctx context.Context) (*Artifact, error) {
	r.mu.Lock()
	t := r.take
	r.mu.Unlock()
	if t == nil {
		return nil, ErrNotFinalized
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.ready:
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return t.artifact, t.err
}

// Artifact returns the finalized artifact of the current take.
func (r *Recorder) Artifact() (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.take == nil || r.finalizing || r.state != StateStopped {
		return nil, ErrNotFinalized
	}
	return r.take.artifact, r.take.err
}

// State returns the lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Finalizing reports whether a stopped take is still being encoded.
func (r *Recorder) Finalizing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalizing
}

// Elapsed returns the recorded time, excluding pauses.
func (r *Recorder) Elapsed() time.Duration {
	return r.timer.Elapsed()
}

// Level returns the RMS level of the most recent chunk, 0.0 to 1.0.
func (r *Recorder) Level() float64 {
	return math.Float64frombits(r.level.Load())
}

// Timer exposes the recording timer.
func (r *Recorder) Timer() *timer.Timer {
	return r.timer
}
