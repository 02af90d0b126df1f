// Package session orchestrates one rehearsal: media, the declaration
// recorder, the phase machine, the voice conversation and the review that
// follows it.
//
// Every state change of a Session runs on its own event loop. Public
// methods post a closure to the loop and wait for its result; device,
// network and encoding work runs in goroutines that post their completion
// back.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
	"github.com/teslashibe/go-rehearse/pkg/conversation"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/media"
	"github.com/teslashibe/go-rehearse/pkg/phase"
	"github.com/teslashibe/go-rehearse/pkg/recorder"
	"github.com/teslashibe/go-rehearse/pkg/review"
	"github.com/teslashibe/go-rehearse/pkg/timer"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
	"github.com/teslashibe/go-rehearse/pkg/workflow"
)

// Transcriber converts a recorded declaration to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// PostSession runs the review of a finished session in the background.
// Trigger reports false, doing nothing, while an attempt for the same
// session is in flight; otherwise done receives the outcome.
type PostSession interface {
	Trigger(ctx context.Context, in workflow.Input, done func(workflow.Result, error)) bool
}

// ProviderFunc creates the voice transport of one session.
type ProviderFunc func() (conversation.Provider, error)

// Deps are the collaborators a session is built from.
type Deps struct {
	Camera      media.Camera
	Microphone  media.MicrophoneFunc
	NewProvider ProviderFunc
	Authorizer  conversation.Authorizer
	Transcriber Transcriber
	Workflow    PostSession
}

type action struct {
	fn    func()
	quiet bool
}

// Session is one rehearsal of one exercise.
type Session struct {
	id      string
	profile exercise.Profile
	deps    Deps
	cfg     config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	actions   chan action
	done      chan struct{}
	closeOnce sync.Once

	media   *media.Manager
	rec     *recorder.Recorder
	conv    *conversation.Manager
	phase   *phase.Machine
	timer   *timer.Timer
	speaker audioio.Sink

	last     atomic.Pointer[Snapshot]
	speaking atomic.Value

	// Owned by the loop.
	status     Status
	started    bool
	handle     *media.Handle
	videoOff   bool
	muted      bool
	artifact   *recorder.Artifact
	convID     string
	connecting bool
	pumpStop   context.CancelFunc
	reviewing  bool
	review     *review.Ref
	err        *Error
	stopping   bool
}

// New creates an idle session for profile. The profile is resolved once;
// later catalog changes do not affect this session.
func New(profile exercise.Profile, deps Deps, opts ...Option) (*Session, error) {
	if deps.NewProvider == nil {
		return nil, errors.New("session: voice provider is required")
	}
	if deps.Workflow == nil {
		return nil, errors.New("session: post-session workflow is required")
	}
	if profile.MultiPhase && deps.Transcriber == nil {
		return nil, errors.New("session: transcriber is required for a recorded declaration")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	provider, err := deps.NewProvider()
	if err != nil {
		return nil, fmt.Errorf("session: voice provider: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		profile: profile,
		deps:    deps,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		actions: make(chan action),
		done:    make(chan struct{}),
		status:  StatusIdle,
	}
	s.logger = cfg.logger.With("component", "session.session", "session_id", s.id, "kind", profile.Kind)
	s.speaking.Store(conversation.PartyNone)

	timerOpts := []timer.Option{
		timer.WithClock(cfg.clock),
		timer.WithLimit(cfg.limit),
		timer.WithTickInterval(cfg.tick),
	}

	s.media = media.NewManager(deps.Camera, deps.Microphone,
		media.WithConstraints(cfg.constraints),
		media.WithLogger(cfg.logger),
		media.WithFrameHandler(cfg.onFrame),
	)

	recOpts := []recorder.Option{
		recorder.WithFormat(cfg.constraints.Audio),
		recorder.WithLogger(cfg.logger),
		recorder.WithTimerOptions(timerOpts...),
		recorder.OnArtifact(func(a *recorder.Artifact) {
			s.post(func() { s.artifactReady(a) })
		}),
		recorder.OnAutoStop(func(time.Duration) {
			s.post(s.refresh)
		}),
	}
	s.rec = recorder.New(append(recOpts, cfg.recorderOpts...)...)

	convOpts := []conversation.ManagerOption{
		conversation.WithManagerLogger(cfg.logger),
		conversation.WithTimerOptions(timerOpts...),
		conversation.OnEnd(func(end conversation.End) {
			go s.post(func() { s.conversationEnded(end) })
		}),
		conversation.OnEvent(s.providerEvent),
		conversation.OnFallback(func(error) { cfg.metrics.Fallback() }),
	}
	if deps.Authorizer != nil {
		convOpts = append(convOpts, conversation.WithAuthorizer(deps.Authorizer))
	}
	s.conv = conversation.NewManager(provider, convOpts...)

	initial := phase.Declaration
	if !profile.MultiPhase {
		initial = phase.Questions
	}
	s.phase = phase.New(
		phase.WithInitial(initial),
		phase.WithConfirmation(cfg.confirm),
		phase.WithDelay(cfg.delay),
		phase.WithScheduler(s.schedule),
		phase.OnEnterQuestions(s.enterQuestions),
		phase.WithLogger(cfg.logger),
	)

	s.timer = timer.New(
		timer.WithClock(cfg.clock),
		timer.WithLimit(0),
		timer.WithTickInterval(cfg.tick),
		timer.OnTick(func(time.Duration) { s.post(s.refresh) }),
	)

	if cfg.speaker != nil {
		sink, err := cfg.speaker(cfg.constraints.Audio)
		if err != nil {
			s.logger.Warn("speaker unavailable, agent audio will not be played", "error", err)
		} else {
			s.speaker = sink
		}
	}

	go s.loop()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Profile returns the exercise the session runs.
func (s *Session) Profile() exercise.Profile {
	return s.profile
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) loop() {
	defer close(s.done)
	s.publish()
	for {
		a := <-s.actions
		a.fn()
		if !a.quiet {
			s.publish()
		}
		if s.stopping {
			return
		}
	}
}

// post runs fn on the loop. It reports false if the session is closed.
// It must not be called from the loop itself.
func (s *Session) post(fn func()) bool {
	select {
	case s.actions <- action{fn: fn}:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the loop and returns its error.
func (s *Session) do(fn func() error) error {
	res := make(chan error, 1)
	select {
	case s.actions <- action{fn: func() { res <- fn() }}:
	case <-s.done:
		return ErrClosed
	}
	return <-res
}

func (s *Session) query(fn func()) bool {
	res := make(chan struct{})
	select {
	case s.actions <- action{fn: func() { fn(); close(res) }, quiet: true}:
	case <-s.done:
		return false
	}
	<-res
	return true
}

func (s *Session) refresh() {}

func (s *Session) publish() {
	snap := s.snapshot()
	s.last.Store(&snap)
	if s.cfg.onUpdate != nil {
		s.cfg.onUpdate(snap)
	}
}

// Snapshot returns the current view of the session, or the final one once
// it is closed.
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	if s.query(func() { snap = s.snapshot() }) {
		return snap
	}
	if last := s.last.Load(); last != nil {
		return *last
	}
	return Snapshot{ID: s.id, Kind: s.profile.Kind, Status: StatusEnded}
}

// Start acquires the camera and microphone and activates the session. A
// denied camera degrades to audio only and a denied microphone to no
// media; either is reported in the snapshot rather than returned. A
// single-phase exercise connects its voice session right away.
func (s *Session) Start(ctx context.Context) error {
	err := s.do(func() error {
		if s.status != StatusIdle {
			return fmt.Errorf("%w: start while %s", ErrInvalidState, s.status)
		}
		s.status = StatusInitializing
		return nil
	})
	if err != nil {
		return err
	}

	h, acqErr := s.acquire(ctx)
	err = s.do(func() error {
		s.activate(h, acqErr)
		return nil
	})
	if err != nil && h != nil {
		s.media.Release(h)
	}
	return err
}

// acquire may return a handle together with the denial that degraded it.
func (s *Session) acquire(ctx context.Context) (*media.Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	h, err := s.media.Acquire(ctx)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, media.ErrDeviceDenied) || media.DeniedDevice(err) == media.DeviceMicrophone {
		return nil, err
	}
	s.logger.Warn("camera denied, continuing audio only", "error", err)
	h, audioErr := s.media.AcquireAudioOnly(ctx)
	if audioErr != nil {
		return nil, audioErr
	}
	return h, err
}

func (s *Session) activate(h *media.Handle, err error) {
	if err != nil {
		s.fail(err)
	}
	s.attach(h)
	s.status = StatusActive
	s.started = true
	s.timer.Start()
	s.cfg.metrics.SessionStarted(string(s.profile.Kind))
	if s.speaker != nil {
		if err := s.speaker.Start(s.ctx); err != nil {
			s.logger.Warn("speaker start failed", "error", err)
		}
	}
	s.logger.Info("session active", "media", h != nil)

	if !s.profile.MultiPhase {
		s.connect()
	}
}

// attach makes h the live handle and reapplies the user's toggles.
func (s *Session) attach(h *media.Handle) {
	s.handle = h
	if h == nil {
		return
	}
	if s.videoOff {
		if err := s.media.SetVideoEnabled(s.ctx, h, false); err != nil {
			s.logger.Debug("video toggle", "error", err)
		}
	}
	if s.muted {
		if err := s.media.SetAudioEnabled(h, false); err != nil {
			s.logger.Debug("audio toggle", "error", err)
		}
	}
}

func (s *Session) releaseMedia() {
	s.stopPump()
	if s.handle != nil {
		s.media.Release(s.handle)
		s.handle = nil
	}
}

func (s *Session) fail(err error) {
	e := Classify(err)
	s.err = e
	s.cfg.metrics.Error(string(e.Code))
	s.logger.Warn("session error", "code", e.Code, "error", err)
}

func (s *Session) clearError(codes ...Code) {
	if s.err == nil {
		return
	}
	for _, c := range codes {
		if s.err.Code == c {
			s.err = nil
			return
		}
	}
}

func (s *Session) active() error {
	if s.status != StatusActive {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, s.status)
	}
	return nil
}

func (s *Session) inDeclaration() error {
	if err := s.active(); err != nil {
		return err
	}
	if !s.profile.MultiPhase {
		return fmt.Errorf("%w: %s has no declaration", ErrInvalidState, s.profile.Kind)
	}
	if p := s.phase.Phase(); p != phase.Declaration {
		return fmt.Errorf("%w: phase is %s", ErrInvalidState, p)
	}
	return nil
}

// StartRecording starts a declaration take from the live microphone.
func (s *Session) StartRecording() error {
	return s.do(func() error {
		if err := s.inDeclaration(); err != nil {
			return err
		}
		var src recorder.Source
		if s.handle != nil {
			if a := s.handle.Audio(); a != nil {
				src = a
			}
		}
		if err := s.rec.Start(src); err != nil {
			return err
		}
		s.artifact = nil
		return nil
	})
}

// PauseRecording pauses the declaration take.
func (s *Session) PauseRecording() error {
	return s.do(func() error {
		if err := s.inDeclaration(); err != nil {
			return err
		}
		return s.rec.Pause()
	})
}

// ResumeRecording resumes the declaration take.
func (s *Session) ResumeRecording() error {
	return s.do(func() error {
		if err := s.inDeclaration(); err != nil {
			return err
		}
		return s.rec.Resume()
	})
}

// StopRecording stops the take. The artifact shows up in the snapshot once
// it is finalized.
func (s *Session) StopRecording() error {
	return s.do(func() error {
		if err := s.inDeclaration(); err != nil {
			return err
		}
		return s.rec.Stop()
	})
}

func (s *Session) artifactReady(a *recorder.Artifact) {
	cur, err := s.rec.Artifact()
	if err != nil || cur == nil || cur.ID != a.ID {
		return
	}
	s.artifact = a
	s.cfg.metrics.RecordingFinished(a.AutoStop, a.Duration)
}

// SubmitDeclaration hands the finished recording to transcription.
func (s *Session) SubmitDeclaration() error {
	return s.do(func() error {
		if err := s.inDeclaration(); err != nil {
			return err
		}
		if s.artifact == nil {
			if s.rec.Finalizing() {
				return recorder.ErrNotFinalized
			}
			return ErrNoRecording
		}
		if err := s.phase.BeginTranscription(); err != nil {
			return err
		}
		art := s.artifact
		go func() {
			text, err := s.deps.Transcriber.Transcribe(s.ctx, art.Data, art.MIMEType)
			s.post(func() { s.transcribed(text, err) })
		}()
		return nil
	})
}

func (s *Session) transcribed(text string, err error) {
	next, perr := s.phase.TranscriptionResult(text, err)
	if perr != nil {
		if !errors.Is(perr, phase.ErrTranscriptionEmpty) {
			s.logger.Warn("transcription result ignored", "error", perr)
			return
		}
		result := "empty"
		if err != nil {
			result = "error"
		}
		s.cfg.metrics.Transcription(result)
		s.fail(perr)
		return
	}
	s.cfg.metrics.Transcription("ok")
	s.clearError(CodeTranscriptionEmpty)
	s.logger.Info("declaration transcribed", "next", next, "chars", len(text))
}

// ConfirmQuestions accepts the declaration transcript and starts the
// question round.
func (s *Session) ConfirmQuestions() error {
	return s.do(func() error {
		if err := s.active(); err != nil {
			return err
		}
		return s.phase.Confirm()
	})
}

// RetakeDeclaration rejects the transcript and returns to recording.
func (s *Session) RetakeDeclaration() error {
	return s.do(func() error {
		if err := s.active(); err != nil {
			return err
		}
		if err := s.phase.Retake(); err != nil {
			return err
		}
		s.rec.Discard()
		s.artifact = nil
		return nil
	})
}

func (s *Session) schedule(d time.Duration, fn func()) func() {
	return phase.AfterFunc(d, func() { s.post(fn) })
}

// enterQuestions runs on the loop. The declaration handle is released
// before the question round acquires its own.
func (s *Session) enterQuestions(tr transcript.Transcript) {
	s.logger.Info("entering question round", "transcript_chars", len(tr.Text()))
	s.rec.Discard()
	s.artifact = nil
	s.releaseMedia()

	go func() {
		h, err := s.acquire(s.ctx)
		if !s.post(func() { s.questionsReady(h, err) }) && h != nil {
			s.media.Release(h)
		}
	}()
}

func (s *Session) questionsReady(h *media.Handle, err error) {
	if s.status != StatusActive {
		if h != nil {
			s.media.Release(h)
		}
		return
	}
	if err != nil {
		s.fail(err)
	}
	s.attach(h)
	s.connect()
}

// StartConversation connects the voice session. It is how a failed
// connection is retried.
func (s *Session) StartConversation() error {
	return s.do(func() error {
		if err := s.active(); err != nil {
			return err
		}
		if p := s.phase.Phase(); p != phase.Questions {
			return fmt.Errorf("%w: phase is %s", ErrInvalidState, p)
		}
		if s.connecting || s.conv.State() != conversation.StateDisconnected {
			return conversation.ErrAlreadyConnected
		}
		s.connect()
		return nil
	})
}

func (s *Session) connect() {
	if s.connecting || s.conv.State() != conversation.StateDisconnected {
		return
	}
	s.connecting = true
	c := conversation.Context{Variant: s.profile.Variant, AgentID: s.profile.AgentID}
	if s.profile.MultiPhase {
		c = c.WithTranscript(s.phase.Transcript())
	}
	go func() {
		h, err := s.conv.Connect(s.ctx, c)
		if err == nil && s.ctx.Err() != nil {
			s.conv.Close()
			return
		}
		s.post(func() { s.connected(h, err) })
	}()
}

func (s *Session) connected(h conversation.Handle, err error) {
	s.connecting = false
	kind := string(s.profile.Kind)
	if err != nil {
		s.cfg.metrics.ConversationFailed(kind)
		s.fail(err)
		return
	}
	if s.status != StatusActive {
		s.conv.Close()
		return
	}
	s.cfg.metrics.ConversationConnected(kind)
	s.convID = h.ID
	s.clearError(CodeConnect)
	s.startPump()
}

func (s *Session) startPump() {
	s.stopPump()
	if s.handle == nil {
		return
	}
	track := s.handle.Audio()
	if track == nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.pumpStop = cancel
	go s.pump(ctx, track)
}

func (s *Session) stopPump() {
	if s.pumpStop != nil {
		s.pumpStop()
		s.pumpStop = nil
	}
}

// pump streams the microphone to the voice provider at its input rate.
func (s *Session) pump(ctx context.Context, track *media.AudioTrack) {
	rate := s.cfg.inputRate
	for {
		chunk, err := track.Read(ctx)
		if err != nil {
			return
		}
		samples := chunk.Samples
		if chunk.SampleRate > 0 && chunk.SampleRate != rate {
			samples = audioio.Resample(samples, chunk.SampleRate, rate)
		}
		if err := s.conv.SendAudio(audioio.SamplesToBytes(samples)); err != nil {
			if errors.Is(err, conversation.ErrNotConnected) {
				return
			}
			s.logger.Debug("send audio failed", "error", err)
		}
	}
}

// providerEvent runs on the conversation's event goroutine.
func (s *Session) providerEvent(ev conversation.Event) {
	if s.speaker != nil {
		switch ev.Type {
		case conversation.EventAudio:
			cfg := s.speaker.Config()
			var chunk audioio.AudioChunk
			chunk.FromBytes(ev.Audio, cfg.SampleRate, cfg.Channels)
			if err := s.speaker.Write(s.ctx, chunk); err != nil {
				s.logger.Debug("speaker write failed", "error", err)
			}
		case conversation.EventInterruption:
			if err := s.speaker.Clear(); err != nil {
				s.logger.Debug("speaker clear failed", "error", err)
			}
		}
	}
	p := s.conv.Speaking()
	if prev := s.speaking.Swap(p); prev != p {
		go s.post(s.refresh)
	}
}

// StopConversation ends the voice session at the user's request, which
// ends the session and starts the review. With nothing live, the session
// ends with what was captured so far. Before the declaration has a
// transcript there is nothing to end, so it is refused.
func (s *Session) StopConversation() error {
	return s.do(func() error {
		if err := s.active(); err != nil {
			return err
		}
		switch p := s.phase.Phase(); p {
		case phase.Declaration, phase.Transcribing, phase.AwaitingConfirmation:
			return fmt.Errorf("%w: phase is %s", ErrInvalidState, p)
		}
		if s.conv.Disconnect() != "" {
			return nil
		}
		s.finish()
		return nil
	})
}

func (s *Session) conversationEnded(end conversation.End) {
	kind := string(s.profile.Kind)
	s.cfg.metrics.ConversationEnded(kind, string(end.Reason), end.Elapsed)
	if t := end.Traffic; t != nil {
		s.cfg.metrics.ConversationTraffic(kind, t.MessagesSent, t.MessagesReceived, t.AudioBytesSent, t.AudioBytesReceived)
		s.logger.Debug("voice traffic",
			"sent", t.MessagesSent,
			"received", t.MessagesReceived,
			"audio_bytes_sent", t.AudioBytesSent,
			"audio_bytes_received", t.AudioBytesReceived,
		)
	}
	s.stopPump()
	if end.ConversationID != "" {
		s.convID = end.ConversationID
	}
	if end.Reason == conversation.ReasonClosed {
		return
	}
	if end.Err != nil {
		s.logger.Warn("voice session dropped", "conversation_id", end.ConversationID, "error", end.Err)
	}
	s.finish()
}

// finish ends the live part of the session once and starts the review.
func (s *Session) finish() {
	if s.status != StatusActive {
		return
	}
	s.phase.Complete()
	s.status = StatusEnded
	s.timer.Stop()
	s.rec.Discard()
	s.releaseMedia()
	s.logger.Info("session ended", "conversation_id", s.convID, "elapsed", s.timer.Elapsed())
	s.runWorkflow()
}

// runWorkflow reports whether a review attempt was started.
func (s *Session) runWorkflow() bool {
	if s.reviewing || s.review != nil {
		return false
	}
	in := workflow.Input{
		SessionID:      s.id,
		ConversationID: s.convID,
		Kind:           s.profile.Kind,
		Preamble:       s.phase.Transcript(),
	}
	if in.ConversationID == "" && in.Preamble.Empty() {
		s.logger.Info("nothing to review")
		return false
	}
	start := time.Now()
	started := s.deps.Workflow.Trigger(s.ctx, in, func(res workflow.Result, err error) {
		s.post(func() { s.reviewed(res, err, time.Since(start)) })
	})
	if !started {
		s.logger.Warn("review already in flight")
		return false
	}
	s.reviewing = true
	return true
}

func (s *Session) reviewed(res workflow.Result, err error, d time.Duration) {
	s.reviewing = false
	kind := string(s.profile.Kind)
	if err != nil {
		s.cfg.metrics.WorkflowRun(kind, "error", d)
		s.fail(err)
		return
	}
	s.cfg.metrics.WorkflowRun(kind, "ok", d)
	ref := res.Review
	s.review = &ref
	s.clearError(CodeRetrievalFailed, CodeReviewFailed)
	s.logger.Info("review ready", "review_id", ref.ID, "duration", d)
}

// RetryReview runs the review again after a failure. Material already
// retrieved is reused.
func (s *Session) RetryReview() error {
	return s.do(func() error {
		if s.status != StatusEnded {
			return fmt.Errorf("%w: session is %s", ErrInvalidState, s.status)
		}
		if s.reviewing || s.review != nil {
			return fmt.Errorf("%w: review already running or done", ErrInvalidState)
		}
		if !s.runWorkflow() {
			return fmt.Errorf("%w: no review to run", ErrInvalidState)
		}
		return nil
	})
}

// SetVideoEnabled turns the camera on or off. The choice is kept across
// the handle change between the two phases.
func (s *Session) SetVideoEnabled(ctx context.Context, enabled bool) error {
	return s.do(func() error {
		s.videoOff = !enabled
		if s.handle == nil {
			return nil
		}
		if err := s.media.SetVideoEnabled(ctx, s.handle, enabled); err != nil {
			s.videoOff = true
			if errors.Is(err, media.ErrDeviceDenied) {
				s.fail(err)
			}
			return err
		}
		return nil
	})
}

// SetAudioEnabled mutes or unmutes the microphone.
func (s *Session) SetAudioEnabled(enabled bool) error {
	return s.do(func() error {
		s.muted = !enabled
		if s.handle == nil {
			return nil
		}
		return s.media.SetAudioEnabled(s.handle, enabled)
	})
}

// Close tears the session down: pending work is cancelled, media is
// released and a live conversation is closed without a review. It is
// safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.post(s.teardown)
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) teardown() {
	s.phase.Cancel()
	s.rec.Discard()
	s.releaseMedia()
	s.conv.Close()
	s.timer.Stop()
	if s.speaker != nil {
		if err := s.speaker.Close(); err != nil {
			s.logger.Debug("speaker close", "error", err)
		}
	}
	if f, ok := s.deps.Workflow.(interface{ Forget(string) }); ok {
		f.Forget(s.id)
	}
	if s.started {
		s.cfg.metrics.SessionClosed()
	}
	s.status = StatusEnded
	s.stopping = true
	s.logger.Info("session closed")
}
