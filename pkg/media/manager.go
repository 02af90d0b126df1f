// Package media acquires and releases the camera and microphone used by a
// rehearsal session.
package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Manager owns the live media handle. At most one handle is live at a
// time, so there is never more than one video track.
type Manager struct {
	camera      Camera
	microphone  MicrophoneFunc
	constraints Constraints
	logger      *slog.Logger
	onFrame     func([]byte)

	mu   sync.Mutex
	live *Handle
}

// NewManager creates a manager. camera may be nil for audio-only hosts.
func NewManager(camera Camera, mic MicrophoneFunc, opts ...Option) *Manager {
	m := &Manager{
		camera:      camera,
		microphone:  mic,
		constraints: DefaultConstraints(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "media.manager")
	return m
}

// Acquire opens the microphone and the camera concurrently. If either is
// denied, whatever was opened is released and a *DeviceError is returned.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	return m.acquire(ctx, true)
}

// AcquireAudioOnly opens only the microphone.
func (m *Manager) AcquireAudioOnly(ctx context.Context) (*Handle, error) {
	return m.acquire(ctx, false)
}

func (m *Manager) acquire(ctx context.Context, withVideo bool) (*Handle, error) {
	m.mu.Lock()
	if m.live != nil {
		m.mu.Unlock()
		return nil, ErrHandleLive
	}
	h := &Handle{id: uuid.NewString(), mgr: m}
	m.live = h
	m.mu.Unlock()

	var (
		audio *AudioTrack
		video *VideoTrack
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := m.openAudio(gctx)
		audio = t
		return err
	})
	if withVideo {
		g.Go(func() error {
			t, err := m.openVideo(gctx)
			video = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if audio != nil {
			_ = audio.close()
		}
		if video != nil {
			_ = video.close()
		}
		m.mu.Lock()
		m.live = nil
		m.mu.Unlock()
		m.logger.Warn("media acquisition failed", "error", err)
		return nil, err
	}

	h.mu.Lock()
	h.audio = audio
	if video != nil {
		h.video = video
		video.start(m.onFrame)
	}
	h.mu.Unlock()

	m.logger.Info("media acquired", "handle", h.id, "video", video != nil)
	return h, nil
}

func (m *Manager) openAudio(ctx context.Context) (*AudioTrack, error) {
	if m.microphone == nil {
		return nil, denied(DeviceMicrophone, errors.New("no microphone configured"))
	}
	src, err := m.microphone(m.constraints.Audio)
	if err != nil {
		return nil, denied(DeviceMicrophone, err)
	}
	// The source lives past the acquire group, whose context is cancelled
	// when Wait returns.
	if err := src.Start(context.WithoutCancel(ctx)); err != nil {
		_ = src.Close()
		return nil, denied(DeviceMicrophone, err)
	}
	return newAudioTrack(src), nil
}

func (m *Manager) openVideo(ctx context.Context) (*VideoTrack, error) {
	if m.camera == nil {
		return nil, denied(DeviceCamera, ErrNoCamera)
	}
	c, err := m.camera.Open(ctx, m.constraints.Video)
	if err != nil {
		return nil, denied(DeviceCamera, err)
	}
	return newVideoTrack(c, m.logger), nil
}

// Release stops every track of h. Releasing twice is a no-op.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	if !h.release() {
		return
	}
	m.mu.Lock()
	if m.live == h {
		m.live = nil
	}
	m.mu.Unlock()
	m.logger.Info("media released", "handle", h.id)
}

// SetVideoEnabled adds or removes the video track of a live handle.
// Disabling stops the camera; enabling reopens it.
func (m *Manager) SetVideoEnabled(ctx context.Context, h *Handle, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	if !enabled {
		if h.video != nil {
			_ = h.video.close()
			h.video = nil
			m.logger.Debug("video disabled", "handle", h.id)
		}
		return nil
	}
	if h.video != nil {
		return nil
	}
	t, err := m.openVideo(ctx)
	if err != nil {
		return err
	}
	h.video = t
	t.start(m.onFrame)
	m.logger.Debug("video enabled", "handle", h.id)
	return nil
}

// SetAudioEnabled mutes or unmutes the microphone of a live handle.
func (m *Manager) SetAudioEnabled(h *Handle, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	if h.audio != nil {
		h.audio.enabled.Store(enabled)
	}
	return nil
}

// Live returns the live handle, or nil.
func (m *Manager) Live() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Handle is a set of live tracks acquired together.
type Handle struct {
	id  string
	mgr *Manager

	mu       sync.Mutex
	audio    *AudioTrack
	video    *VideoTrack
	released bool
}

// ID returns the handle identifier.
func (h *Handle) ID() string {
	return h.id
}

// Audio returns the microphone track.
func (h *Handle) Audio() *AudioTrack {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audio
}

// Video returns the camera track, or nil when video is off.
func (h *Handle) Video() *VideoTrack {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.video
}

// AudioEnabled reports whether the microphone is unmuted.
func (h *Handle) AudioEnabled() bool {
	a := h.Audio()
	return a != nil && a.Enabled()
}

// VideoEnabled reports whether a camera track is live.
func (h *Handle) VideoEnabled() bool {
	return h.Video() != nil
}

// Released reports whether the handle was released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func (h *Handle) release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.released = true
	if h.video != nil {
		_ = h.video.close()
		h.video = nil
	}
	if h.audio != nil {
		_ = h.audio.close()
	}
	return true
}
