package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
)

// AudioTrack is the live microphone track of a handle.
type AudioTrack struct {
	source  audioio.Source
	enabled atomic.Bool
}

func newAudioTrack(src audioio.Source) *AudioTrack {
	t := &AudioTrack{source: src}
	t.enabled.Store(true)
	return t
}

// Read returns the next microphone chunk. While the track is muted the
// chunk is replaced with silence of the same length.
func (t *AudioTrack) Read(ctx context.Context) (audioio.AudioChunk, error) {
	chunk, err := t.source.Read(ctx)
	if err != nil {
		return chunk, err
	}
	if !t.enabled.Load() {
		return chunk.Silence(), nil
	}
	return chunk, nil
}

// Enabled reports whether the track is unmuted.
func (t *AudioTrack) Enabled() bool {
	return t.enabled.Load()
}

// Config returns the capture format.
func (t *AudioTrack) Config() audioio.Config {
	return t.source.Config()
}

func (t *AudioTrack) close() error {
	return t.source.Close()
}

// VideoTrack is the live camera track of a handle. A goroutine pulls
// frames from the capture and hands them to the frame callback.
type VideoTrack struct {
	capture Capture
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newVideoTrack(c Capture, logger *slog.Logger) *VideoTrack {
	return &VideoTrack{capture: c, logger: logger, done: make(chan struct{})}
}

func (t *VideoTrack) start(onFrame func([]byte)) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go func() {
		defer close(t.done)
		for {
			frame, err := t.capture.ReadFrame(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, ErrCaptureClosed) {
					t.logger.Warn("camera read failed", "error", err)
				}
				return
			}
			if onFrame != nil {
				onFrame(frame)
			}
		}
	}()
}

func (t *VideoTrack) close() error {
	var err error
	t.once.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		err = t.capture.Close()
		if t.cancel != nil {
			<-t.done
		}
	})
	return err
}
