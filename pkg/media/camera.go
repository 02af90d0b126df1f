package media

import (
	"context"
	"errors"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
)

// ErrCaptureClosed is returned by ReadFrame after Close.
var ErrCaptureClosed = errors.New("media: capture closed")

// Camera opens video captures.
type Camera interface {
	Open(ctx context.Context, c VideoConstraints) (Capture, error)
}

// Capture is an open camera stream producing JPEG frames.
type Capture interface {
	// ReadFrame blocks until the next frame is available.
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// MicrophoneFunc opens an audio source for the given format. The source
// is started by the manager.
type MicrophoneFunc func(cfg audioio.Config) (audioio.Source, error)
