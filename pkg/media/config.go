package media

import (
	"log/slog"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
)

// VideoConstraints describes the requested camera stream.
type VideoConstraints struct {
	DeviceID  int `yaml:"device_id" json:"device_id"`
	Width     int `yaml:"width" json:"width"`
	Height    int `yaml:"height" json:"height"`
	FrameRate int `yaml:"frame_rate" json:"frame_rate"`
	Quality   int `yaml:"quality" json:"quality"` // JPEG quality 1-100
}

// Constraints describes what Acquire asks the devices for.
type Constraints struct {
	Video VideoConstraints `yaml:"video" json:"video"`
	Audio audioio.Config   `yaml:"audio" json:"audio"`
}

// DefaultConstraints returns 720p30 video and 16 kHz mono audio.
func DefaultConstraints() Constraints {
	return Constraints{
		Video: VideoConstraints{
			Width:     1280,
			Height:    720,
			FrameRate: 30,
			Quality:   80,
		},
		Audio: audioio.DefaultConfig(),
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithConstraints sets the capture constraints.
func WithConstraints(c Constraints) Option {
	return func(m *Manager) { m.constraints = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithFrameHandler sets the callback receiving JPEG preview frames.
func WithFrameHandler(fn func(frame []byte)) Option {
	return func(m *Manager) { m.onFrame = fn }
}
