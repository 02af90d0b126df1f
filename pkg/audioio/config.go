// Package audioio provides microphone capture and speaker playback.
//
// Backends:
//   - ALSA (Linux) through the arecord/aplay utilities
//   - Mock for CI and tests, with synthetic or scripted audio
//
// The backend is selected from configuration, or automatically by platform.
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendALSA uses Linux ALSA.
	BackendALSA Backend = "alsa"
	// BackendMock uses synthetic audio.
	BackendMock Backend = "mock"
)

// ErrDeviceUnavailable is returned when the capture or playback device
// cannot be opened (missing hardware, permission denied, busy).
var ErrDeviceUnavailable = errors.New("audioio: device unavailable")

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000, the conversational agent's PCM input rate.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of one capture chunk.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the platform-specific device identifier
	// ("default", "hw:0,0", "plughw:1,0"). Ignored by the mock.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (PCM16).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
