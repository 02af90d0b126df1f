package conversation

import (
	"log/slog"
	"time"
)

// DefaultURL is the ElevenLabs conversational AI WebSocket endpoint.
const DefaultURL = "wss://api.elevenlabs.io/v1/convai/conversation"

// Config holds configuration for the ElevenLabs provider.
type Config struct {
	// APIKey authenticates direct connections to private agents. Signed
	// URLs carry their own authorization.
	APIKey string

	// BaseURL overrides the WebSocket endpoint.
	BaseURL string

	// InputSampleRate is the audio input sample rate in Hz.
	InputSampleRate int

	// OutputSampleRate is the audio output sample rate in Hz.
	OutputSampleRate int

	// Timeout bounds the handshake and the wait for session metadata.
	Timeout time.Duration

	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration

	// EventBuffer is the capacity of the event queue.
	EventBuffer int

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          DefaultURL,
		InputSampleRate:  16000,
		OutputSampleRate: 16000,
		Timeout:          30 * time.Second,
		ReadTimeout:      5 * time.Minute,
		WriteTimeout:     10 * time.Second,
		EventBuffer:      256,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL sets the WebSocket endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithInputSampleRate sets the audio input sample rate.
func WithInputSampleRate(rate int) Option {
	return func(c *Config) {
		c.InputSampleRate = rate
	}
}

// WithOutputSampleRate sets the audio output sample rate.
func WithOutputSampleRate(rate int) Option {
	return func(c *Config) {
		c.OutputSampleRate = rate
	}
}

// WithTimeout sets the connection timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithReadTimeout sets the per-message read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithEventBuffer sets the event queue capacity.
func WithEventBuffer(n int) Option {
	return func(c *Config) {
		c.EventBuffer = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
