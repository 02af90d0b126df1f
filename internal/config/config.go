// Package config loads rehearse.yaml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-rehearse/pkg/elevenlabs"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/gdocs"
	"github.com/teslashibe/go-rehearse/pkg/media"
	"github.com/teslashibe/go-rehearse/pkg/phase"
	"github.com/teslashibe/go-rehearse/pkg/timer"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "rehearse.yaml"

// Recording formats.
const (
	FormatWAV = "wav"
	FormatOgg = "ogg"
)

// Camera backends.
const (
	CameraGoCV = "gocv"
	CameraMock = "mock"
	CameraNone = "none"
)

// Config is the structure of rehearse.yaml.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	// DataDir holds the review archive and the Google token.
	// Default: ~/.rehearse
	DataDir string `yaml:"data_dir"`

	Agents     exercise.Agents  `yaml:"agents"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Inference  InferenceConfig  `yaml:"inference"`

	// Fallback providers are tried in order when Inference fails.
	Fallback []InferenceConfig `yaml:"fallback"`

	Google gdocs.Config `yaml:"google"`

	// AuthRedirect is where the browser lands after Google sign-in.
	AuthRedirect string `yaml:"auth_redirect"`

	Session SessionConfig     `yaml:"session"`
	Media   media.Constraints `yaml:"media"`
	Camera  string            `yaml:"camera"` // "gocv" | "mock" | "none"

	Metrics bool `yaml:"metrics"`
}

// ElevenLabsConfig configures the voice provider and transcription.
type ElevenLabsConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	STTModel string `yaml:"stt_model"`
	Language string `yaml:"language"`
}

// InferenceConfig configures an OpenAI-compatible chat endpoint.
type InferenceConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig holds per-session behavior.
type SessionConfig struct {
	Limit            time.Duration `yaml:"limit"`
	ConfirmQuestions bool          `yaml:"confirm_questions"`
	PhaseDelay       time.Duration `yaml:"phase_delay"`
	RecordingFormat  string        `yaml:"recording_format"` // "wav" | "ogg"
	Speaker          bool          `yaml:"speaker"`
	StartTimeout     time.Duration `yaml:"start_timeout"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:     ":8080",
		LogLevel: "info",
		ElevenLabs: ElevenLabsConfig{
			BaseURL:  elevenlabs.DefaultBaseURL,
			STTModel: elevenlabs.DefaultSTTModel,
			Language: elevenlabs.DefaultLanguage,
		},
		Inference: InferenceConfig{
			Name:    "openai",
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 90 * time.Second,
		},
		Google: gdocs.Config{
			RedirectURL: "http://localhost:8080/api/google/callback",
		},
		AuthRedirect: "/",
		Session: SessionConfig{
			Limit:           timer.DefaultLimit,
			PhaseDelay:      phase.DefaultDelay,
			RecordingFormat: FormatWAV,
			Speaker:         true,
			StartTimeout:    15 * time.Second,
		},
		Media:  media.DefaultConstraints(),
		Camera: CameraGoCV,
	}
}

// Load reads path over the defaults and applies the environment. A
// missing DefaultFile is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.LoadEnvConfig()
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvConfig applies environment overrides. Secrets normally come
// from here rather than from the file.
func (c *Config) LoadEnvConfig() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Addr, "REHEARSE_ADDR")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.DataDir, "REHEARSE_DATA_DIR")

	set(&c.Agents.Declaration, "DECLARATION_AGENT_ID")
	set(&c.Agents.Questions, "QUESTIONS_AGENT_ID")
	set(&c.Agents.Committee, "COMITE_AGENT_ID")
	set(&c.Agents.Interview, "INVESTORS_AGENT_ID")

	set(&c.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")

	set(&c.Inference.APIKey, "OPENAI_API_KEY")
	set(&c.Inference.BaseURL, "OPENAI_BASE_URL")
	set(&c.Inference.Model, "OPENAI_MODEL")

	set(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	set(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	set(&c.Google.RedirectURL, "GOOGLE_REDIRECT_URL")

	if v := os.Getenv("REHEARSE_CAMERA"); v != "" {
		c.Camera = strings.ToLower(v)
	}
}

func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving data dir: %w", err)
		}
		c.DataDir = filepath.Join(home, ".rehearse")
	}
	if c.Google.TokenPath == "" {
		c.Google.TokenPath = filepath.Join(c.DataDir, "google_token.json")
	}
	return nil
}

// ReviewsPath is the review archive file.
func (c *Config) ReviewsPath() string {
	return filepath.Join(c.DataDir, "reviews.json")
}

// GoogleEnabled reports whether the Docs export can be offered.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return &ConfigError{Field: "Addr", Message: "addr must not be empty"}
	}
	if c.ElevenLabs.APIKey == "" {
		return &ConfigError{Field: "ElevenLabs.APIKey", Message: "ELEVENLABS_API_KEY environment variable is required"}
	}
	if c.Inference.APIKey == "" && len(c.Fallback) == 0 {
		return &ConfigError{Field: "Inference.APIKey", Message: "OPENAI_API_KEY environment variable is required"}
	}
	for i, f := range c.Fallback {
		if f.BaseURL == "" || f.Model == "" {
			return &ConfigError{
				Field:   fmt.Sprintf("Fallback[%d]", i),
				Message: fmt.Sprintf("fallback %d needs base_url and model", i),
			}
		}
	}
	if c.Session.Limit <= 0 {
		return &ConfigError{Field: "Session.Limit", Message: "session.limit must be positive"}
	}
	switch c.Session.RecordingFormat {
	case FormatWAV, FormatOgg:
	default:
		return &ConfigError{
			Field:   "Session.RecordingFormat",
			Message: fmt.Sprintf("session.recording_format must be %q or %q, got %q", FormatWAV, FormatOgg, c.Session.RecordingFormat),
		}
	}
	switch c.Camera {
	case CameraGoCV, CameraMock, CameraNone:
	default:
		return &ConfigError{Field: "Camera", Message: fmt.Sprintf("unknown camera backend %q", c.Camera)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
