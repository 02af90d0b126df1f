// Package elevenlabs is a REST client for the ElevenLabs conversational AI
// and speech-to-text APIs.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/teslashibe/go-rehearse/internal/httpc"
)

// DefaultBaseURL is the REST API root.
const DefaultBaseURL = "https://api.elevenlabs.io"

// Transcription defaults.
const (
	DefaultSTTModel = "scribe_v1"
	DefaultLanguage = "fra"
)

// Client calls the ElevenLabs REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: httpc.NewClient(2 * time.Minute),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "elevenlabs.client")
	return c, nil
}

// SignedURL requests a short-lived WebSocket URL for an agent.
func (c *Client) SignedURL(ctx context.Context, agentID string) (string, error) {
	if agentID == "" {
		return "", ErrNoAgent
	}
	q := url.Values{"agent_id": {agentID}}
	var out struct {
		SignedURL string `json:"signed_url"`
	}
	if err := c.getJSON(ctx, "/v1/convai/conversation/get_signed_url?"+q.Encode(), &out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("elevenlabs: empty signed url")
	}
	return out.SignedURL, nil
}

// Conversation status values.
const (
	StatusInitiated  = "initiated"
	StatusInProgress = "in-progress"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Conversation is a finished or running conversation.
type Conversation struct {
	ConversationID string               `json:"conversation_id"`
	AgentID        string               `json:"agent_id"`
	Status         string               `json:"status"`
	Transcript     []ConversationTurn   `json:"transcript"`
	Metadata       ConversationMetadata `json:"metadata"`
}

// ConversationTurn is one message of a conversation transcript.
type ConversationTurn struct {
	Role           string  `json:"role"`
	Message        string  `json:"message"`
	TimeInCallSecs float64 `json:"time_in_call_secs"`
}

// ConversationMetadata holds call statistics.
type ConversationMetadata struct {
	StartTimeUnixSecs int64 `json:"start_time_unix_secs"`
	CallDurationSecs  int   `json:"call_duration_secs"`
}

// Conversation fetches a conversation with its transcript.
func (c *Client) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var out Conversation
	if err := c.getJSON(ctx, "/v1/convai/conversations/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TranscribeRequest is one speech-to-text call.
type TranscribeRequest struct {
	Audio    []byte
	MIMEType string
	Filename string
	Model    string
	Language string
}

// Transcribe converts recorded speech to text.
func (c *Client) Transcribe(ctx context.Context, r TranscribeRequest) (string, error) {
	if r.Model == "" {
		r.Model = DefaultSTTModel
	}
	if r.Filename == "" {
		r.Filename = "declaration.wav"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model_id", r.Model); err != nil {
		return "", err
	}
	if r.Language != "" {
		if err := w.WriteField("language_code", r.Language); err != nil {
			return "", err
		}
	}
	part, err := w.CreateFormFile("file", r.Filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(r.Audio); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out struct {
		Text         string `json:"text"`
		LanguageCode string `json:"language_code"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	c.logger.Debug("transcription complete", "chars", len(out.Text), "language", out.LanguageCode)
	return out.Text, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("elevenlabs: create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: request failed: %w", err)
	}
	defer httpc.Drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return parseError(resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("elevenlabs: decode response: %w", err)
	}
	return nil
}
