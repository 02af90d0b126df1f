package elevenlabs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
)

// Authorizer issues signed conversation URLs for the agent configured for
// each variant.
type Authorizer struct {
	client  *Client
	catalog *exercise.Catalog
}

// NewAuthorizer creates an authorizer. Agent identifiers are read from the
// catalog on every call so that hot-reloaded values take effect.
func NewAuthorizer(client *Client, catalog *exercise.Catalog) *Authorizer {
	return &Authorizer{client: client, catalog: catalog}
}

// SignedURL implements conversation.Authorizer.
func (a *Authorizer) SignedURL(ctx context.Context, variant exercise.Variant) (string, error) {
	agentID := a.catalog.Agents().ForVariant(variant)
	if agentID == "" {
		return "", fmt.Errorf("%w for variant %q", ErrNoAgent, variant)
	}
	return a.client.SignedURL(ctx, agentID)
}

// Transcriber converts a recorded declaration to text.
type Transcriber struct {
	client   *Client
	model    string
	language string
}

// NewTranscriber creates a transcriber. Empty model and language select
// the defaults.
func NewTranscriber(client *Client, model, language string) *Transcriber {
	if model == "" {
		model = DefaultSTTModel
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Transcriber{client: client, model: model, language: language}
}

// Transcribe returns the recognized text of audio.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return t.client.Transcribe(ctx, TranscribeRequest{
		Audio:    audio,
		MIMEType: mimeType,
		Filename: "declaration" + extension(mimeType),
		Model:    t.model,
		Language: t.language,
	})
}

func extension(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/webm"):
		return ".webm"
	default:
		return ".wav"
	}
}

// Retriever fetches the finalized transcript of a conversation. Transcripts
// are finalized asynchronously after a call ends, so Retrieve polls until
// the conversation is done.
type Retriever struct {
	client       *Client
	pollInterval time.Duration
	maxAttempts  int
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithPollInterval sets the delay between status checks.
func WithPollInterval(d time.Duration) RetrieverOption {
	return func(r *Retriever) { r.pollInterval = d }
}

// WithMaxAttempts bounds the number of status checks.
func WithMaxAttempts(n int) RetrieverOption {
	return func(r *Retriever) { r.maxAttempts = n }
}

// NewRetriever creates a retriever polling every 2s up to 15 times.
func NewRetriever(client *Client, opts ...RetrieverOption) *Retriever {
	r := &Retriever{client: client, pollInterval: 2 * time.Second, maxAttempts: 15}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	return r
}

// Retrieve returns the transcript of conversation id.
func (r *Retriever) Retrieve(ctx context.Context, id string, kind exercise.Kind) (transcript.Transcript, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		conv, err := r.client.Conversation(ctx, id)
		switch {
		case err == nil && conv.Status == StatusDone:
			return toTranscript(conv), nil
		case err == nil && conv.Status == StatusFailed:
			return transcript.Transcript{}, fmt.Errorf("%w: %s", ErrConversationFailed, id)
		case err == nil:
			lastErr = fmt.Errorf("%w: status %q", ErrNotReady, conv.Status)
		case IsRetryable(err):
			lastErr = err
		default:
			return transcript.Transcript{}, err
		}

		if attempt == r.maxAttempts {
			break
		}
		t := time.NewTimer(r.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return transcript.Transcript{}, ctx.Err()
		case <-t.C:
		}
	}
	if lastErr == nil {
		lastErr = errors.New("elevenlabs: retrieval gave up")
	}
	return transcript.Transcript{}, fmt.Errorf("elevenlabs: %s after %d attempts: %w", kind, r.maxAttempts, lastErr)
}

func toTranscript(conv *Conversation) transcript.Transcript {
	var t transcript.Transcript
	for _, turn := range conv.Transcript {
		role := transcript.RoleUser
		if turn.Role == "agent" {
			role = transcript.RoleAgent
		}
		offset := time.Duration(turn.TimeInCallSecs * float64(time.Second))
		t.Append(role, turn.Message, offset)
	}
	return t
}
