package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-rehearse/pkg/inference"
)

// Transcript speaker labels used in the prompt.
const (
	UserLabel  = "Utilisateur"
	AgentLabel = "Interlocuteur"
)

// Generator produces reviews with a chat model and stores them.
type Generator struct {
	provider inference.Provider
	store    Store
	logger   *slog.Logger
	now      func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator. store may be nil, in which case
// reviews are returned but not kept.
func NewGenerator(provider inference.Provider, store Store, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider: provider,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "review.generator")
	return g
}

type modelOutput struct {
	Summary      string   `json:"summary"`
	Score        int      `json:"score"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Generate builds and stores a review.
func (g *Generator) Generate(ctx context.Context, req Request) (*Review, error) {
	if req.Transcript.Empty() {
		return nil, ErrEmptyTranscript
	}

	resp, err := g.provider.Chat(ctx, &inference.ChatRequest{
		Messages: []inference.Message{
			inference.NewSystemMessage(SystemPrompt(req.Kind)),
			inference.NewUserMessage(req.Transcript.Dialogue(UserLabel, AgentLabel)),
		},
		JSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("review: generate: %w", err)
	}

	out, err := parseOutput(resp.Message.Content)
	if err != nil {
		return nil, err
	}

	now := g.now()
	r := &Review{
		ID:             uuid.New().String(),
		SessionID:      req.SessionID,
		Kind:           req.Kind,
		ConversationID: req.ConversationID,
		Summary:        out.Summary,
		Score:          out.Score,
		Strengths:      out.Strengths,
		Improvements:   out.Improvements,
		Transcript:     req.Transcript,
		Model:          resp.Model,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if g.store != nil {
		if err := g.store.Save(r); err != nil {
			return nil, fmt.Errorf("review: save: %w", err)
		}
	}

	g.logger.Info("review generated",
		"review_id", r.ID,
		"session_id", r.SessionID,
		"kind", r.Kind,
		"score", r.Score,
	)
	return r, nil
}

// Review implements the post-session reviewer contract.
func (g *Generator) Review(ctx context.Context, req Request) (Ref, error) {
	r, err := g.Generate(ctx, req)
	if err != nil {
		return Ref{}, err
	}
	return RefFor(r), nil
}

// parseOutput accepts the JSON object alone or wrapped in a code fence.
func parseOutput(content string) (modelOutput, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "{"); i > 0 {
		content = content[i:]
	}
	if i := strings.LastIndex(content, "}"); i >= 0 && i < len(content)-1 {
		content = content[:i+1]
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return modelOutput{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return modelOutput{}, fmt.Errorf("%w: missing summary", ErrMalformed)
	}
	out.Score = min(max(out.Score, 0), 100)
	return out, nil
}
