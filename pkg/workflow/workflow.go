// Package workflow runs the post-session steps: retrieve the authoritative
// transcript, then generate the review. A failed step can be retried
// without losing what earlier steps produced.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/review"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
)

var (
	// ErrRetrievalFailed means the transcript could not be retrieved.
	ErrRetrievalFailed = errors.New("workflow: transcript retrieval failed")

	// ErrReviewFailed means the review could not be generated.
	ErrReviewFailed = errors.New("workflow: review generation failed")

	// ErrNoInput means there is neither a conversation nor a transcript.
	ErrNoInput = errors.New("workflow: nothing to review")
)

// Step names a workflow step.
type Step string

const (
	StepRetrieve Step = "retrieve"
	StepReview   Step = "review"
)

// StepError reports which step failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is matches the sentinel of the failed step.
func (e *StepError) Is(target error) bool {
	switch e.Step {
	case StepRetrieve:
		return target == ErrRetrievalFailed
	case StepReview:
		return target == ErrReviewFailed
	}
	return false
}

// Retriever fetches the transcript of a finished conversation.
type Retriever interface {
	Retrieve(ctx context.Context, conversationID string, kind exercise.Kind) (transcript.Transcript, error)
}

// Reviewer generates a review and returns where to find it.
type Reviewer interface {
	Review(ctx context.Context, req review.Request) (review.Ref, error)
}

// Input describes one session's material.
type Input struct {
	SessionID      string
	ConversationID string
	Kind           exercise.Kind

	// Preamble is prepended to the reviewed transcript. The declaration
	// exercise passes the recorded declaration here.
	Preamble transcript.Transcript

	// Transcript, when set, is used as is and retrieval is skipped.
	Transcript transcript.Transcript
}

// Result is the outcome of a successful run.
type Result struct {
	Transcript transcript.Transcript
	Review     review.Ref
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// OnDone registers a callback fired after each completed attempt, with
// either a result or an error.
func OnDone(fn func(sessionID string, res Result, err error)) Option {
	return func(w *Workflow) { w.onDone = fn }
}

// Workflow coordinates retrieval and review.
type Workflow struct {
	retriever Retriever
	reviewer  Reviewer
	logger    *slog.Logger
	onDone    func(string, Result, error)

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]bool
	cache    map[string]transcript.Transcript
}

// New creates a workflow.
func New(retriever Retriever, reviewer Reviewer, opts ...Option) *Workflow {
	w := &Workflow{
		retriever: retriever,
		reviewer:  reviewer,
		logger:    slog.Default(),
		inflight:  make(map[string]bool),
		cache:     make(map[string]transcript.Transcript),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "workflow")
	return w
}

// Run performs the workflow for in.SessionID. Concurrent callers for the
// same session share one attempt.
func (w *Workflow) Run(ctx context.Context, in Input) (Result, error) {
	ch := w.group.DoChan(in.SessionID, func() (any, error) {
		w.mu.Lock()
		w.inflight[in.SessionID] = true
		w.mu.Unlock()
		defer func() {
			w.mu.Lock()
			delete(w.inflight, in.SessionID)
			w.mu.Unlock()
		}()

		res, err := w.run(ctx, in)
		if w.onDone != nil {
			w.onDone(in.SessionID, res, err)
		}
		return res, err
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// Trigger starts an attempt in the background. It returns false, doing
// nothing, while an attempt for the session is in flight. The outcome is
// passed to done, if set, after the OnDone callback.
func (w *Workflow) Trigger(ctx context.Context, in Input, done func(Result, error)) bool {
	w.mu.Lock()
	if w.inflight[in.SessionID] {
		w.mu.Unlock()
		return false
	}
	// Marked here so a second Trigger racing the goroutine start is refused.
	w.inflight[in.SessionID] = true
	w.mu.Unlock()

	go func() {
		res, err := w.Run(ctx, in)
		if done != nil {
			done(res, err)
		}
	}()
	return true
}

// Forget drops the cached transcript of a session.
func (w *Workflow) Forget(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.cache, sessionID)
}

func (w *Workflow) run(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	logger := w.logger.With("session_id", in.SessionID, "conversation_id", in.ConversationID, "kind", in.Kind)

	body, err := w.transcript(ctx, in, logger)
	if err != nil {
		return Result{}, err
	}

	full := transcript.Concat(in.Preamble, body)
	if full.Empty() {
		return Result{}, &StepError{Step: StepReview, Err: review.ErrEmptyTranscript}
	}

	ref, err := w.reviewer.Review(ctx, review.Request{
		SessionID:      in.SessionID,
		ConversationID: in.ConversationID,
		Kind:           in.Kind,
		Transcript:     full,
	})
	if err != nil {
		logger.Warn("review failed", "error", err)
		return Result{}, &StepError{Step: StepReview, Err: err}
	}

	logger.Info("workflow complete",
		"review_id", ref.ID,
		"turns", len(full.Turns),
		"duration", time.Since(start),
	)
	return Result{Transcript: full, Review: ref}, nil
}

func (w *Workflow) transcript(ctx context.Context, in Input, logger *slog.Logger) (transcript.Transcript, error) {
	if !in.Transcript.Empty() {
		return in.Transcript, nil
	}
	if in.ConversationID == "" {
		if !in.Preamble.Empty() {
			return transcript.Transcript{}, nil
		}
		return transcript.Transcript{}, &StepError{Step: StepRetrieve, Err: ErrNoInput}
	}

	w.mu.Lock()
	cached, ok := w.cache[in.SessionID]
	w.mu.Unlock()
	if ok {
		logger.Debug("using cached transcript")
		return cached, nil
	}

	t, err := w.retriever.Retrieve(ctx, in.ConversationID, in.Kind)
	if err != nil {
		logger.Warn("retrieval failed", "error", err)
		return transcript.Transcript{}, &StepError{Step: StepRetrieve, Err: err}
	}

	w.mu.Lock()
	w.cache[in.SessionID] = t
	w.mu.Unlock()
	return t, nil
}
