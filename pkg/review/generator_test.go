package review

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/inference"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
)

type memStore struct {
	mu      sync.Mutex
	reviews map[string]*Review
	err     error
}

func (s *memStore) Save(r *Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.reviews == nil {
		s.reviews = map[string]*Review{}
	}
	s.reviews[r.ID] = r
	return nil
}

func (s *memStore) Get(id string) (*Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func sampleTranscript() transcript.Transcript {
	var t transcript.Transcript
	t.Append(transcript.RoleAgent, "Quelle est votre demande ?", 0)
	t.Append(transcript.RoleUser, "Deux millions d'euros.", 2*time.Second)
	return t
}

func TestGenerate(t *testing.T) {
	provider := inference.NewMock("```json\n" + `{"summary":"Clair et concis.","score":120,"strengths":["rythme"],"improvements":["chiffres"]}` + "\n```")
	store := &memStore{}
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(provider, store, WithClock(func() time.Time { return created }))

	ref, err := g.Review(context.Background(), Request{
		SessionID:      "s1",
		ConversationID: "conv-1",
		Kind:           exercise.KindInterview,
		Transcript:     sampleTranscript(),
	})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	want := "/results/" + ref.ID + "?agentType=investisseurs&conversationId=conv-1"
	if ref.URL != want {
		t.Errorf("URL = %q, want %q", ref.URL, want)
	}

	r, err := store.Get(ref.ID)
	if err != nil {
		t.Fatalf("stored review: %v", err)
	}
	if r.Score != 100 || r.Summary != "Clair et concis." || r.CreatedAt != created {
		t.Errorf("review = %+v", r)
	}

	reqs := provider.Requests()
	if len(reqs) != 1 || !reqs[0].JSON {
		t.Fatalf("requests = %+v", reqs)
	}
	if !strings.Contains(reqs[0].Messages[0].Content, "journaliste") {
		t.Error("system prompt should be the interview prompt")
	}
	if got := reqs[0].Messages[1].Content; !strings.Contains(got, "Utilisateur: Deux millions d'euros.") {
		t.Errorf("user message = %q", got)
	}
}

func TestGenerateErrors(t *testing.T) {
	errUpstream := errors.New("upstream down")
	tests := []struct {
		name     string
		provider inference.Provider
		store    *memStore
		tr       transcript.Transcript
		want     error
	}{
		{"empty transcript", inference.NewMock("{}"), &memStore{}, transcript.Transcript{}, ErrEmptyTranscript},
		{"provider failure", inference.WithError(errUpstream), &memStore{}, sampleTranscript(), errUpstream},
		{"not json", inference.NewMock("Très bien !"), &memStore{}, sampleTranscript(), ErrMalformed},
		{"no summary", inference.NewMock(`{"score":50}`), &memStore{}, sampleTranscript(), ErrMalformed},
		{"store failure", inference.NewMock(`{"summary":"ok"}`), &memStore{err: errUpstream}, sampleTranscript(), errUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(tt.provider, tt.store)
			_, err := g.Review(context.Background(), Request{Kind: exercise.KindCommittee, Transcript: tt.tr})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSystemPromptPerKind(t *testing.T) {
	seen := map[string]bool{}
	for _, kind := range []exercise.Kind{exercise.KindDeclaration, exercise.KindCommittee, exercise.KindInterview} {
		p := SystemPrompt(kind)
		if !strings.Contains(p, `"summary"`) {
			t.Errorf("%s prompt lacks the output format", kind)
		}
		if seen[p] {
			t.Errorf("%s prompt is not specific", kind)
		}
		seen[p] = true
	}
}
