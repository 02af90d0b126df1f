package gdocs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/review"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
)

func testConfig(t *testing.T) Config {
	return Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenPath:    filepath.Join(t.TempDir(), "token.json"),
	}
}

func sampleReview() *review.Review {
	return &review.Review{
		ID:           "r1",
		Kind:         exercise.KindCommittee,
		Summary:      "Présentation solide.",
		Score:        64,
		Strengths:    []string{"chiffres clairs"},
		Improvements: []string{"écoute"},
		Transcript:   transcript.FromText("Bonjour à tous"),
		CreatedAt:    time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestStatusAndState(t *testing.T) {
	c, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.IsAuthenticated() {
		t.Fatal("should not be authenticated without token")
	}

	st := c.Status()
	if st.Connected || st.AuthURL == "" {
		t.Fatalf("status = %+v", st)
	}
	u, err := url.Parse(st.AuthURL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Query().Get("state") == "" || u.Query().Get("access_type") != "offline" {
		t.Errorf("auth URL = %s", st.AuthURL)
	}

	if err := c.Exchange(context.Background(), "forged", "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Exchange forged state: %v", err)
	}
}

func TestExportRequiresAuth(t *testing.T) {
	c, _ := New(testConfig(t), nil)
	if _, err := c.Export(context.Background(), sampleReview()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v", err)
	}
}

type fakeDocs struct {
	mu       sync.Mutex
	created  []string
	batches  map[string][]map[string]any
	endIndex int64
}

func (f *fakeDocs) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		f.mu.Lock()
		defer f.mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/v1/documents")
		switch {
		case r.Method == http.MethodPost && path == "":
			var doc struct {
				Title string `json:"title"`
			}
			json.NewDecoder(r.Body).Decode(&doc)
			f.created = append(f.created, doc.Title)
			json.NewEncoder(w).Encode(map[string]any{"documentId": "doc-1", "title": doc.Title})
		case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
			id := strings.TrimSuffix(strings.TrimPrefix(path, "/"), ":batchUpdate")
			var body struct {
				Requests []map[string]any `json:"requests"`
			}
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &body)
			f.batches[id] = append(f.batches[id], body.Requests...)
			json.NewEncoder(w).Encode(map[string]any{"documentId": id})
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"documentId": strings.TrimPrefix(path, "/"),
				"body": map[string]any{"content": []map[string]any{
					{"startIndex": 1, "endIndex": f.endIndex},
				}},
			})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestExport(t *testing.T) {
	fake := &fakeDocs{batches: map[string][]map[string]any{}, endIndex: 40}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Endpoint = srv.URL + "/"
	c, _ := New(cfg, nil)
	tok := &oauth2.Token{AccessToken: "access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	if err := c.setToken(context.Background(), tok); err != nil {
		t.Fatalf("setToken: %v", err)
	}
	if !c.IsAuthenticated() {
		t.Fatal("should be authenticated")
	}

	r := sampleReview()
	id, err := c.Export(context.Background(), r)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if id != "doc-1" || len(fake.created) != 1 || !strings.Contains(fake.created[0], "comite") {
		t.Fatalf("id = %q, created = %v", id, fake.created)
	}
	if n := len(fake.batches["doc-1"]); n != 1 {
		t.Fatalf("batch requests = %d, want 1 insert", n)
	}

	r.DocID = id
	if _, err := c.Export(context.Background(), r); err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if len(fake.created) != 1 {
		t.Error("re-export should not create a new document")
	}
	reqs := fake.batches["doc-1"][1:]
	if len(reqs) != 2 || reqs[0]["deleteContentRange"] == nil || reqs[1]["insertText"] == nil {
		t.Errorf("rewrite requests = %v", reqs)
	}
}

func TestFormat(t *testing.T) {
	got := Format(sampleReview())
	for _, want := range []string{"Score : 64/100", "• chiffres clairs", "• écoute", "Utilisateur: Bonjour à tous", "04/05/2026 09:30"} {
		if !strings.Contains(got, want) {
			t.Errorf("Format() missing %q:\n%s", want, got)
		}
	}
}
