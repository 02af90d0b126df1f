package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/teslashibe/go-rehearse/internal/log"
	"github.com/teslashibe/go-rehearse/pkg/archive"
	"github.com/teslashibe/go-rehearse/pkg/audioio"
	"github.com/teslashibe/go-rehearse/pkg/conversation"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/gdocs"
	"github.com/teslashibe/go-rehearse/pkg/media"
	"github.com/teslashibe/go-rehearse/pkg/metrics"
	"github.com/teslashibe/go-rehearse/pkg/phase"
	"github.com/teslashibe/go-rehearse/pkg/recorder"
	"github.com/teslashibe/go-rehearse/pkg/review"
	"github.com/teslashibe/go-rehearse/pkg/session"
	"github.com/teslashibe/go-rehearse/pkg/timer"
	"github.com/teslashibe/go-rehearse/pkg/transcript"
	"github.com/teslashibe/go-rehearse/pkg/workflow"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return "Bonjour", nil
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(ctx context.Context, id string, kind exercise.Kind) (transcript.Transcript, error) {
	var t transcript.Transcript
	t.Append(transcript.RoleAgent, "Bonjour", 0)
	return t, nil
}

type stubReviewer struct{}

func (stubReviewer) Review(ctx context.Context, req review.Request) (review.Ref, error) {
	return review.Ref{ID: "rev-1"}, nil
}

type fixture struct {
	server  *Server
	cam     *media.MockCamera
	reviews *archive.JSONStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	cam := &media.MockCamera{}
	catalog := exercise.NewCatalog(exercise.Agents{Declaration: "agent-decl", Committee: "agent-cse", Interview: "agent-tv"})
	deps := session.Deps{
		Camera: cam,
		Microphone: func(cfg audioio.Config) (audioio.Source, error) {
			return audioio.NewMockSource(cfg, log.Discard(), audioio.WithManualFeed()), nil
		},
		NewProvider: func() (conversation.Provider, error) { return conversation.NewMock(), nil },
		Transcriber: stubTranscriber{},
		Workflow:    workflow.New(stubRetriever{}, stubReviewer{}, workflow.WithLogger(log.Discard())),
	}
	registry := session.NewRegistry(catalog, deps, log.Discard(),
		session.WithLogger(log.Discard()),
		session.WithClock(timer.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))),
		session.WithTickInterval(0),
	)

	reviews, err := archive.NewJSONStore(filepath.Join(t.TempDir(), "reviews.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}

	base := []Option{WithLogger(log.Discard()), WithStartTimeout(2 * time.Second)}
	s := NewServer("127.0.0.1:0", registry, catalog, reviews, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = registry.CloseAll(ctx)
	})
	return &fixture{server: s, cam: cam, reviews: reviews}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (f *fixture) create(t *testing.T, kind string) session.Snapshot {
	t.Helper()
	code, body := f.do(t, http.MethodPost, "/api/sessions", fmt.Sprintf(`{"kind":%q}`, kind))
	if code != fiber.StatusCreated {
		t.Fatalf("create %s: status %d body %s", kind, code, body)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func decodeSnapshot(t *testing.T, body []byte) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot %s: %v", body, err)
	}
	return snap
}

func TestExercises(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/api/exercises", "")
	if code != fiber.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var profiles []exercise.Profile
	if err := json.Unmarshal(body, &profiles); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("got %d exercises, want 3", len(profiles))
	}
	if strings.Contains(string(body), "agent-decl") {
		t.Errorf("exercise list leaks agent IDs: %s", body)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	snap := f.create(t, "press")
	if snap.Status != session.StatusActive || snap.Phase != phase.Declaration {
		t.Fatalf("created snapshot: status %s phase %s", snap.Status, snap.Phase)
	}
	if snap.Kind != exercise.KindDeclaration || snap.Budget != "15:00" {
		t.Errorf("created snapshot = %+v", snap)
	}
	base := "/api/sessions/" + snap.ID

	code, body := f.do(t, http.MethodPost, base+"/recording/start", "")
	if code != fiber.StatusOK {
		t.Fatalf("recording/start: %d %s", code, body)
	}
	if got := decodeSnapshot(t, body).Recording.State; got != recorder.StateRecording.String() {
		t.Errorf("recording state = %q", got)
	}

	if code, body := f.do(t, http.MethodPost, base+"/declaration/submit", ""); code != fiber.StatusConflict {
		t.Errorf("submit while recording: %d %s, want 409", code, body)
	}
	if code, _ := f.do(t, http.MethodPost, base+"/conversation/start", ""); code != fiber.StatusConflict {
		t.Errorf("conversation/start during declaration: %d, want 409", code)
	}

	code, body = f.do(t, http.MethodGet, "/api/sessions", "")
	if code != fiber.StatusOK || !strings.Contains(string(body), snap.ID) {
		t.Errorf("list sessions: %d %s", code, body)
	}

	if code, _ := f.do(t, http.MethodDelete, base, ""); code != fiber.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, base, ""); code != fiber.StatusNotFound {
		t.Errorf("get after delete: %d, want 404", code)
	}
	if f.cam.Live() != 0 {
		t.Errorf("camera still open after delete")
	}
}

func TestSingleConnectsOnCreate(t *testing.T) {
	f := newFixture(t)
	snap := f.create(t, "interview")

	deadline := time.Now().Add(3 * time.Second)
	for {
		code, body := f.do(t, http.MethodGet, "/api/sessions/"+snap.ID, "")
		if code != fiber.StatusOK {
			t.Fatalf("get: %d", code)
		}
		if decodeSnapshot(t, body).Conversation.State == conversation.StateConnected {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("conversation never connected: %s", body)
		}
		time.Sleep(10 * time.Millisecond)
	}

	code, body := f.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/conversation/stop", "")
	if code != fiber.StatusOK {
		t.Fatalf("conversation/stop: %d %s", code, body)
	}
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown kind", `{"kind":"karaoke"}`, fiber.StatusBadRequest},
		{"malformed body", `{"kind":`, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/api/sessions", tt.body)
			if code != tt.want {
				t.Errorf("status = %d (%s), want %d", code, body, tt.want)
			}
			if !strings.Contains(string(body), `"error"`) {
				t.Errorf("body has no error field: %s", body)
			}
		})
	}
	if code, _ := f.do(t, http.MethodPost, "/api/sessions/nope/recording/start", ""); code != fiber.StatusNotFound {
		t.Errorf("action on unknown session: %d, want 404", code)
	}
}

func TestMediaToggles(t *testing.T) {
	f := newFixture(t)
	snap := f.create(t, "declaration")
	base := "/api/sessions/" + snap.ID + "/media/"

	if code, _ := f.do(t, http.MethodPost, base+"audio", `{}`); code != fiber.StatusBadRequest {
		t.Errorf("missing enabled: %d, want 400", code)
	}

	code, body := f.do(t, http.MethodPost, base+"audio", `{"enabled":false}`)
	if code != fiber.StatusOK {
		t.Fatalf("audio off: %d %s", code, body)
	}
	if decodeSnapshot(t, body).Media.Audio {
		t.Errorf("audio still enabled")
	}

	code, body = f.do(t, http.MethodPost, base+"video", `{"enabled":false}`)
	if code != fiber.StatusOK {
		t.Fatalf("video off: %d %s", code, body)
	}
	if decodeSnapshot(t, body).Media.Video {
		t.Errorf("video still enabled")
	}
}

func TestReviews(t *testing.T) {
	f := newFixture(t)
	r := &review.Review{ID: "rev-1", Kind: exercise.KindCommittee, Summary: "Bon rythme", Score: 7}
	if err := f.reviews.Save(r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		want     int
		contains string
	}{
		{"list", http.MethodGet, "/api/reviews", fiber.StatusOK, "rev-1"},
		{"list by kind", http.MethodGet, "/api/reviews?kind=cse", fiber.StatusOK, "rev-1"},
		{"list other kind", http.MethodGet, "/api/reviews?kind=tv", fiber.StatusOK, "[]"},
		{"list bad kind", http.MethodGet, "/api/reviews?kind=opera", fiber.StatusBadRequest, "unknown kind"},
		{"get", http.MethodGet, "/api/reviews/rev-1", fiber.StatusOK, "Bon rythme"},
		{"get missing", http.MethodGet, "/api/reviews/rev-2", fiber.StatusNotFound, "not found"},
		{"export without google", http.MethodPost, "/api/reviews/rev-1/export", fiber.StatusServiceUnavailable, "GOOGLE_CLIENT_ID"},
		{"google status", http.MethodGet, "/api/google/status", fiber.StatusOK, `"configured":false`},
		{"google auth", http.MethodGet, "/api/google/auth", fiber.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, tt.method, tt.path, "")
			if code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, body)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("body %s does not contain %q", body, tt.contains)
			}
		})
	}
}

func TestGoogleExportNeedsAuth(t *testing.T) {
	docs, err := gdocs.New(gdocs.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/google/callback",
		TokenPath:    filepath.Join(t.TempDir(), "token.json"),
	}, log.Discard())
	if err != nil {
		t.Fatalf("gdocs.New() error = %v", err)
	}
	f := newFixture(t, WithDocs(docs))
	if err := f.reviews.Save(&review.Review{ID: "rev-1", Kind: exercise.KindInterview}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	code, body := f.do(t, http.MethodPost, "/api/reviews/rev-1/export", "")
	if code != fiber.StatusUnauthorized || !strings.Contains(string(body), "auth_url") {
		t.Errorf("export: %d %s, want 401 with auth_url", code, body)
	}

	code, _ = f.do(t, http.MethodGet, "/api/google/auth", "")
	if code != fiber.StatusFound {
		t.Errorf("auth: %d, want redirect", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/google/callback?state=forged&code=x", ""); code != fiber.StatusBadRequest {
		t.Errorf("callback with forged state: %d, want 400", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/google/callback?error=access_denied", ""); code != fiber.StatusBadRequest {
		t.Errorf("callback with error: %d, want 400", code)
	}
}

func TestGoogleCallbackRedirects(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "auth-code" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokens.Close()

	docs, err := gdocs.New(gdocs.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/google/callback",
		TokenPath:    filepath.Join(t.TempDir(), "token.json"),
		TokenURL:     tokens.URL,
	}, log.Discard())
	if err != nil {
		t.Fatalf("gdocs.New() error = %v", err)
	}
	f := newFixture(t, WithDocs(docs), WithAuthRedirect("/app/reviews"))

	resp, err := f.server.app.Test(httptest.NewRequest(http.MethodGet, "/api/google/auth", nil), 5000)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	resp.Body.Close()
	consent, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("consent url: %v", err)
	}
	state := consent.Query().Get("state")
	if state == "" {
		t.Fatalf("consent url %q has no state", consent)
	}

	target := "/api/google/callback?" + url.Values{"state": {state}, "code": {"auth-code"}}.Encode()
	resp, err = f.server.app.Test(httptest.NewRequest(http.MethodGet, target, nil), 5000)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("callback status = %d, want 302", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "/app/reviews" {
		t.Errorf("callback redirect = %q, want /app/reviews", got)
	}
	if !docs.IsAuthenticated() {
		t.Error("client not authenticated after the callback")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, WithMetrics(metrics.New("rehearse_test")))
	f.do(t, http.MethodGet, "/api/exercises", "")

	code, body := f.do(t, http.MethodGet, "/metrics", "")
	if code != fiber.StatusOK {
		t.Fatalf("metrics: %d", code)
	}
	if !strings.Contains(string(body), `rehearse_test_http_requests_total{method="GET",route="/api/exercises",status="200"} 1`) {
		t.Errorf("request not counted:\n%s", body)
	}
}

func TestStatusWebsocket(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go f.server.app.Listener(ln)
	t.Cleanup(func() { _ = f.server.app.Shutdown() })

	snap := f.create(t, "declaration")
	url := fmt.Sprintf("ws://%s/ws/sessions/%s/status", ln.Addr(), snap.ID)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first session.Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.ID != snap.ID || first.Status != session.StatusActive {
		t.Errorf("initial snapshot = %+v", first)
	}

	if code, body := f.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/recording/start", ""); code != fiber.StatusOK {
		t.Fatalf("recording/start: %d %s", code, body)
	}
	for {
		var next session.Snapshot
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("waiting for the recording update: %v", err)
		}
		if next.Recording.State == recorder.StateRecording.String() {
			break
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", session.ErrNotFound), fiber.StatusNotFound},
		{fmt.Errorf("x: %w", review.ErrNotFound), fiber.StatusNotFound},
		{exercise.ErrUnknownKind, fiber.StatusBadRequest},
		{session.ErrClosed, fiber.StatusGone},
		{session.ErrInvalidState, fiber.StatusConflict},
		{phase.ErrInvalidTransition, fiber.StatusConflict},
		{recorder.ErrNotFinalized, fiber.StatusConflict},
		{conversation.ErrAlreadyConnected, fiber.StatusConflict},
		{gdocs.ErrNotAuthenticated, fiber.StatusUnauthorized},
		{gdocs.ErrNotConfigured, fiber.StatusServiceUnavailable},
		{fiber.ErrUpgradeRequired, fiber.StatusUpgradeRequired},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
