// Package web serves the rehearsal API: session actions over REST, live
// snapshots and camera preview over websockets, reviews and their export.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-rehearse/pkg/archive"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/gdocs"
	"github.com/teslashibe/go-rehearse/pkg/hub"
	"github.com/teslashibe/go-rehearse/pkg/metrics"
	"github.com/teslashibe/go-rehearse/pkg/session"
)

// DefaultStartTimeout bounds device acquisition when a session is created.
const DefaultStartTimeout = 15 * time.Second

// Server is the HTTP front of the session registry.
type Server struct {
	app  *fiber.App
	addr string

	registry *session.Registry
	catalog  *exercise.Catalog
	reviews  archive.Store
	docs     *gdocs.Client
	metrics  *metrics.Metrics
	logger   *slog.Logger

	startTimeout time.Duration
	afterAuth    string

	mu    sync.Mutex
	feeds map[string]*feed
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records request metrics and exposes GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithDocs enables the Google Docs export and OAuth routes.
func WithDocs(c *gdocs.Client) Option {
	return func(s *Server) {
		s.docs = c
	}
}

// WithStartTimeout bounds device acquisition on session creation.
func WithStartTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.startTimeout = d
	}
}

// WithAuthRedirect sets where the OAuth callback sends the browser.
// An empty path keeps the default "/".
func WithAuthRedirect(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.afterAuth = path
		}
	}
}

// NewServer creates the server and its routes.
func NewServer(addr string, registry *session.Registry, catalog *exercise.Catalog, reviews archive.Store, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		registry:     registry,
		catalog:      catalog,
		reviews:      reviews,
		logger:       slog.Default(),
		startTimeout: DefaultStartTimeout,
		afterAuth:    "/",
		feeds:        make(map[string]*feed),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web.server")

	app := fiber.New(fiber.Config{
		AppName:               "rehearse",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(s.observe)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "sessions": s.registry.Len()})
	})
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := app.Group("/api")
	api.Get("/exercises", s.handleExercises)

	sessions := api.Group("/sessions")
	sessions.Get("/", s.handleListSessions)
	sessions.Post("/", s.handleCreateSession)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Delete("/:id", s.handleCloseSession)
	sessions.Post("/:id/recording/start", s.action((*session.Session).StartRecording))
	sessions.Post("/:id/recording/pause", s.action((*session.Session).PauseRecording))
	sessions.Post("/:id/recording/resume", s.action((*session.Session).ResumeRecording))
	sessions.Post("/:id/recording/stop", s.action((*session.Session).StopRecording))
	sessions.Post("/:id/declaration/submit", s.action((*session.Session).SubmitDeclaration))
	sessions.Post("/:id/questions/confirm", s.action((*session.Session).ConfirmQuestions))
	sessions.Post("/:id/questions/retake", s.action((*session.Session).RetakeDeclaration))
	sessions.Post("/:id/conversation/start", s.action((*session.Session).StartConversation))
	sessions.Post("/:id/conversation/stop", s.action((*session.Session).StopConversation))
	sessions.Post("/:id/review/retry", s.action((*session.Session).RetryReview))
	sessions.Post("/:id/media/video", s.handleVideo)
	sessions.Post("/:id/media/audio", s.handleAudio)

	api.Get("/reviews", s.handleListReviews)
	api.Get("/reviews/:id", s.handleGetReview)
	api.Post("/reviews/:id/export", s.handleExportReview)

	api.Get("/google/status", s.handleGoogleStatus)
	api.Get("/google/auth", s.handleGoogleAuth)
	api.Get("/google/callback", s.handleGoogleCallback)
	api.Delete("/google", s.handleGoogleDisconnect)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/sessions/:id/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Start listens until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops accepting requests and closes every live session.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if cerr := s.registry.CloseAll(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}

	s.mu.Lock()
	feeds := s.feeds
	s.feeds = make(map[string]*feed)
	s.mu.Unlock()
	for _, f := range feeds {
		f.close()
	}
	return err
}

// observe logs and counts every request.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	elapsed := time.Since(start)

	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	route := c.Route().Path
	s.metrics.Request(c.Method(), route, status, elapsed)
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", elapsed,
	)
	return err
}

// feed fans one session's updates out to its websocket clients.
type feed struct {
	status *hub.Hub
	camera *hub.Hub
}

func newFeed(logger *slog.Logger) *feed {
	f := &feed{
		status: hub.New("status", logger),
		camera: hub.New("camera", logger),
	}
	go f.status.Run()
	go f.camera.Run()
	return f
}

func (f *feed) update(snap session.Snapshot) {
	_ = f.status.BroadcastJSON(snap)
}

func (f *feed) frame(jpeg []byte) {
	f.camera.BroadcastBinary(jpeg)
}

func (f *feed) close() {
	f.status.Close()
	f.camera.Close()
}

func (s *Server) feedFor(id string) *feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds[id]
}

// track registers f for sess and closes it once the session is done.
func (s *Server) track(sess *session.Session, f *feed) {
	s.mu.Lock()
	s.feeds[sess.ID()] = f
	s.mu.Unlock()

	go func() {
		<-sess.Done()
		s.mu.Lock()
		delete(s.feeds, sess.ID())
		s.mu.Unlock()
		f.close()
	}()
}
