package web

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-rehearse/pkg/conversation"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/gdocs"
	"github.com/teslashibe/go-rehearse/pkg/hub"
	"github.com/teslashibe/go-rehearse/pkg/media"
	"github.com/teslashibe/go-rehearse/pkg/phase"
	"github.com/teslashibe/go-rehearse/pkg/recorder"
	"github.com/teslashibe/go-rehearse/pkg/review"
	"github.com/teslashibe/go-rehearse/pkg/session"
	"github.com/teslashibe/go-rehearse/pkg/workflow"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, session.ErrNotFound), errors.Is(err, review.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, exercise.ErrUnknownKind), errors.Is(err, gdocs.ErrInvalidState):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		return fiber.StatusGone
	case errors.Is(err, gdocs.ErrNotAuthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, gdocs.ErrNotConfigured):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrNoRecording),
		errors.Is(err, phase.ErrInvalidTransition),
		errors.Is(err, recorder.ErrNoMedia),
		errors.Is(err, recorder.ErrAlreadyActive),
		errors.Is(err, recorder.ErrInvalidState),
		errors.Is(err, recorder.ErrNotFinalized),
		errors.Is(err, conversation.ErrAlreadyConnected),
		errors.Is(err, media.ErrDeviceDenied),
		errors.Is(err, workflow.ErrNoInput):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleExercises(c *fiber.Ctx) error {
	return c.JSON(s.catalog.Profiles())
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	live := s.registry.List()
	out := make([]session.Snapshot, 0, len(live))
	for _, sess := range live {
		out = append(out, sess.Snapshot())
	}
	return c.JSON(out)
}

type createRequest struct {
	Kind string `json:"kind"`
}

// handleCreateSession creates a session and acquires its devices. A denied
// device is reported in the snapshot, not as a request error.
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	kind, err := exercise.ParseKind(req.Kind)
	if err != nil {
		return err
	}

	f := newFeed(s.logger)
	sess, err := s.registry.Create(kind,
		session.OnUpdate(f.update),
		session.WithFrameHandler(f.frame),
	)
	if err != nil {
		f.close()
		return err
	}
	s.track(sess, f)

	ctx, cancel := context.WithTimeout(c.UserContext(), s.startTimeout)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		_ = s.registry.Close(ctx, sess.ID())
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sess.Snapshot())
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sess.Snapshot())
}

func (s *Server) handleCloseSession(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.startTimeout)
	defer cancel()
	if err := s.registry.Close(ctx, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// action runs a session operation and answers with the resulting snapshot.
func (s *Server) action(fn func(*session.Session) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := s.registry.Get(c.Params("id"))
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		return c.JSON(sess.Snapshot())
	}
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func parseToggle(c *fiber.Ctx) (bool, error) {
	var req toggleRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return false, fiber.NewError(fiber.StatusBadRequest, `body must be {"enabled": bool}`)
	}
	return *req.Enabled, nil
}

func (s *Server) handleVideo(c *fiber.Ctx) error {
	enabled, err := parseToggle(c)
	if err != nil {
		return err
	}
	return s.action(func(sess *session.Session) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), s.startTimeout)
		defer cancel()
		return sess.SetVideoEnabled(ctx, enabled)
	})(c)
}

func (s *Server) handleAudio(c *fiber.Ctx) error {
	enabled, err := parseToggle(c)
	if err != nil {
		return err
	}
	return s.action(func(sess *session.Session) error {
		return sess.SetAudioEnabled(enabled)
	})(c)
}

func (s *Server) handleListReviews(c *fiber.Ctx) error {
	var kind exercise.Kind
	if q := c.Query("kind"); q != "" {
		k, err := exercise.ParseKind(q)
		if err != nil {
			return err
		}
		kind = k
	}
	list, err := s.reviews.List(kind)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) handleGetReview(c *fiber.Ctx) error {
	r, err := s.reviews.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) handleExportReview(c *fiber.Ctx) error {
	if s.docs == nil {
		return gdocs.ErrNotConfigured
	}
	r, err := s.reviews.Get(c.Params("id"))
	if err != nil {
		return err
	}

	docID, err := s.docs.Export(c.UserContext(), r)
	if errors.Is(err, gdocs.ErrNotAuthenticated) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":    err.Error(),
			"auth_url": s.docs.AuthURL(),
		})
	}
	if err != nil {
		return err
	}

	r.DocID = docID
	if err := s.reviews.Update(r); err != nil {
		s.logger.Warn("could not record exported doc", "review_id", r.ID, "error", err)
	}
	return c.JSON(fiber.Map{
		"doc_id": docID,
		"url":    gdocs.DocURL(docID),
	})
}

func (s *Server) handleGoogleStatus(c *fiber.Ctx) error {
	if s.docs == nil {
		return c.JSON(fiber.Map{"configured": false, "connected": false})
	}
	st := s.docs.Status()
	return c.JSON(fiber.Map{
		"configured": true,
		"connected":  st.Connected,
		"auth_url":   st.AuthURL,
	})
}

func (s *Server) handleGoogleAuth(c *fiber.Ctx) error {
	if s.docs == nil {
		return gdocs.ErrNotConfigured
	}
	return c.Redirect(s.docs.AuthURL(), fiber.StatusFound)
}

func (s *Server) handleGoogleCallback(c *fiber.Ctx) error {
	if s.docs == nil {
		return gdocs.ErrNotConfigured
	}
	if reason := c.Query("error"); reason != "" {
		return fiber.NewError(fiber.StatusBadRequest, "google authorization failed: "+reason)
	}
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing authorization code")
	}
	if err := s.docs.Exchange(c.UserContext(), c.Query("state"), code); err != nil {
		return err
	}
	s.logger.Info("google account connected")
	return c.Redirect(s.afterAuth, fiber.StatusFound)
}

func (s *Server) handleGoogleDisconnect(c *fiber.Ctx) error {
	if s.docs == nil {
		return gdocs.ErrNotConfigured
	}
	if err := s.docs.Disconnect(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleStatusWS streams snapshots, starting with the current one.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	id := c.Params("id")
	sess, err := s.registry.Get(id)
	f := s.feedFor(id)
	if err != nil || f == nil {
		s.rejectWS(c, id)
		return
	}

	data, err := json.Marshal(sess.Snapshot())
	if err != nil {
		c.Close()
		return
	}
	client, err := hub.NewClient(f.status, c, hub.NewJSONMessage(data))
	if err != nil {
		c.Close()
		return
	}
	client.Run()
}

// handleCameraWS streams JPEG preview frames.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	id := c.Params("id")
	f := s.feedFor(id)
	if f == nil {
		s.rejectWS(c, id)
		return
	}
	client, err := hub.NewClient(f.camera, c)
	if err != nil {
		c.Close()
		return
	}
	client.Run()
}

func (s *Server) rejectWS(c *websocket.Conn, id string) {
	s.logger.Debug("websocket for unknown session", "session_id", id)
	_ = c.WriteJSON(fiber.Map{"error": "session not found"})
	c.Close()
}
