package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-rehearse/internal/config"
	"github.com/teslashibe/go-rehearse/internal/httpc"
	"github.com/teslashibe/go-rehearse/internal/log"
	"github.com/teslashibe/go-rehearse/pkg/archive"
	"github.com/teslashibe/go-rehearse/pkg/audioio"
	"github.com/teslashibe/go-rehearse/pkg/conversation"
	"github.com/teslashibe/go-rehearse/pkg/elevenlabs"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/gdocs"
	"github.com/teslashibe/go-rehearse/pkg/inference"
	"github.com/teslashibe/go-rehearse/pkg/media"
	"github.com/teslashibe/go-rehearse/pkg/media/gocvcam"
	"github.com/teslashibe/go-rehearse/pkg/metrics"
	"github.com/teslashibe/go-rehearse/pkg/recorder"
	"github.com/teslashibe/go-rehearse/pkg/recorder/oggopus"
	"github.com/teslashibe/go-rehearse/pkg/review"
	"github.com/teslashibe/go-rehearse/pkg/session"
	"github.com/teslashibe/go-rehearse/pkg/web"
	"github.com/teslashibe/go-rehearse/pkg/workflow"
)

var addr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rehearsal API",
	Long: `Serve the session API, the status and camera websockets and the
review archive. The config file is watched and agent identifiers are
reloaded for sessions created afterwards.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := build(cfg, logger)
	if err != nil {
		return err
	}

	if path := watchedPath(); path != "" {
		err := config.Watch(ctx, path, logger, func(next *config.Config) {
			srv.catalog.SetAgents(next.Agents)
			logger.Info("agents reloaded")
		})
		if err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.web.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return srv.web.Shutdown(shutdownCtx)
}

// watchedPath is the config file to watch, if any.
func watchedPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultFile
}

type server struct {
	web     *web.Server
	catalog *exercise.Catalog
}

// build wires every collaborator from cfg.
func build(cfg *config.Config, logger *slog.Logger) (*server, error) {
	catalog := exercise.NewCatalog(cfg.Agents)

	reviews, err := archive.NewJSONStore(cfg.ReviewsPath())
	if err != nil {
		return nil, err
	}

	xi, err := elevenlabs.New(cfg.ElevenLabs.APIKey,
		elevenlabs.WithBaseURL(cfg.ElevenLabs.BaseURL),
		elevenlabs.WithHTTPClient(httpc.NewClient(2*time.Minute)),
		elevenlabs.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	model, err := inferenceProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	generator := review.NewGenerator(model, reviews, review.WithLogger(logger))

	m := metrics.New("rehearse")
	deps := session.Deps{
		Camera:     camera(cfg.Camera),
		Microphone: microphone(logger),
		NewProvider: func() (conversation.Provider, error) {
			return conversation.NewElevenLabs(
				conversation.WithAPIKey(cfg.ElevenLabs.APIKey),
				conversation.WithLogger(logger),
			), nil
		},
		Authorizer:  elevenlabs.NewAuthorizer(xi, catalog),
		Transcriber: elevenlabs.NewTranscriber(xi, cfg.ElevenLabs.STTModel, cfg.ElevenLabs.Language),
		Workflow: workflow.New(elevenlabs.NewRetriever(xi), generator,
			workflow.WithLogger(logger),
			workflow.OnDone(func(id string, res workflow.Result, err error) {
				if err != nil {
					logger.Warn("post-session workflow failed", "session_id", id, "error", err)
				}
			}),
		),
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithLimit(cfg.Session.Limit),
		session.WithConstraints(cfg.Media),
		session.WithConfirmation(cfg.Session.ConfirmQuestions),
		session.WithPhaseDelay(cfg.Session.PhaseDelay),
		session.WithMetrics(m),
	}
	if cfg.Session.Speaker {
		opts = append(opts, session.WithSpeaker(func(ac audioio.Config) (audioio.Sink, error) {
			return audioio.NewSink(ac, logger)
		}))
	}
	if cfg.Session.RecordingFormat == config.FormatOgg {
		opts = append(opts, session.WithRecorderOptions(recorder.WithEncoder(oggopus.New)))
	}
	registry := session.NewRegistry(catalog, deps, logger, opts...)

	webOpts := []web.Option{
		web.WithLogger(logger),
		web.WithStartTimeout(cfg.Session.StartTimeout),
	}
	if cfg.Metrics {
		webOpts = append(webOpts, web.WithMetrics(m))
	}
	if cfg.GoogleEnabled() {
		docs, err := gdocs.New(cfg.Google, logger)
		if err != nil {
			return nil, err
		}
		webOpts = append(webOpts, web.WithDocs(docs), web.WithAuthRedirect(cfg.AuthRedirect))
	}

	return &server{
		web:     web.NewServer(cfg.Addr, registry, catalog, reviews, webOpts...),
		catalog: catalog,
	}, nil
}

// inferenceProvider returns the primary review model, chained with the
// configured fallbacks.
func inferenceProvider(cfg *config.Config, logger *slog.Logger) (inference.Provider, error) {
	var providers []inference.Provider
	all := append([]config.InferenceConfig{cfg.Inference}, cfg.Fallback...)
	for i, ic := range all {
		// Validate allows a keyless primary when fallbacks exist.
		if i == 0 && ic.APIKey == "" {
			continue
		}
		opts := []inference.Option{
			inference.WithBaseURL(ic.BaseURL),
			inference.WithModel(ic.Model),
			inference.WithAPIKey(ic.APIKey),
			inference.WithLogger(logger),
		}
		if ic.Timeout > 0 {
			opts = append(opts, inference.WithTimeout(ic.Timeout))
		}
		client, err := inference.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("inference provider %q: %w", ic.Name, err)
		}
		providers = append(providers, client)
	}
	switch len(providers) {
	case 0:
		return nil, errors.New("no inference provider configured")
	case 1:
		return providers[0], nil
	default:
		return inference.NewChain(logger, providers...)
	}
}

func camera(backend string) media.Camera {
	switch backend {
	case config.CameraMock:
		return &media.MockCamera{}
	case config.CameraNone:
		return nil
	default:
		return gocvcam.New()
	}
}

func microphone(logger *slog.Logger) media.MicrophoneFunc {
	return func(cfg audioio.Config) (audioio.Source, error) {
		return audioio.NewSource(cfg, logger)
	}
}
