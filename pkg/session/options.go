package session

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
	"github.com/teslashibe/go-rehearse/pkg/media"
	"github.com/teslashibe/go-rehearse/pkg/metrics"
	"github.com/teslashibe/go-rehearse/pkg/phase"
	"github.com/teslashibe/go-rehearse/pkg/recorder"
	"github.com/teslashibe/go-rehearse/pkg/timer"
)

// SinkFunc opens the speaker that plays the agent's voice.
type SinkFunc func(cfg audioio.Config) (audioio.Sink, error)

type config struct {
	logger       *slog.Logger
	clock        timer.Clock
	limit        time.Duration
	tick         time.Duration
	constraints  media.Constraints
	confirm      bool
	delay        time.Duration
	inputRate    int
	metrics      *metrics.Metrics
	speaker      SinkFunc
	onFrame      func([]byte)
	onUpdate     func(Snapshot)
	recorderOpts []recorder.Option
}

func defaultConfig() config {
	return config{
		logger:      slog.Default(),
		clock:       timer.System,
		limit:       timer.DefaultLimit,
		tick:        timer.DefaultTickInterval,
		constraints: media.DefaultConstraints(),
		delay:       phase.DefaultDelay,
		inputRate:   16000,
	}
}

// Option configures a Session.
type Option func(*config)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock sets the clock behind every timer of the session.
func WithClock(clock timer.Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithLimit sets the cap of a recording and of a conversation.
func WithLimit(d time.Duration) Option {
	return func(c *config) { c.limit = d }
}

// WithTickInterval sets how often timers evaluate their cap and how often
// the elapsed time is republished. Zero disables the background ticker.
func WithTickInterval(d time.Duration) Option {
	return func(c *config) { c.tick = d }
}

// WithConstraints sets the capture constraints.
func WithConstraints(mc media.Constraints) Option {
	return func(c *config) { c.constraints = mc }
}

// WithConfirmation requires the user to confirm the declaration
// transcript before the question round.
func WithConfirmation(enabled bool) Option {
	return func(c *config) { c.confirm = enabled }
}

// WithPhaseDelay sets the pause between a transcribed declaration and the
// question round.
func WithPhaseDelay(d time.Duration) Option {
	return func(c *config) { c.delay = d }
}

// WithInputRate sets the sample rate the voice provider expects.
func WithInputRate(hz int) Option {
	return func(c *config) { c.inputRate = hz }
}

// WithMetrics sets the Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithSpeaker plays the agent's voice on a local sink.
func WithSpeaker(fn SinkFunc) Option {
	return func(c *config) { c.speaker = fn }
}

// WithFrameHandler receives the camera preview frames.
func WithFrameHandler(fn func(frame []byte)) Option {
	return func(c *config) { c.onFrame = fn }
}

// OnUpdate sets a callback receiving every new snapshot. It runs on the
// session loop and must not call back into the session.
func OnUpdate(fn func(Snapshot)) Option {
	return func(c *config) { c.onUpdate = fn }
}

// WithRecorderOptions passes extra options to the declaration recorder,
// such as its encoder.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(c *config) { c.recorderOpts = append(c.recorderOpts, opts...) }
}
