//go:build linux

package audioio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// probeTimeout bounds how long Start waits for the first captured buffer.
const probeTimeout = 2 * time.Second

// ALSASource captures audio by streaming raw PCM from arecord.
type ALSASource struct {
	cfg    Config
	logger *slog.Logger
	device string

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	streamCh chan AudioChunk
	stderr   *bytes.Buffer

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newALSASource(cfg Config, logger *slog.Logger) (Source, error) {
	if _, err := exec.LookPath("arecord"); err != nil {
		return nil, fmt.Errorf("%w: arecord not found: %v", ErrDeviceUnavailable, err)
	}
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return &ALSASource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.alsa", "device", device),
		device: device,
	}, nil
}

// Start launches arecord and waits for the first buffer, so that a denied or
// busy device is reported here rather than on the first Read.
func (s *ALSASource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.CommandContext(ctx, "arecord",
		"-q",
		"-D", s.device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
		"-t", "raw",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audioio: arecord pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	first := make([]byte, s.cfg.BufferBytes())
	probe := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(stdout, first)
		probe <- err
	}()

	select {
	case err := <-probe:
		if err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return fmt.Errorf("%w: %s", ErrDeviceUnavailable, bytes.TrimSpace(stderr.Bytes()))
		}
	case <-time.After(probeTimeout):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("%w: no audio within %v", ErrDeviceUnavailable, probeTimeout)
	}

	s.cmd = cmd
	s.stderr = stderr
	s.running = true
	s.streamCh = make(chan AudioChunk, 64)
	s.deliver(first)

	go s.captureLoop(stdout, s.streamCh)

	s.logger.Info("ALSA audio source started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)
	return nil
}

func (s *ALSASource) captureLoop(stdout io.Reader, out chan AudioChunk) {
	defer close(out)

	for {
		buf := make([]byte, s.cfg.BufferBytes())
		if _, err := io.ReadFull(stdout, buf); err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if running {
				s.logger.Warn("capture ended unexpectedly", "error", err)
			}
			return
		}
		s.deliverTo(out, buf)
	}
}

func (s *ALSASource) deliver(buf []byte) {
	s.deliverTo(s.streamCh, buf)
}

func (s *ALSASource) deliverTo(out chan AudioChunk, buf []byte) {
	var chunk AudioChunk
	chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
	select {
	case out <- chunk:
		s.chunksRead.Add(1)
		s.samplesRead.Add(int64(len(chunk.Samples)))
	default:
		s.overruns.Add(1)
	}
}

// Stop terminates arecord. Buffered chunks remain readable.
func (s *ALSASource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	s.logger.Info("ALSA audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *ALSASource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Config returns the audio configuration.
func (s *ALSASource) Config() Config {
	return s.cfg
}

// Name returns "alsa".
func (s *ALSASource) Name() string {
	return "alsa"
}

// Close stops capture permanently.
func (s *ALSASource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *ALSASource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "alsa",
	}
}

var _ SourceWithStats = (*ALSASource)(nil)

// ALSASink plays audio by piping raw PCM into aplay.
type ALSASink struct {
	cfg    Config
	logger *slog.Logger
	device string

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

func newALSASink(cfg Config, logger *slog.Logger) (Sink, error) {
	if _, err := exec.LookPath("aplay"); err != nil {
		return nil, fmt.Errorf("%w: aplay not found: %v", ErrDeviceUnavailable, err)
	}
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return &ALSASink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.alsa_sink", "device", device),
		device: device,
	}, nil
}

// Start launches aplay.
func (s *ALSASink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	return s.spawn(ctx)
}

// spawn must be called with mu held.
func (s *ALSASink) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "aplay",
		"-q",
		"-D", s.device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
		"-t", "raw",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("audioio: aplay pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.running = true
	return nil
}

// Stop terminates aplay.
func (s *ALSASink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halt()
	return nil
}

// halt must be called with mu held.
func (s *ALSASink) halt() {
	if !s.running {
		return
	}
	s.running = false
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
}

// Write sends a chunk to aplay.
func (s *ALSASink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}
	if _, err := s.stdin.Write(chunk.Bytes()); err != nil {
		return fmt.Errorf("audioio: aplay write: %w", err)
	}
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Clear drops queued playback by restarting aplay.
func (s *ALSASink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clears.Add(1)
	if !s.running {
		return nil
	}
	s.halt()
	return s.spawn(context.Background())
}

// Config returns the audio configuration.
func (s *ALSASink) Config() Config {
	return s.cfg
}

// Name returns "alsa".
func (s *ALSASink) Name() string {
	return "alsa"
}

// Close stops playback permanently.
func (s *ALSASink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.halt()
	return nil
}

// Stats returns sink statistics.
func (s *ALSASink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Clears:         s.clears.Load(),
		Running:        running,
		Backend:        "alsa",
	}
}

var _ Sink = (*ALSASink)(nil)
