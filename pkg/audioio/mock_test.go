package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestMockSource_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("second Start should be a no-op: %v", err)
	}
	if src.Starts() != 1 {
		t.Errorf("expected 1 start, got %d", src.Starts())
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if want := cfg.BufferSize() * cfg.Channels; len(chunk.Samples) != want {
		t.Errorf("expected %d samples, got %d", want, len(chunk.Samples))
	}
	if chunk.Level() == 0 {
		t.Error("sine wave should have a non-zero level")
	}
}

func TestMockSource_ManualFeed(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil, WithManualFeed())
	defer src.Close()

	if src.Push(AudioChunk{Samples: []int16{1}}) {
		t.Error("push before start should be rejected")
	}

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if !src.Push(AudioChunk{Samples: []int16{int16(i)}, SampleRate: 16000, Channels: 1}) {
			t.Fatalf("push %d rejected", i)
		}
	}
	_ = src.Stop()

	// Buffered chunks drain before EOF.
	for i := 0; i < 3; i++ {
		chunk, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if chunk.Samples[0] != int16(i) {
			t.Errorf("chunk %d out of order", i)
		}
	}
	if _, err := src.Read(ctx); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestMockSource_StartError(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil, WithStartError(errors.New("permission denied")))
	err := src.Start(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestMockSource_Close(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil)

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := src.Start(ctx); err != io.ErrClosedPipe {
		t.Errorf("expected ErrClosedPipe after close, got: %v", err)
	}
	if !src.Closed() {
		t.Error("Closed should report true")
	}
}

func TestMockSink(t *testing.T) {
	sink := NewMockSink(DefaultConfig(), nil)
	ctx := context.Background()

	if err := sink.Write(ctx, AudioChunk{}); err != io.ErrClosedPipe {
		t.Errorf("write before start: expected ErrClosedPipe, got %v", err)
	}

	_ = sink.Start(ctx)
	for i := 0; i < 2; i++ {
		if err := sink.Write(ctx, AudioChunk{Samples: make([]int16, 10)}); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(sink.Chunks()); n != 2 {
		t.Errorf("expected 2 chunks, got %d", n)
	}

	_ = sink.Clear()
	stats := sink.Stats()
	if len(sink.Chunks()) != 0 || stats.Clears != 1 || stats.ChunksWritten != 2 {
		t.Errorf("unexpected state after clear: %+v", stats)
	}
}

func TestAudioChunk(t *testing.T) {
	t.Run("bytes round trip", func(t *testing.T) {
		c := AudioChunk{Samples: []int16{0x0102, -2}, SampleRate: 16000, Channels: 1}
		var back AudioChunk
		back.FromBytes(c.Bytes(), 16000, 1)
		if back.Samples[0] != 0x0102 || back.Samples[1] != -2 {
			t.Errorf("round trip mismatch: %v", back.Samples)
		}
	})

	t.Run("duration", func(t *testing.T) {
		c := AudioChunk{Samples: make([]int16, 32000), SampleRate: 16000, Channels: 2}
		if d := c.Duration(); d != time.Second {
			t.Errorf("expected 1s, got %v", d)
		}
		if (&AudioChunk{}).Duration() != 0 {
			t.Error("empty chunk should have zero duration")
		}
	})

	t.Run("silence keeps shape", func(t *testing.T) {
		c := AudioChunk{Samples: []int16{5, 6, 7}, SampleRate: 8000, Channels: 1}
		s := c.Silence()
		if len(s.Samples) != 3 || s.Level() != 0 || s.SampleRate != 8000 {
			t.Errorf("unexpected silence chunk %+v", s)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"zero channels", func(c *Config) { c.Channels = 0 }, true},
		{"zero buffer", func(c *Config) { c.BufferDuration = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSource_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if src.Name() != "mock" {
		t.Errorf("expected mock backend, got %s", src.Name())
	}
}
