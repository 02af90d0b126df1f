package oggopus

import (
	"bytes"
	"testing"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
)

func TestEncoder(t *testing.T) {
	cfg := audioio.DefaultConfig()

	t.Run("encodes ogg pages", func(t *testing.T) {
		enc, err := New(cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		// 50 ms of a ramp, two full frames plus a partial one.
		samples := make([]int16, cfg.SampleRate/20)
		for i := range samples {
			samples[i] = int16(i * 10)
		}
		if err := enc.Write(audioio.AudioChunk{Samples: samples, SampleRate: cfg.SampleRate, Channels: 1}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		data, err := enc.Finish()
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		if !bytes.HasPrefix(data, []byte("OggS")) {
			t.Errorf("output does not start with an Ogg page")
		}
		if !bytes.Contains(data, []byte("OpusHead")) {
			t.Errorf("output has no OpusHead")
		}
		if got := enc.(*Encoder).frames; got != 3 {
			t.Errorf("frames = %d, want 3", got)
		}
	})

	t.Run("empty take", func(t *testing.T) {
		enc, err := New(cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		data, err := enc.Finish()
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		if len(data) != 0 {
			t.Errorf("Finish() = %d bytes, want 0", len(data))
		}
	})

	t.Run("unsupported rate", func(t *testing.T) {
		bad := cfg
		bad.SampleRate = 44100
		if _, err := New(bad); err == nil {
			t.Error("expected error for 44.1 kHz")
		}
	})
}
