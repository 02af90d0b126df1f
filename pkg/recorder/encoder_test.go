package recorder

import (
	"encoding/binary"
	"testing"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
)

func TestWAVEncoder(t *testing.T) {
	enc, err := NewWAV(audioio.DefaultConfig())
	if err != nil {
		t.Fatalf("NewWAV() error = %v", err)
	}
	if err := enc.Write(audioio.AudioChunk{Samples: []int16{1, -1, 256}, SampleRate: 16000, Channels: 1}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header: %q", data[:12])
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 6 {
		t.Errorf("data length = %d, want 6", got)
	}
	if got := int16(binary.LittleEndian.Uint16(data[46:48])); got != -1 {
		t.Errorf("second sample = %d, want -1", got)
	}

	empty, _ := NewWAV(audioio.DefaultConfig())
	if data, _ := empty.Finish(); len(data) != 0 {
		t.Errorf("empty take produced %d bytes", len(data))
	}
}
