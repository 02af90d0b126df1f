package recorder

import (
	"bytes"
	"encoding/binary"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
)

// Encoder turns captured PCM into a container format. A new encoder is
// created for every recording.
type Encoder interface {
	Write(chunk audioio.AudioChunk) error
	Finish() ([]byte, error)
	MIMEType() string
}

// EncoderFunc creates an encoder for the given capture format.
type EncoderFunc func(cfg audioio.Config) (Encoder, error)

// NewWAV returns a PCM16 WAV encoder.
func NewWAV(cfg audioio.Config) (Encoder, error) {
	return &wavEncoder{sampleRate: cfg.SampleRate, channels: cfg.Channels}, nil
}

type wavEncoder struct {
	sampleRate int
	channels   int
	pcm        bytes.Buffer
}

func (w *wavEncoder) Write(chunk audioio.AudioChunk) error {
	if chunk.SampleRate > 0 {
		w.sampleRate = chunk.SampleRate
	}
	if chunk.Channels > 0 {
		w.channels = chunk.Channels
	}
	return binary.Write(&w.pcm, binary.LittleEndian, chunk.Samples)
}

// Finish returns an empty slice when nothing was written.
func (w *wavEncoder) Finish() ([]byte, error) {
	if w.pcm.Len() == 0 {
		return []byte{}, nil
	}
	dataLen := uint32(w.pcm.Len())
	blockAlign := uint16(w.channels * 2)

	var out bytes.Buffer
	out.Grow(44 + w.pcm.Len())
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, 36+dataLen)
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(16))
	binary.Write(&out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&out, binary.LittleEndian, uint16(w.channels))
	binary.Write(&out, binary.LittleEndian, uint32(w.sampleRate))
	binary.Write(&out, binary.LittleEndian, uint32(w.sampleRate)*uint32(blockAlign))
	binary.Write(&out, binary.LittleEndian, blockAlign)
	binary.Write(&out, binary.LittleEndian, uint16(16))
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, dataLen)
	out.Write(w.pcm.Bytes())
	return out.Bytes(), nil
}

func (w *wavEncoder) MIMEType() string {
	return "audio/wav"
}
