// Package oggopus encodes recordings as Ogg/Opus using libopus.
package oggopus

import (
	"bytes"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-rehearse/pkg/audioio"
	"github.com/teslashibe/go-rehearse/pkg/recorder"
)

const (
	frameDuration = 20 // ms
	maxPacket     = 4000
	rtpClock      = 48000
	payloadType   = 111
)

// MIMEType is the type of the produced artifact.
const MIMEType = "audio/ogg; codecs=opus"

// Encoder implements recorder.Encoder.
type Encoder struct {
	enc       *opus.Encoder
	ogg       *oggwriter.OggWriter
	out       bytes.Buffer
	channels  int
	frameSize int

	pending []int16
	packet  []byte
	seq     uint16
	ts      uint32
	frames  int
}

// New matches recorder.EncoderFunc.
func New(cfg audioio.Config) (recorder.Encoder, error) {
	switch cfg.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("oggopus: unsupported sample rate %d", cfg.SampleRate)
	}
	enc, err := opus.NewEncoder(cfg.SampleRate, cfg.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("oggopus: encoder: %w", err)
	}
	e := &Encoder{
		enc:       enc,
		channels:  cfg.Channels,
		frameSize: cfg.SampleRate * frameDuration / 1000 * cfg.Channels,
		packet:    make([]byte, maxPacket),
	}
	e.ogg, err = oggwriter.NewWith(&e.out, uint32(cfg.SampleRate), uint16(cfg.Channels))
	if err != nil {
		return nil, fmt.Errorf("oggopus: writer: %w", err)
	}
	return e, nil
}

// Write buffers samples and encodes every complete 20 ms frame.
func (e *Encoder) Write(chunk audioio.AudioChunk) error {
	e.pending = append(e.pending, chunk.Samples...)
	for len(e.pending) >= e.frameSize {
		if err := e.encodeFrame(e.pending[:e.frameSize]); err != nil {
			return err
		}
		e.pending = e.pending[e.frameSize:]
	}
	return nil
}

func (e *Encoder) encodeFrame(pcm []int16) error {
	n, err := e.enc.Encode(pcm, e.packet)
	if err != nil {
		return fmt.Errorf("oggopus: encode: %w", err)
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadType,
			SequenceNumber: e.seq,
			Timestamp:      e.ts,
		},
		Payload: append([]byte(nil), e.packet[:n]...),
	}
	e.seq++
	e.ts += rtpClock * frameDuration / 1000
	e.frames++
	return e.ogg.WriteRTP(pkt)
}

// Finish pads and encodes the trailing partial frame. A take with no
// audio produces an empty artifact.
func (e *Encoder) Finish() ([]byte, error) {
	if len(e.pending) > 0 {
		frame := make([]int16, e.frameSize)
		copy(frame, e.pending)
		e.pending = nil
		if err := e.encodeFrame(frame); err != nil {
			return nil, err
		}
	}
	if err := e.ogg.Close(); err != nil {
		return nil, fmt.Errorf("oggopus: close: %w", err)
	}
	if e.frames == 0 {
		return []byte{}, nil
	}
	return e.out.Bytes(), nil
}

// MIMEType implements recorder.Encoder.
func (e *Encoder) MIMEType() string {
	return MIMEType
}
