package media

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockCamera produces a fixed frame at the requested frame rate.
type MockCamera struct {
	// Err, when set, makes Open fail.
	Err error
	// Frame is the payload of every frame.
	Frame []byte

	opens atomic.Int32
	live  atomic.Int32
}

// Open implements Camera.
func (c *MockCamera) Open(ctx context.Context, vc VideoConstraints) (Capture, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.opens.Add(1)
	c.live.Add(1)
	fps := vc.FrameRate
	if fps <= 0 {
		fps = 30
	}
	frame := c.Frame
	if frame == nil {
		frame = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	}
	return &mockCapture{
		cam:      c,
		frame:    frame,
		interval: time.Second / time.Duration(fps),
		closed:   make(chan struct{}),
	}, nil
}

// Opens returns how many captures were opened.
func (c *MockCamera) Opens() int {
	return int(c.opens.Load())
}

// Live returns how many captures are open.
func (c *MockCamera) Live() int {
	return int(c.live.Load())
}

type mockCapture struct {
	cam      *MockCamera
	frame    []byte
	interval time.Duration
	once     sync.Once
	closed   chan struct{}
}

func (m *mockCapture) ReadFrame(ctx context.Context) ([]byte, error) {
	t := time.NewTimer(m.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, ErrCaptureClosed
	case <-t.C:
		return m.frame, nil
	}
}

func (m *mockCapture) Close() error {
	m.once.Do(func() {
		close(m.closed)
		m.cam.live.Add(-1)
	})
	return nil
}
