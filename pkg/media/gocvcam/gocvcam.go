// Package gocvcam opens local webcams through OpenCV.
package gocvcam

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rehearse/pkg/media"
)

// Camera implements media.Camera over gocv.VideoCapture.
type Camera struct{}

// New returns an OpenCV camera.
func New() *Camera {
	return &Camera{}
}

// Open opens the device named by c.DeviceID and applies the requested
// resolution and frame rate.
func (Camera) Open(ctx context.Context, c media.VideoConstraints) (media.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := gocv.OpenVideoCapture(c.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", c.DeviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d not available", c.DeviceID)
	}
	if c.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.FrameRate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.FrameRate))
	}
	q := c.Quality
	if q <= 0 || q > 100 {
		q = 80
	}
	return &capture{vc: vc, img: gocv.NewMat(), quality: q}, nil
}

type capture struct {
	mu      sync.Mutex
	vc      *gocv.VideoCapture
	img     gocv.Mat
	quality int
	closed  bool
}

// ReadFrame grabs the next frame and encodes it as JPEG.
func (c *capture) ReadFrame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, media.ErrCaptureClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.vc.Read(&c.img); !ok || c.img.Empty() {
		return nil, fmt.Errorf("camera read failed")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.img, []int{gocv.IMWriteJpegQuality, c.quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	frame := make([]byte, len(data))
	copy(frame, data)
	return frame, nil
}

func (c *capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.img.Close()
	return c.vc.Close()
}
