package ai

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"snapvision/internal/logger"

	"gocv.io/x/gocv"
)

const (
	reconnectMinDelay = 2 * time.Second
	reconnectMaxDelay = 30 * time.Second
)

// CaptureStats is a snapshot of Capture counters.
type CaptureStats struct {
	Connected  bool   `json:"connected"`
	Frames     uint64 `json:"frames"`
	Reconnects uint64 `json:"reconnects"`
}

// Capture keeps the most recent decoded frame of a live video source.
// Read never blocks on the decoder.
type Capture struct {
	source   string
	width    int
	height   int
	resolver StreamResolver

	latest     image.Image
	connected  bool
	frames     uint64
	reconnects uint64
	mutex      sync.RWMutex
	logger     *logger.Logger
}

// NewCapture prepares a capture of source; width and height are requested
// from the decoder when positive. A non-nil resolver is asked for the
// playable URL of source before every connection attempt.
func NewCapture(source string, width, height int, resolver StreamResolver, logger *logger.Logger) *Capture {
	return &Capture{
		source:   source,
		width:    width,
		height:   height,
		resolver: resolver,
		logger:   logger,
	}
}

// Read returns the latest decoded frame, or false before the first one.
func (c *Capture) Read() (image.Image, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.latest, c.latest != nil
}

func (c *Capture) Stats() CaptureStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return CaptureStats{Connected: c.connected, Frames: c.frames, Reconnects: c.reconnects}
}

// Run decodes the source until ctx is cancelled, reopening it with
// exponential backoff whenever it fails or ends.
func (c *Capture) Run(ctx context.Context) error {
	delay := reconnectMinDelay

	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}

		c.mutex.Lock()
		c.connected = false
		c.reconnects++
		c.mutex.Unlock()

		if err != nil {
			c.logger.Warning("Stream %s interrupted: %v (retrying in %v)", c.source, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if delay *= 2; delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (c *Capture) consume(ctx context.Context) error {
	source := c.source
	if c.resolver != nil {
		resolved, err := c.resolver.Resolve(ctx, c.source)
		if err != nil {
			return fmt.Errorf("failed to resolve stream: %w", err)
		}
		source = resolved
	}

	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer capture.Close()

	if !capture.IsOpened() {
		return fmt.Errorf("stream not opened")
	}

	capture.Set(gocv.VideoCaptureBufferSize, 1)
	if c.width > 0 && c.height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	}

	c.mutex.Lock()
	c.connected = true
	c.mutex.Unlock()
	c.logger.Info("Stream %s opened", c.source)

	mat := gocv.NewMat()
	defer mat.Close()

	for ctx.Err() == nil {
		if ok := capture.Read(&mat); !ok {
			return fmt.Errorf("stream ended")
		}
		if mat.Empty() {
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			c.logger.Warning("Failed to convert frame: %v", err)
			continue
		}

		c.mutex.Lock()
		c.latest = img
		c.frames++
		c.mutex.Unlock()
	}

	return nil
}
