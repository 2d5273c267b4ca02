package camera

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Capture reads frames from one camera through OpenCV.
type Capture struct {
	cfg Config
	vc  *gocv.VideoCapture
	mu  sync.Mutex
}

// Open opens the camera and applies the configuration.
func Open(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera %d: invalid config: %v", cfg.Index, errs)
	}

	vc, err := gocv.OpenVideoCapture(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("camera %d: open: %w", cfg.Index, err)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.ExposureTime > 0 {
		vc.Set(gocv.VideoCaptureExposure, float64(cfg.ExposureTime))
	}
	if cfg.Gain > 0 {
		vc.Set(gocv.VideoCaptureGain, cfg.Gain)
	}

	c := &Capture{cfg: cfg, vc: vc}

	img := gocv.NewMat()
	defer img.Close()
	for i := 0; i < cfg.Warmup; i++ {
		vc.Read(&img)
	}

	return c, nil
}

// ID returns the device index.
func (c *Capture) ID() int {
	return c.cfg.Index
}

// Config returns the configuration the camera was opened with.
func (c *Capture) Config() Config {
	return c.cfg
}

// Capture grabs one frame and returns it encoded.
func (c *Capture) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	img := gocv.NewMat()
	defer img.Close()

	if ok := c.vc.Read(&img); !ok || img.Empty() {
		return nil, fmt.Errorf("camera %d: read failed", c.cfg.Index)
	}

	ext := gocv.PNGFileExt
	if c.cfg.Encoding == ".jpg" {
		ext = gocv.JPEGFileExt
	}
	buf, err := gocv.IMEncode(ext, img)
	if err != nil {
		return nil, fmt.Errorf("camera %d: encode: %w", c.cfg.Index, err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	frame := append([]byte(nil), buf.GetBytes()...)
	return frame, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.Close()
}
