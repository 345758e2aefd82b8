package video

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FrameSource exposes the most recent camera frame. Latest returns ok=false
// while the camera has not produced a frame yet.
type FrameSource interface {
	Latest() (Frame, bool)
	Close() error
}

// Config tunes the video capture pipeline.
type Config struct {
	Interval  time.Duration // default 1s
	MaxWidth  int           // default 640
	MaxHeight int           // default 480
	Quality   int           // JPEG quality, default 60
	MaxBytes  int           // encoded-frame ceiling, default 512 KiB
	Logger    *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = 640
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = 480
	}
	if c.Quality <= 0 {
		c.Quality = 60
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 512 << 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Capture samples the camera on a fixed timer while the session gate is open
// and video is enabled. Each tick is independent: a missing frame, an encode
// failure, or an oversized result skips the tick without queueing anything.
// Only the freshest frame is ever worth sending.
type Capture struct {
	cfg    Config
	src    FrameSource
	active func() bool
	send   func(jpeg []byte)
	logger *slog.Logger

	enabled atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewCapture starts the pipeline. active is read on every tick; send receives
// encoded JPEG frames that passed the size ceiling.
func NewCapture(cfg Config, src FrameSource, active func() bool, send func(jpeg []byte)) *Capture {
	cfg = cfg.withDefaults()
	if active == nil {
		active = func() bool { return true }
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Capture{
		cfg:    cfg,
		src:    src,
		active: active,
		send:   send,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.enabled.Store(true)
	go c.run()
	return c
}

// SetEnabled toggles frame transmission without releasing the camera.
func (c *Capture) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.enabled.Store(enabled)
}

// Enabled reports whether video transmission is on.
func (c *Capture) Enabled() bool {
	if c == nil {
		return false
	}
	return c.enabled.Load()
}

// Stop halts the timer and releases the camera. No frame is emitted after
// Stop returns.
func (c *Capture) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		c.cancel()
		_ = c.src.Close()
	})
	<-c.done
}

func (c *Capture) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Capture) tick() {
	if !c.active() || !c.enabled.Load() {
		return
	}
	frame, ok := c.src.Latest()
	if !ok {
		// Camera not producing yet; skip the tick entirely.
		return
	}
	encoded, err := c.encodeFrame(frame)
	if err != nil {
		c.logger.Warn("video_frame_encode_failed", "error", err)
		return
	}
	if encoded == nil {
		return
	}
	if c.ctx.Err() != nil {
		return
	}
	c.send(encoded)
}

// encodeFrame downscales and encodes one frame. A nil result with nil error
// means the frame was dropped by the size ceiling.
func (c *Capture) encodeFrame(frame Frame) ([]byte, error) {
	outW, outH := fitWithin(frame.Width, frame.Height, c.cfg.MaxWidth, c.cfg.MaxHeight)
	scaled, err := resizeRGB(frame, outW, outH)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeJPEG(scaled, c.cfg.Quality)
	if err != nil {
		return nil, err
	}
	if len(encoded) > c.cfg.MaxBytes {
		c.logger.Debug("video_frame_dropped_oversize", "bytes", len(encoded), "ceiling", c.cfg.MaxBytes)
		return nil, nil
	}
	return encoded, nil
}
