package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// CaptureSource produces normalized microphone samples. The channel closes
// when the underlying device is released.
type CaptureSource interface {
	Samples() <-chan []float32
	Close() error
}

// CaptureConfig tunes the outbound capture pipeline.
type CaptureConfig struct {
	// WindowSize is the number of samples accumulated before a chunk is
	// transmitted. Default 4096 (~256ms at 16kHz).
	WindowSize int
	Logger     *slog.Logger
}

// Capture accumulates fixed-size sample windows from a CaptureSource and
// forwards each completed window as one PCM16 chunk while the session gate is
// open and the pipeline is not muted.
//
// Muting does not stop capture: samples keep flowing and are discarded, so
// unmuting has zero latency.
type Capture struct {
	cfg    CaptureConfig
	src    CaptureSource
	active func() bool
	send   func(pcm []byte)
	logger *slog.Logger

	muted   atomic.Bool
	stopped atomic.Bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewCapture starts the capture pipeline. active is read before every
// transmission; send receives completed PCM16 windows.
func NewCapture(cfg CaptureConfig, src CaptureSource, active func() bool, send func(pcm []byte)) *Capture {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 4096
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if active == nil {
		active = func() bool { return true }
	}
	c := &Capture{
		cfg:    cfg,
		src:    src,
		active: active,
		send:   send,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// SetMuted suppresses or resumes transmission without touching the device.
func (c *Capture) SetMuted(muted bool) {
	if c == nil {
		return
	}
	c.muted.Store(muted)
}

// Muted reports whether transmission is currently suppressed.
func (c *Capture) Muted() bool {
	if c == nil {
		return false
	}
	return c.muted.Load()
}

// Stop releases the capture device and halts the pipeline. It is safe to call
// more than once; no chunk is emitted after Stop returns.
func (c *Capture) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		_ = c.src.Close()
	})
	<-c.done
}

func (c *Capture) run() {
	defer close(c.done)

	window := make([]float32, 0, c.cfg.WindowSize)
	for samples := range c.src.Samples() {
		if c.stopped.Load() {
			continue // drain until the source closes
		}
		window = append(window, samples...)
		for len(window) >= c.cfg.WindowSize {
			chunk := window[:c.cfg.WindowSize]
			if c.active() && !c.muted.Load() && !c.stopped.Load() {
				c.send(FloatToPCM16(chunk))
			}
			rest := window[c.cfg.WindowSize:]
			window = append(window[:0], rest...)
		}
	}
}
