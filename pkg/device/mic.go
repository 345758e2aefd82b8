// Package device wraps the platform microphone, speaker, and camera behind
// the pipeline source interfaces. Everything here talks to real hardware;
// the pipelines themselves are tested against fakes.
package device

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// Microphone captures mono float32 samples at a fixed rate and feeds them to
// the audio capture pipeline. Sample batches are dropped rather than buffered
// when the consumer lags; stale microphone audio has no value.
type Microphone struct {
	ctx *malgo.AllocatedContext
	dev *malgo.Device
	out chan []float32

	closeOnce sync.Once
	closeErr  error
}

// OpenMicrophone initializes the default capture device.
func OpenMicrophone(sampleRate int, logger *slog.Logger) (*Microphone, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	m := &Microphone{
		ctx: mCtx,
		out: make(chan []float32, 16),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			if len(pInput) == 0 {
				return
			}
			select {
			case m.out <- bytesToFloat32(pInput):
			default:
			}
		},
	}

	dev, err := malgo.InitDevice(mCtx.Context, cfg, callbacks)
	if err != nil {
		_ = mCtx.Uninit()
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	m.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mCtx.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	return m, nil
}

// Samples is the capture stream consumed by the audio pipeline.
func (m *Microphone) Samples() <-chan []float32 { return m.out }

// Close stops the device and closes the sample stream.
func (m *Microphone) Close() error {
	m.closeOnce.Do(func() {
		_ = m.dev.Stop()
		m.dev.Uninit()
		m.closeErr = m.ctx.Uninit()
		close(m.out)
	})
	return m.closeErr
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
