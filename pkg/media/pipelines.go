// Package media assembles the hardware devices and the capture/playback
// pipelines into the session controller's media seam.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fieldvision-ai/fieldvision-go/pkg/audio"
	"github.com/fieldvision-ai/fieldvision-go/pkg/device"
	"github.com/fieldvision-ai/fieldvision-go/pkg/session"
	"github.com/fieldvision-ai/fieldvision-go/pkg/video"
)

// Config parameterizes the real device pipelines.
type Config struct {
	AudioWindowSamples int
	Video              video.Config
	Logger             *slog.Logger
}

// Pipelines implements session.MediaPipelines on the real microphone,
// speaker, and camera. Mute and video flags are sticky: they survive a
// release and apply to the next acquisition.
type Pipelines struct {
	cfg Config

	mu       sync.Mutex
	capture  *audio.Capture
	playback *audio.Playback
	speaker  *device.Speaker
	videoCap *video.Capture
	held     bool
	muted    bool
	videoOn  bool
}

func New(cfg Config) *Pipelines {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipelines{cfg: cfg, videoOn: true}
}

// Acquire opens all three devices and starts the pipelines. Any failure
// releases whatever was already opened.
func (p *Pipelines) Acquire(_ context.Context, deps session.MediaDeps) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held {
		return fmt.Errorf("media already acquired")
	}
	logger := deps.Logger
	if logger == nil {
		logger = p.cfg.Logger
	}

	mic, err := device.OpenMicrophone(audio.CaptureSampleRate, logger)
	if err != nil {
		return fmt.Errorf("microphone: %w", err)
	}
	speaker, err := device.OpenSpeaker(audio.PlaybackSampleRate)
	if err != nil {
		_ = mic.Close()
		return fmt.Errorf("speaker: %w", err)
	}
	camera, err := device.OpenCamera()
	if err != nil {
		_ = speaker.Close()
		_ = mic.Close()
		return fmt.Errorf("camera: %w", err)
	}

	p.capture = audio.NewCapture(audio.CaptureConfig{
		WindowSize: p.cfg.AudioWindowSamples,
		Logger:     logger,
	}, mic, deps.Active, deps.SendAudio)
	p.capture.SetMuted(p.muted)

	p.speaker = speaker
	p.playback = audio.NewPlayback(speaker, logger)

	videoCfg := p.cfg.Video
	videoCfg.Logger = logger
	p.videoCap = video.NewCapture(videoCfg, camera, deps.Active, deps.SendFrame)
	p.videoCap.SetEnabled(p.videoOn)

	p.held = true
	return nil
}

func (p *Pipelines) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	p.capture.SetMuted(muted)
}

func (p *Pipelines) SetVideoEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videoOn = enabled
	p.videoCap.SetEnabled(enabled)
}

func (p *Pipelines) PlayAudio(pcm []byte) {
	p.mu.Lock()
	playback := p.playback
	p.mu.Unlock()
	playback.Enqueue(pcm)
}

func (p *Pipelines) FlushPlayback() {
	p.mu.Lock()
	playback, speaker := p.playback, p.speaker
	p.mu.Unlock()
	playback.Flush()
	if speaker != nil {
		speaker.Flush()
	}
}

// Release stops capture synchronously before playback so no chunk or frame
// can be emitted after it returns, then gives all devices back.
func (p *Pipelines) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.held {
		return
	}
	p.capture.Stop()
	p.videoCap.Stop()
	p.playback.Stop()
	_ = p.speaker.Close()
	p.capture = nil
	p.videoCap = nil
	p.playback = nil
	p.speaker = nil
	p.held = false
}
