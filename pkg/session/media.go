package session

import (
	"context"
	"log/slog"
)

// MediaDeps is handed to the media layer at acquisition time. Active is the
// shared liveness gate pipelines must read before every emission; the send
// funcs forward completed chunks and frames onto the wire.
type MediaDeps struct {
	Active    func() bool
	SendAudio func(pcm []byte)
	SendFrame func(jpeg []byte)
	Logger    *slog.Logger
}

// MediaPipelines is the controller's seam to the capture and playback
// pipelines. Devices are acquired once per session and stay acquired across
// reconnects and topic resets; only Release gives them back.
//
// Release must halt all capture timers and callbacks synchronously before
// returning, so no orphaned tick can fire after the connection is torn down.
type MediaPipelines interface {
	Acquire(ctx context.Context, deps MediaDeps) error
	SetMuted(muted bool)
	SetVideoEnabled(enabled bool)
	PlayAudio(pcm []byte)
	FlushPlayback()
	Release()
}

// NopMedia is a MediaPipelines that does nothing, for text-only sessions and
// tests.
type NopMedia struct{}

func (NopMedia) Acquire(context.Context, MediaDeps) error { return nil }
func (NopMedia) SetMuted(bool)                            {}
func (NopMedia) SetVideoEnabled(bool)                     {}
func (NopMedia) PlayAudio([]byte)                         {}
func (NopMedia) FlushPlayback()                           {}
func (NopMedia) Release()                                 {}
