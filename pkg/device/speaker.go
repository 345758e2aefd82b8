package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/fieldvision-ai/fieldvision-go/pkg/audio"
)

// Speaker renders PCM through one persistent oto player that pulls from an
// internal buffer. Keeping the device running and feeding silence between
// chunks avoids start/stop clicks and keeps back-to-back chunks gapless.
type Speaker struct {
	player *oto.Player

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// OpenSpeaker initializes the default playback device at the given rate.
// The 100ms device buffer trades a little latency for glitch-free output.
func OpenSpeaker(sampleRate int) (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &Speaker{}
	s.player = otoCtx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

// Read is the pull side for oto. It never blocks: when the buffer is empty
// it hands back silence so the device keeps running.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Play queues one chunk and blocks until the buffer has drained, so the
// playback pipeline's one-chunk-at-a-time invariant maps onto real output.
func (s *Speaker) Play(ctx context.Context, samples []float32) error {
	pcm := audio.FloatToPCM16(samples)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("speaker closed")
	}
	s.buf = append(s.buf, pcm...)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		drained := len(s.buf) == 0 || s.closed
		s.mu.Unlock()
		if drained {
			return nil
		}
		select {
		case <-ctx.Done():
			s.Flush()
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Flush discards any buffered audio immediately.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = nil
	s.mu.Unlock()
}

// Close silences and releases the device.
func (s *Speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	s.buf = nil
	s.mu.Unlock()
	return s.player.Close()
}
