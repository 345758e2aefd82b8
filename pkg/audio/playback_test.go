package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingPlayer records chunk boundaries and fails any call marked bad.
type recordingPlayer struct {
	mu       sync.Mutex
	played   [][]float32
	overlap  bool
	inPlay   bool
	delay    time.Duration
	failNext bool
}

func (r *recordingPlayer) Play(ctx context.Context, samples []float32) error {
	r.mu.Lock()
	if r.inPlay {
		r.overlap = true
	}
	r.inPlay = true
	fail := r.failNext
	r.failNext = false
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	r.inPlay = false
	r.played = append(r.played, samples)
	r.mu.Unlock()

	if fail {
		return errors.New("render device glitch")
	}
	return nil
}

func (r *recordingPlayer) playedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.played)
}

func pcmChunk(marker int16, samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		out[2*i] = byte(marker)
		out[2*i+1] = byte(uint16(marker) >> 8)
	}
	return out
}

func TestPlayback_StrictArrivalOrderNoOverlap(t *testing.T) {
	t.Parallel()

	player := &recordingPlayer{delay: 5 * time.Millisecond}
	p := NewPlayback(player, nil)
	defer p.Stop()

	const n = 8
	for i := 0; i < n; i++ {
		p.Enqueue(pcmChunk(int16(i+1), 4))
	}

	waitFor(t, func() bool { return player.playedCount() == n })

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.overlap {
		t.Fatalf("two chunks were playing at once")
	}
	for i, samples := range player.played {
		want := float32(int16(i+1)) / 32768
		if samples[0] != want {
			t.Fatalf("chunk %d played out of order: marker %f, want %f", i, samples[0], want)
		}
	}
}

func TestPlayback_ErrorIsCompletionNotFatal(t *testing.T) {
	t.Parallel()

	player := &recordingPlayer{}
	p := NewPlayback(player, nil)
	defer p.Stop()

	player.mu.Lock()
	player.failNext = true
	player.mu.Unlock()

	p.Enqueue(pcmChunk(1, 4))
	p.Enqueue(pcmChunk(2, 4))

	// The failed chunk counts as complete and the next one still plays.
	waitFor(t, func() bool { return player.playedCount() == 2 })
	waitFor(t, func() bool { return p.Idle() })
}

func TestPlayback_IdleWhenQueueDrains(t *testing.T) {
	t.Parallel()

	player := &recordingPlayer{}
	p := NewPlayback(player, nil)
	defer p.Stop()

	if !p.Idle() {
		t.Fatalf("fresh pipeline should be idle")
	}
	p.Enqueue(pcmChunk(7, 16))
	waitFor(t, func() bool { return p.Idle() })
	if p.QueueLen() != 0 {
		t.Fatalf("queue not drained: %d", p.QueueLen())
	}
}

func TestPlayback_FlushKeepsPipelineRunning(t *testing.T) {
	t.Parallel()

	player := &recordingPlayer{delay: 30 * time.Millisecond}
	p := NewPlayback(player, nil)
	defer p.Stop()

	for i := 0; i < 10; i++ {
		p.Enqueue(pcmChunk(int16(i+1), 4))
	}
	waitFor(t, func() bool { return player.playedCount() >= 1 })
	p.Flush()
	waitFor(t, func() bool { return p.Idle() })

	flushed := player.playedCount()
	if flushed > 3 {
		t.Fatalf("flush left %d chunks playing", flushed)
	}

	// The pipeline still accepts and plays new chunks after a flush.
	p.Enqueue(pcmChunk(42, 4))
	waitFor(t, func() bool { return player.playedCount() == flushed+1 })
}

func TestPlayback_StopDiscardsQueue(t *testing.T) {
	t.Parallel()

	player := &recordingPlayer{delay: 50 * time.Millisecond}
	p := NewPlayback(player, nil)

	for i := 0; i < 20; i++ {
		p.Enqueue(pcmChunk(int16(i), 4))
	}
	p.Stop()

	if got := player.playedCount(); got > 2 {
		t.Fatalf("queue kept draining after Stop: %d chunks played", got)
	}
}
