package audio

import (
	"context"
	"log/slog"
	"sync"
)

// Player renders one decoded chunk and blocks until it has finished playing
// (or ctx is canceled). Implementations must not overlap calls; Playback
// guarantees Play is never invoked concurrently.
type Player interface {
	Play(ctx context.Context, samples []float32) error
}

// Playback is the strictly sequential inbound audio queue: chunks play in
// arrival order, at most one audible at a time, with no gaps between a chunk
// finishing and the next starting. A playback error is logged and treated as
// immediate completion.
type Playback struct {
	player Player
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   [][]byte
	playing bool
	wake    chan struct{}

	stopOnce sync.Once
	done     chan struct{}
}

// NewPlayback starts the playback pipeline on the given player.
func NewPlayback(player Player, logger *slog.Logger) *Playback {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Playback{
		player: player,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue appends one raw PCM16 chunk. If nothing is playing, playback of the
// head begins immediately.
func (p *Playback) Enqueue(chunk []byte) {
	if p == nil || len(chunk) == 0 {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, chunk)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Idle reports whether nothing is queued or playing.
func (p *Playback) Idle() bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing && len(p.queue) == 0
}

// QueueLen reports how many chunks are waiting behind the one playing.
func (p *Playback) QueueLen() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Flush discards everything queued without stopping the pipeline. A chunk
// already mid-play finishes; nothing behind it survives.
func (p *Playback) Flush() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()
}

// Stop discards the queue and halts the pipeline, interrupting any chunk that
// is mid-play.
func (p *Playback) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.queue = nil
		p.mu.Unlock()
		p.cancel()
	})
	<-p.done
}

func (p *Playback) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		var chunk []byte
		if len(p.queue) > 0 {
			chunk = p.queue[0]
			p.queue = p.queue[1:]
			p.playing = true
		} else {
			p.playing = false
		}
		p.mu.Unlock()

		if chunk == nil {
			select {
			case <-p.ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}

		if err := p.player.Play(p.ctx, PCM16ToFloat(chunk)); err != nil {
			if p.ctx.Err() != nil {
				return
			}
			// Treated as completion so the queue keeps draining.
			p.logger.Warn("audio_playback_failed", "error", err)
		}

		select {
		case <-p.ctx.Done():
			return
		default:
		}
	}
}
