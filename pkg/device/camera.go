package device

import (
	"context"
	"fmt"
	"sync"

	gocam "github.com/svanichkin/gocam"

	"github.com/fieldvision-ai/fieldvision-go/pkg/video"
)

// Camera keeps only the most recent frame from the capture stream. The video
// pipeline polls Latest on its own cadence; older frames have no value.
type Camera struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	latest video.Frame
	have   bool
}

// OpenCamera starts the default camera stream.
func OpenCamera() (*Camera, error) {
	ctx, cancel := context.WithCancel(context.Background())
	frames, err := gocam.StartStream(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("camera start: %w", err)
	}

	c := &Camera{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		for f := range frames {
			c.mu.Lock()
			c.latest = video.Frame{Width: f.Width, Height: f.Height, Data: f.Data}
			c.have = true
			c.mu.Unlock()
		}
	}()
	return c, nil
}

// Latest returns the most recent frame, if the camera has produced one yet.
func (c *Camera) Latest() (video.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.have
}

// Close stops the stream and waits for the collector to finish.
func (c *Camera) Close() error {
	c.cancel()
	<-c.done
	return nil
}
