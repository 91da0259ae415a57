// Package capture holds the frame sources the pipeline pulls from.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

type Status struct {
	Connected      bool      `json:"connected"`
	Producers      int       `json:"producers"`
	FramesReceived uint64    `json:"frames_received"`
	LastFrameAt    time.Time `json:"last_frame_at"`
}

// Latest keeps only the freshest frame pushed by a producer. Older frames
// are overwritten, so a slow pipeline never builds a backlog.
type Latest struct {
	mu        sync.Mutex
	frame     image.Image
	seq       uint64
	delivered uint64
	received  uint64
	lastAt    time.Time
	producers int
	notify    chan struct{}
}

func NewLatest() *Latest {
	return &Latest{notify: make(chan struct{})}
}

func (l *Latest) Push(img image.Image) {
	l.mu.Lock()
	l.frame = img
	l.seq++
	l.received++
	l.lastAt = time.Now()
	close(l.notify)
	l.notify = make(chan struct{})
	l.mu.Unlock()

	metrics.SourceFramesTotal.Inc()
}

// PushEncoded decodes a JPEG or PNG payload and pushes it.
func (l *Latest) PushEncoded(data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	l.Push(img)
	return nil
}

// Frame returns a frame newer than the previous one handed out, waiting up
// to timeout for one to arrive.
func (l *Latest) Frame(ctx context.Context, timeout time.Duration) (image.Image, error) {
	l.mu.Lock()
	if l.seq > l.delivered {
		l.delivered = l.seq
		img := l.frame
		l.mu.Unlock()
		return img, nil
	}
	wait := l.notify
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, domain.ErrCaptureUnavailable
	case <-wait:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.delivered = l.seq
	return l.frame, nil
}

// Attach and Detach track connected producers for Status.
func (l *Latest) Attach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.producers++
	metrics.ActiveSources.Set(float64(l.producers))
}

func (l *Latest) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.producers > 0 {
		l.producers--
	}
	metrics.ActiveSources.Set(float64(l.producers))
}

func (l *Latest) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Connected:      l.producers > 0,
		Producers:      l.producers,
		FramesReceived: l.received,
		LastFrameAt:    l.lastAt,
	}
}

// None never has a frame; the pipeline renders its test pattern instead.
type None struct{}

func (None) Frame(ctx context.Context, _ time.Duration) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, domain.ErrCaptureUnavailable
}
