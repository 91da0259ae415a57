package domain

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	ErrCaptureUnavailable = errors.New("no frame available from capture source")
	ErrDelivery           = errors.New("viewer is not deliverable")
)

type FrameSource interface {
	Frame(ctx context.Context, timeout time.Duration) (image.Image, error)
}

type FrameSink interface {
	Broadcast(frame []byte) int
}

type Viewer interface {
	ID() string
	Send(frame []byte) error
	Close() error
}
